package domain

import "time"

// RiskLevel is the categorical risk band of a detection result.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Rank orders risk levels from LOW (0) to CRITICAL (3).
func (l RiskLevel) Rank() int {
	switch l {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	}
	return 0
}

// Severity classifies evidence and flags.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Evidence is one match produced by an evidence extractor: a category,
// a strength in [0,100], the excerpts that matched, and where they came
// from. Several Evidence items may share a category; the aggregator
// folds them, not the extractor.
type Evidence struct {
	Category    string   `json:"category"`
	Severity    Severity `json:"severity"`
	Strength    int      `json:"strength"` // 0-100
	Occurrences int      `json:"occurrences"`
	Excerpts    []string `json:"excerpts,omitempty"`
	SourceRef   string   `json:"sourceRef"`
}

// SubAnalysisStatus reports how a detector invocation ended.
type SubAnalysisStatus string

const (
	// StatusOK: the detector completed and its score is trustworthy.
	StatusOK SubAnalysisStatus = "OK"

	// StatusDegraded: the detector ran but its signal is partial
	// (provider timeout, partial data). Score may still contribute.
	StatusDegraded SubAnalysisStatus = "DEGRADED"

	// StatusFailed: the detector produced nothing usable. Its score is
	// ignored and it does not count toward confidence.
	StatusFailed SubAnalysisStatus = "FAILED"
)

// SubAnalysis is the outcome of a single external signal detector.
// The score is detector-local and not comparable across detectors
// until weighted by the aggregator.
type SubAnalysis struct {
	Detector   string            `json:"detector"`
	Status     SubAnalysisStatus `json:"status"`
	Score      float64           `json:"score"`      // 0-100
	Confidence float64           `json:"confidence"` // 0-100
	Findings   map[string]any    `json:"findings,omitempty"`
	Diagnostic string            `json:"diagnostic,omitempty"`
	ElapsedMS  int64             `json:"elapsedMs"`
}

// RiskFlag is a named risk signal that contributed to the overall
// score, promoted from evidence, a detector finding, or a custom rule.
type RiskFlag struct {
	Type         string   `json:"type"`
	Severity     Severity `json:"severity"`
	Description  string   `json:"description,omitempty"`
	Contribution float64  `json:"contribution"`
	Source       string   `json:"source"` // evidence | detector | rule
}

// Narrative is the human-readable explanation of a result.
type Narrative struct {
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
}

// DetectionResult is the pipeline's output for one request.
type DetectionResult struct {
	ID           string         `json:"id"`
	Domain       AnalysisDomain `json:"domain"`
	SubjectID    string         `json:"subjectId"`
	OverallScore float64        `json:"overallScore"` // 0-100
	RiskLevel    RiskLevel      `json:"riskLevel"`
	Confidence   int            `json:"confidence"` // 0-100, detector coverage
	Flags        []RiskFlag     `json:"flags"`
	Evidence     []Evidence     `json:"evidence"`
	SubAnalyses  []SubAnalysis  `json:"subAnalyses"`
	Narrative    Narrative      `json:"narrative"`
	CacheHit     bool           `json:"cacheHit"`
	Degraded     bool           `json:"degraded"` // any sub-analysis not OK
	ProcessingMS int64          `json:"processingMs"`
	CreatedAt    time.Time      `json:"createdAt"`
}
