// Package risk combines evidence and detector sub-analyses into one
// bounded score, risk band, and coverage confidence, plus the flag
// trail explaining every contribution.
package risk

import (
	"fmt"
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Assessment is the aggregator's output before narrative generation.
type Assessment struct {
	Score      float64
	Level      domain.RiskLevel
	Confidence int
	Flags      []domain.RiskFlag
}

// Aggregator folds evidence and sub-analyses using per-domain profiles.
type Aggregator struct {
	profiles map[domain.AnalysisDomain]Profile
}

// NewAggregator builds an aggregator over the given profiles.
func NewAggregator(profiles map[domain.AnalysisDomain]Profile) *Aggregator {
	return &Aggregator{profiles: profiles}
}

// Aggregate computes the overall score, band, confidence, and flags for
// one pipeline run.
//
// Every flag traces to evidence or a detector finding; the score is the
// clamped sum of flag contributions and weighted detector scores, with
// a floor at the HIGH boundary whenever a critical-severity signal is
// present. Confidence is detector coverage only: the fraction of
// invoked detectors that did not fail, independent of the score.
func (a *Aggregator) Aggregate(d domain.AnalysisDomain, evidence []domain.Evidence, subs []domain.SubAnalysis) Assessment {
	profile := a.profiles[d]

	flags := a.promoteEvidence(profile, evidence)

	score := 0.0
	for _, f := range flags {
		score += f.Contribution
	}

	// Detector contributions. Failed sub-analyses carry zero weight but
	// stay recorded for explainability.
	for _, sub := range subs {
		if sub.Status == domain.StatusFailed {
			continue
		}
		weight := profile.DetectorWeights[sub.Detector]
		if weight == 0 {
			continue
		}
		score += sub.Score * weight

		if sub.Status == domain.StatusOK && sub.Score >= profile.DetectorCriticalScore {
			flags = append(flags, domain.RiskFlag{
				Type:        sub.Detector + "_critical",
				Severity:    domain.SeverityCritical,
				Description: fmt.Sprintf("%s detector reported a decisive signal (score %.0f)", sub.Detector, sub.Score),
				Source:      "detector",
			})
		}
	}

	score = a.applyFloorAndClamp(profile, score, flags)

	return Assessment{
		Score:      score,
		Level:      profile.Thresholds.Level(score),
		Confidence: coverage(subs),
		Flags:      flags,
	}
}

// ApplyRuleFlags adds custom rule flags to an assessment and recomputes
// the score, floor, and band. Rule contributions are additive like any
// other flag.
func (a *Aggregator) ApplyRuleFlags(d domain.AnalysisDomain, assessment Assessment, ruleFlags []domain.RiskFlag) Assessment {
	if len(ruleFlags) == 0 {
		return assessment
	}
	profile := a.profiles[d]

	score := assessment.Score
	for _, f := range ruleFlags {
		score += f.Contribution
	}
	assessment.Flags = append(assessment.Flags, ruleFlags...)
	assessment.Score = a.applyFloorAndClamp(profile, score, assessment.Flags)
	assessment.Level = profile.Thresholds.Level(assessment.Score)
	return assessment
}

// promoteEvidence turns evidence categories into flags. Categories
// below their occurrence floor are skipped; each qualifying category
// promotes exactly once, in first-seen evidence order.
func (a *Aggregator) promoteEvidence(profile Profile, evidence []domain.Evidence) []domain.RiskFlag {
	type tally struct {
		occurrences int
		sources     int
	}
	counts := make(map[string]*tally)
	var order []string

	for _, ev := range evidence {
		t, ok := counts[ev.Category]
		if !ok {
			t = &tally{}
			counts[ev.Category] = t
			order = append(order, ev.Category)
		}
		t.occurrences += ev.Occurrences
		t.sources++
	}

	flags := []domain.RiskFlag{}
	for _, cat := range order {
		rule, ok := profile.Categories[cat]
		if !ok {
			continue
		}
		t := counts[cat]
		if t.occurrences < rule.MinOccurrences {
			continue
		}
		flags = append(flags, domain.RiskFlag{
			Type:         cat,
			Severity:     rule.Severity,
			Description:  fmt.Sprintf("%s evidence found %d time(s)", cat, t.occurrences),
			Contribution: rule.Weight,
			Source:       "evidence",
		})
	}
	return flags
}

// applyFloorAndClamp enforces the critical floor and the [0,100] bound.
// A single critical-severity flag keeps the score from being diluted
// below the HIGH boundary by neutral signals.
func (a *Aggregator) applyFloorAndClamp(profile Profile, score float64, flags []domain.RiskFlag) float64 {
	for _, f := range flags {
		if f.Severity == domain.SeverityCritical {
			if score < profile.Thresholds.High {
				score = profile.Thresholds.High
			}
			break
		}
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// coverage is the rounded percentage of invoked detectors that did not
// fail. No invoked detectors means zero coverage, which callers must
// read as "insufficient data", not "verified clean".
func coverage(subs []domain.SubAnalysis) int {
	if len(subs) == 0 {
		return 0
	}
	nonFailed := 0
	for _, s := range subs {
		if s.Status != domain.StatusFailed {
			nonFailed++
		}
	}
	return int(math.Round(100 * float64(nonFailed) / float64(len(subs))))
}
