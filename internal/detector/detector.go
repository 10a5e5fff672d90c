// Package detector implements the external signal detectors: checks
// that consult providers (registries, reputation services, market data,
// regulatory databases) or deterministic simulations, each returning a
// bounded sub-analysis. Detectors degrade on provider trouble; they
// never fail the pipeline.
package detector

import (
	"context"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Detector is the capability interface every external signal check
// implements. Detect returns a complete SubAnalysis; an error return is
// reserved for programming faults and is converted to a Failed
// sub-analysis at the orchestrator boundary.
type Detector interface {
	Name() string
	Detect(ctx context.Context, req *domain.NormalizedRequest) (*domain.SubAnalysis, error)
}

// degraded builds the mandated provider-trouble outcome: status
// Degraded, confidence 0, no findings.
func degraded(name string, start time.Time, diagnostic string) *domain.SubAnalysis {
	return &domain.SubAnalysis{
		Detector:   name,
		Status:     domain.StatusDegraded,
		Score:      0,
		Confidence: 0,
		Diagnostic: diagnostic,
		ElapsedMS:  time.Since(start).Milliseconds(),
	}
}

func ok(name string, start time.Time, score, confidence float64, findings map[string]any) *domain.SubAnalysis {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return &domain.SubAnalysis{
		Detector:   name,
		Status:     domain.StatusOK,
		Score:      score,
		Confidence: confidence,
		Findings:   findings,
		ElapsedMS:  time.Since(start).Milliseconds(),
	}
}

// subjectKey picks the identifier a detector looks up for a request.
func subjectKey(req *domain.NormalizedRequest) string {
	switch req.Domain {
	case domain.DomainContact:
		if req.Payload.Contact != nil {
			return req.Payload.Contact.Identifier
		}
	case domain.DomainTrading:
		if req.Payload.Trading != nil {
			return req.Payload.Trading.Symbol
		}
	case domain.DomainVeracity:
		if req.Payload.Entity != nil {
			return req.Payload.Entity.Name
		}
	}
	return req.SubjectID
}

// Deps carries the collaborators detector sets are built from.
type Deps struct {
	Provider   Provider
	Repository domain.Repository
	// Counter tracks identifier sightings in a time window; nil
	// disables velocity findings.
	Counter CounterFunc
}

// CounterFunc increments and returns the sighting count for a key in a
// window. Backed by the cache's atomic counters.
type CounterFunc func(ctx context.Context, tenantID, key string, window time.Duration) (int64, error)

// ForDomain returns the detector set of one analysis domain in
// declaration order. Order is load-bearing: aggregation and narrative
// read sub-analyses in this order.
func ForDomain(d domain.AnalysisDomain, tenantID string, deps Deps) []Detector {
	switch d {
	case domain.DomainConversation:
		return []Detector{
			NewReputationDetector(deps.Provider, tenantID, deps.Counter),
			NewWatchlistDetector(deps.Repository, tenantID),
		}
	case domain.DomainContact:
		return []Detector{
			NewExistenceDetector(deps.Provider),
			NewReputationDetector(deps.Provider, tenantID, deps.Counter),
			NewWatchlistDetector(deps.Repository, tenantID),
		}
	case domain.DomainTrading:
		return []Detector{
			NewExistenceDetector(deps.Provider),
			NewMarketDataDetector(deps.Provider),
			NewRegulatoryDetector(deps.Provider),
		}
	case domain.DomainVeracity:
		return []Detector{
			NewExistenceDetector(deps.Provider),
			NewRegulatoryDetector(deps.Provider),
			NewWatchlistDetector(deps.Repository, tenantID),
			NewReputationDetector(deps.Provider, tenantID, deps.Counter),
		}
	}
	return nil
}

// Filter keeps only the detectors named in enabled. An empty set keeps
// everything; unknown names are ignored. Declaration order survives.
func Filter(detectors []Detector, enabled []string) []Detector {
	if len(enabled) == 0 {
		return detectors
	}
	allow := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		allow[name] = true
	}
	out := make([]Detector, 0, len(detectors))
	for _, d := range detectors {
		if allow[d.Name()] {
			out = append(out, d)
		}
	}
	return out
}
