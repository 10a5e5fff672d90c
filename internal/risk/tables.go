package risk

import "github.com/opensource-finance/harrier/internal/domain"

// Thresholds are the ascending score boundaries for the risk bands of
// one domain. A score at or above a boundary lands in that band (ties
// round toward the higher band). Boundaries are non-overlapping and
// exhaustive over [0,100].
type Thresholds struct {
	Medium   float64
	High     float64
	Critical float64
}

// Level maps a score to its risk band.
func (t Thresholds) Level(score float64) domain.RiskLevel {
	switch {
	case score >= t.Critical:
		return domain.RiskCritical
	case score >= t.High:
		return domain.RiskHigh
	case score >= t.Medium:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// CategoryRule controls how an evidence category promotes to a flag:
// its fixed severity, the additive points it contributes, and the
// occurrence floor below which the category is ignored.
type CategoryRule struct {
	Severity       domain.Severity
	Weight         float64
	MinOccurrences int
}

// Profile is the aggregation configuration of one analysis domain.
// Profiles are immutable values passed into the aggregator at
// construction, never read from ambient state.
type Profile struct {
	Domain domain.AnalysisDomain

	// Categories maps evidence category names to promotion rules.
	// Unlisted categories do not promote.
	Categories map[string]CategoryRule

	// DetectorWeights scale detector-local scores into the overall
	// sum. Weights are documented per domain and bounded, not
	// normalized to 1.
	DetectorWeights map[string]float64

	// DetectorCriticalScore: an OK sub-analysis at or above this
	// local score raises a critical flag on its own.
	DetectorCriticalScore float64

	Thresholds Thresholds
}

// defaultCategories is shared across domains; domains override weights
// where a tactic matters more to them.
func defaultCategories() map[string]CategoryRule {
	return map[string]CategoryRule{
		"investment_fraud":        {domain.SeverityHigh, 28, 1},
		"crypto_lure":             {domain.SeverityHigh, 26, 1},
		"financial_request":       {domain.SeverityHigh, 32, 1},
		"romance_exploitation":    {domain.SeverityHigh, 24, 1},
		"phishing":                {domain.SeverityHigh, 26, 1},
		"authority_impersonation": {domain.SeverityHigh, 24, 1},
		"lottery_prize":           {domain.SeverityMedium, 18, 1},
		"employment_lure":         {domain.SeverityMedium, 12, 1},
		"urgency_pressure":        {domain.SeverityMedium, 18, 1},
		"contact_pressure":        {domain.SeverityLow, 8, 1},
		"suspicious_link":         {domain.SeverityMedium, 16, 1},
		"pii_exposure":            {domain.SeverityCritical, 35, 1},
	}
}

// DefaultProfiles returns the built-in per-domain aggregation tables.
func DefaultProfiles() map[domain.AnalysisDomain]Profile {
	conversation := Profile{
		Domain:     domain.DomainConversation,
		Categories: defaultCategories(),
		DetectorWeights: map[string]float64{
			"reputation": 0.20,
			"watchlist":  0.30,
		},
		DetectorCriticalScore: 92,
		Thresholds:            Thresholds{Medium: 25, High: 50, Critical: 85},
	}

	contact := Profile{
		Domain:     domain.DomainContact,
		Categories: defaultCategories(),
		DetectorWeights: map[string]float64{
			"existence":  0.25,
			"reputation": 0.25,
			"watchlist":  0.30,
		},
		DetectorCriticalScore: 92,
		Thresholds:            Thresholds{Medium: 30, High: 55, Critical: 85},
	}

	trading := Profile{
		Domain:     domain.DomainTrading,
		Categories: defaultCategories(),
		DetectorWeights: map[string]float64{
			"existence":  0.20,
			"marketdata": 0.35,
			"regulatory": 0.25,
		},
		DetectorCriticalScore: 92,
		Thresholds:            Thresholds{Medium: 30, High: 55, Critical: 80},
	}

	veracity := Profile{
		Domain:     domain.DomainVeracity,
		Categories: defaultCategories(),
		DetectorWeights: map[string]float64{
			"existence":  0.25,
			"regulatory": 0.25,
			"watchlist":  0.20,
			"reputation": 0.15,
		},
		DetectorCriticalScore: 92,
		Thresholds:            Thresholds{Medium: 30, High: 60, Critical: 85},
	}

	return map[domain.AnalysisDomain]Profile{
		domain.DomainConversation: conversation,
		domain.DomainContact:      contact,
		domain.DomainTrading:      trading,
		domain.DomainVeracity:     veracity,
	}
}
