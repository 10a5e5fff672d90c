package domain

import "time"

// FlagRule is a tenant-defined risk rule: a CEL expression evaluated
// against a detection's findings. When the expression is true, the rule
// adds a RiskFlag with the configured severity and contribution.
//
// The expression sees:
//   - domain: string, the analysis domain
//   - categories: list of evidence category names
//   - findings: list of detector finding strings
//   - score: double, aggregate score before rules
type FlagRule struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Expression   string    `json:"expression"`
	Severity     Severity  `json:"severity"`
	Contribution float64   `json:"contribution"`
	Domains      []string  `json:"domains,omitempty"` // empty = all domains
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AppliesTo reports whether the rule is active for the given domain.
func (r *FlagRule) AppliesTo(d AnalysisDomain) bool {
	if !r.Enabled {
		return false
	}
	if len(r.Domains) == 0 {
		return true
	}
	for _, dom := range r.Domains {
		if dom == string(d) {
			return true
		}
	}
	return false
}

// WatchlistEntry is one known-scammer record the cross-reference
// detector matches against.
type WatchlistEntry struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"` // phone, email, handle, entity name
	Kind       string    `json:"kind"`       // phone | email | handle | entity
	Reason     string    `json:"reason,omitempty"`
	Reports    int       `json:"reports"`
	AddedAt    time.Time `json:"addedAt"`
}
