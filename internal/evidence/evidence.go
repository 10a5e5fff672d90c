// Package evidence implements the pattern-based evidence extractors.
// Extraction is pure: same request and table in, same evidence out, in
// a deterministic order (payload order, then table order).
package evidence

import (
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Strength base per severity on the 0-100 scale, lifted per extra
// occurrence up to strengthCap.
var severityStrength = map[domain.Severity]int{
	domain.SeverityCritical: 90,
	domain.SeverityHigh:     80,
	domain.SeverityMedium:   60,
	domain.SeverityLow:      40,
}

const (
	strengthCap   = 95
	strengthStep  = 5
	maxExcerpts   = 5
	maxExcerptLen = 120
)

// Extractor matches a compiled pattern table against request text.
type Extractor struct {
	categories []compiledCategory
}

// NewExtractor compiles the table into a ready extractor.
func NewExtractor(table Table) (*Extractor, error) {
	compiled, err := table.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile evidence table: %w", err)
	}
	return &Extractor{categories: compiled}, nil
}

// Extract runs every pattern over every text fragment of the request
// and returns the resulting evidence, one item per matched pattern.
// No matches means an empty slice, never an error.
func (e *Extractor) Extract(req *domain.NormalizedRequest) []domain.Evidence {
	out := []domain.Evidence{}
	for _, src := range req.Texts() {
		for _, cat := range e.categories {
			for _, p := range cat.patterns {
				matches := p.re.FindAllString(src.Text, -1)
				if len(matches) == 0 {
					continue
				}
				out = append(out, domain.Evidence{
					Category:    cat.name,
					Severity:    p.severity,
					Strength:    strength(p.severity, len(matches)),
					Occurrences: len(matches),
					Excerpts:    excerpts(matches),
					SourceRef:   src.Ref,
				})
			}
		}
	}
	return out
}

// Categories returns the category names of the extractor's table in
// table order.
func (e *Extractor) Categories() []string {
	names := make([]string, len(e.categories))
	for i, c := range e.categories {
		names[i] = c.name
	}
	return names
}

func strength(sev domain.Severity, occurrences int) int {
	s := severityStrength[sev] + (occurrences-1)*strengthStep
	if s > strengthCap {
		s = strengthCap
	}
	return s
}

func excerpts(matches []string) []string {
	if len(matches) > maxExcerpts {
		matches = matches[:maxExcerpts]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		if len(m) > maxExcerptLen {
			m = m[:maxExcerptLen]
		}
		out[i] = m
	}
	return out
}
