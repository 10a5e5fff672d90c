// Package narrative renders a detection into a summary sentence and an
// ordered recommendation list. Generation is a pure function of the
// risk level and the flag/evidence categories present: no randomness,
// no I/O, so fixtures reproduce byte-for-byte.
package narrative

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

const maxRecommendations = 8

// levelBase holds the opening recommendations for each risk band, in
// output order.
var levelBase = map[domain.RiskLevel][]string{
	domain.RiskCritical: {
		"Do not respond or engage any further",
		"Do not send money or provide financial information",
		"Do not click any links or download attachments",
		"Report this to the relevant authorities",
	},
	domain.RiskHigh: {
		"Do not send money or provide financial information",
		"Do not click any links or download attachments",
		"Verify the sender's identity through an independent channel",
		"Report this to the relevant authorities",
	},
	domain.RiskMedium: {
		"Exercise caution before taking any action",
		"Verify the sender's identity through an independent channel",
		"Do not provide personal or financial information",
	},
	domain.RiskLow: {
		"Verify legitimacy before taking any action",
		"Be cautious with personal information",
	},
}

// categoryAdvice appends recommendations when a category is present in
// the flags. Iterated in fixed order below.
var categoryAdvice = []struct {
	category string
	advice   string
}{
	{"financial_request", "Never pay with gift cards, wire transfers, or crypto on request"},
	{"crypto_lure", "Treat unsolicited crypto opportunities as scams by default"},
	{"investment_fraud", "Guaranteed returns do not exist; check the offer with a licensed advisor"},
	{"urgency_pressure", "Legitimate services do not rush you; take time to verify"},
	{"contact_pressure", "Do not call numbers or use contact details supplied in the message"},
	{"phishing", "Go to the official website directly instead of following links"},
	{"authority_impersonation", "Contact the named organization via its published number to confirm"},
	{"romance_exploitation", "Never send money to someone you have not met in person"},
	{"lottery_prize", "You cannot win a lottery you never entered; ignore fee requests"},
	{"pii_exposure", "Do not share passwords, codes, or identity documents"},
	{"suspicious_link", "Do not open shortened or unfamiliar links"},
	{"employment_lure", "Research the employer independently before sharing any details"},
}

// lowConfidenceAdvice is appended when detector coverage is poor, so a
// degraded run still ends with actionable guidance.
const lowConfidenceAdvice = "Insufficient data for a confident verdict; treat with caution and re-check later"

// Generator renders summaries and recommendations.
type Generator struct{}

// NewGenerator returns a narrative generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate builds the narrative for an aggregated detection. The
// output is never empty: even a zero-signal run gets a summary and at
// least one recommendation.
func (g *Generator) Generate(d domain.AnalysisDomain, level domain.RiskLevel, confidence int, flags []domain.RiskFlag) domain.Narrative {
	categories := make(map[string]bool, len(flags))
	for _, f := range flags {
		categories[f.Type] = true
	}

	recs := append([]string{}, levelBase[level]...)
	for _, ca := range categoryAdvice {
		if categories[ca.category] {
			recs = append(recs, ca.advice)
		}
	}
	if confidence < 50 {
		recs = append(recs, lowConfidenceAdvice)
	}

	return domain.Narrative{
		Summary:         g.summary(d, level, confidence, flags),
		Recommendations: dedupe(recs),
	}
}

func (g *Generator) summary(d domain.AnalysisDomain, level domain.RiskLevel, confidence int, flags []domain.RiskFlag) string {
	subject := map[domain.AnalysisDomain]string{
		domain.DomainConversation: "conversation",
		domain.DomainContact:      "contact",
		domain.DomainTrading:      "trading activity",
		domain.DomainVeracity:     "entity",
	}[d]

	if len(flags) == 0 {
		if confidence == 0 {
			return fmt.Sprintf("%s risk for this %s: insufficient data to assess.", level, subject)
		}
		return fmt.Sprintf("%s risk for this %s: no scam indicators found.", level, subject)
	}

	types := make([]string, 0, len(flags))
	seen := make(map[string]bool, len(flags))
	for _, f := range flags {
		if !seen[f.Type] {
			seen[f.Type] = true
			types = append(types, strings.ReplaceAll(f.Type, "_", " "))
		}
	}
	sort.Strings(types)
	if len(types) > 3 {
		types = types[:3]
	}

	return fmt.Sprintf("%s risk for this %s: %d indicator(s) found, primary concerns: %s.",
		level, subject, len(flags), strings.Join(types, ", "))
}

func dedupe(recs []string) []string {
	seen := make(map[string]bool, len(recs))
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
		if len(out) == maxRecommendations {
			break
		}
	}
	return out
}
