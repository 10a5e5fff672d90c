package narrative

import (
	"reflect"
	"strings"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func flag(typ string) domain.RiskFlag {
	return domain.RiskFlag{Type: typ, Severity: domain.SeverityHigh, Source: "evidence"}
}

func TestGenerateHighRiskIncludesDoNotSendMoney(t *testing.T) {
	g := NewGenerator()
	got := g.Generate(domain.DomainConversation, domain.RiskHigh, 100, []domain.RiskFlag{
		flag("urgency_pressure"),
		flag("financial_request"),
	})

	if got.Summary == "" {
		t.Fatal("empty summary")
	}
	var found bool
	for _, r := range got.Recommendations {
		if strings.Contains(strings.ToLower(r), "do not send money") {
			found = true
		}
	}
	if !found {
		t.Errorf("recommendations %v missing do-not-send-money guidance", got.Recommendations)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	g := NewGenerator()
	flags := []domain.RiskFlag{flag("phishing"), flag("suspicious_link"), flag("urgency_pressure")}

	first := g.Generate(domain.DomainContact, domain.RiskMedium, 67, flags)
	for i := 0; i < 5; i++ {
		again := g.Generate(domain.DomainContact, domain.RiskMedium, 67, flags)
		if again.Summary != first.Summary {
			t.Fatalf("summary drifted: %q vs %q", again.Summary, first.Summary)
		}
		if !reflect.DeepEqual(again.Recommendations, first.Recommendations) {
			t.Fatalf("recommendations drifted: %v vs %v", again.Recommendations, first.Recommendations)
		}
	}
}

func TestGenerateCapsAndDedupes(t *testing.T) {
	g := NewGenerator()
	flags := []domain.RiskFlag{
		flag("financial_request"), flag("financial_request"),
		flag("crypto_lure"), flag("investment_fraud"), flag("urgency_pressure"),
		flag("contact_pressure"), flag("phishing"), flag("authority_impersonation"),
		flag("romance_exploitation"), flag("lottery_prize"), flag("pii_exposure"),
	}
	got := g.Generate(domain.DomainConversation, domain.RiskCritical, 100, flags)

	if len(got.Recommendations) > 8 {
		t.Errorf("%d recommendations, cap is 8", len(got.Recommendations))
	}
	seen := map[string]bool{}
	for _, r := range got.Recommendations {
		if seen[r] {
			t.Errorf("duplicate recommendation %q", r)
		}
		seen[r] = true
	}
}

func TestGenerateNeverEmpty(t *testing.T) {
	g := NewGenerator()

	// zero signals, zero coverage: still a summary and guidance
	got := g.Generate(domain.DomainTrading, domain.RiskLow, 0, nil)
	if got.Summary == "" {
		t.Error("empty summary for degraded run")
	}
	if !strings.Contains(got.Summary, "insufficient data") {
		t.Errorf("summary %q should mention insufficient data", got.Summary)
	}
	if len(got.Recommendations) == 0 {
		t.Error("no recommendations for degraded run")
	}
}

func TestGenerateLowConfidenceAdvice(t *testing.T) {
	g := NewGenerator()
	got := g.Generate(domain.DomainVeracity, domain.RiskMedium, 25, []domain.RiskFlag{flag("phishing")})

	var found bool
	for _, r := range got.Recommendations {
		if r == lowConfidenceAdvice {
			found = true
		}
	}
	if !found {
		t.Errorf("low coverage run missing %q", lowConfidenceAdvice)
	}

	confident := g.Generate(domain.DomainVeracity, domain.RiskMedium, 100, []domain.RiskFlag{flag("phishing")})
	for _, r := range confident.Recommendations {
		if r == lowConfidenceAdvice {
			t.Error("confident run should not carry insufficient-data advice")
		}
	}
}
