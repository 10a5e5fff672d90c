package evidence

import (
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	ex, err := NewExtractor(DefaultTable())
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	return ex
}

func conversationRequest(texts ...string) *domain.NormalizedRequest {
	msgs := make([]domain.Message, len(texts))
	for i, txt := range texts {
		msgs[i] = domain.Message{ID: string(rune('a' + i)), Text: txt}
	}
	return &domain.NormalizedRequest{
		Domain:    domain.DomainConversation,
		SubjectID: "subject-1",
		Payload:   domain.Payload{Messages: msgs},
	}
}

func TestExtractCategories(t *testing.T) {
	ex := newTestExtractor(t)

	tests := []struct {
		name     string
		text     string
		category string
		severity domain.Severity
	}{
		{"investment guarantee", "We offer guaranteed returns on every deposit", "investment_fraud", domain.SeverityCritical},
		{"crypto doubler", "Send BTC get double back instantly", "crypto_lure", domain.SeverityCritical},
		{"gift card rail", "Just buy gift cards payment works fine", "financial_request", domain.SeverityHigh},
		{"romance emergency", "I need money for medical bills, my love", "romance_exploitation", domain.SeverityHigh},
		{"phishing verify", "Please verify your account immediately", "phishing", domain.SeverityCritical},
		{"tech support", "This is Microsoft support, your computer infected", "authority_impersonation", domain.SeverityHigh},
		{"lottery win", "Congratulations you won $5,000 today", "lottery_prize", domain.SeverityHigh},
		{"urgency", "Act now or miss out forever", "urgency_pressure", domain.SeverityHigh},
		{"contact pressure", "call me now before it is too late", "contact_pressure", domain.SeverityMedium},
		{"short link", "claim here bit.ly/x9z2 today", "suspicious_link", domain.SeverityMedium},
		{"pii request", "send me your password to continue", "pii_exposure", domain.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ex.Extract(conversationRequest(tt.text))
			var found *domain.Evidence
			for i := range got {
				if got[i].Category == tt.category {
					found = &got[i]
					break
				}
			}
			if found == nil {
				t.Fatalf("no %s evidence in %v", tt.category, got)
			}
			if found.Severity != tt.severity {
				t.Errorf("severity = %s, want %s", found.Severity, tt.severity)
			}
			if found.Strength <= 0 || found.Strength > strengthCap {
				t.Errorf("strength %d out of range", found.Strength)
			}
			if found.Occurrences < 1 {
				t.Errorf("occurrences = %d, want >= 1", found.Occurrences)
			}
			if len(found.Excerpts) == 0 {
				t.Error("missing excerpts")
			}
			if found.SourceRef == "" {
				t.Error("missing source ref")
			}
		})
	}
}

func TestExtractCleanText(t *testing.T) {
	ex := newTestExtractor(t)
	got := ex.Extract(conversationRequest("See you at lunch tomorrow around noon."))
	if len(got) != 0 {
		t.Fatalf("expected no evidence, got %v", got)
	}
}

func TestExtractDeterministicOrder(t *testing.T) {
	ex := newTestExtractor(t)
	req := conversationRequest(
		"guaranteed returns, act now or miss out",
		"verify your account immediately",
	)

	first := ex.Extract(req)
	if len(first) < 3 {
		t.Fatalf("expected evidence from both messages, got %v", first)
	}
	for i := 0; i < 5; i++ {
		again := ex.Extract(req)
		if len(again) != len(first) {
			t.Fatalf("run %d: %d evidence, want %d", i, len(again), len(first))
		}
		for j := range first {
			if again[j].Category != first[j].Category || again[j].SourceRef != first[j].SourceRef ||
				again[j].Strength != first[j].Strength {
				t.Fatalf("run %d: evidence[%d] = %+v, want %+v", i, j, again[j], first[j])
			}
		}
	}

	// payload order is preserved in source refs
	if first[0].SourceRef != "message:a" {
		t.Errorf("first evidence from %s, want message:a", first[0].SourceRef)
	}
	if first[len(first)-1].SourceRef != "message:b" {
		t.Errorf("last evidence from %s, want message:b", first[len(first)-1].SourceRef)
	}
}

func TestStrengthLiftsWithRepetition(t *testing.T) {
	ex := newTestExtractor(t)

	one := ex.Extract(conversationRequest("act now or miss out"))
	many := ex.Extract(conversationRequest("act now or miss out. again: act now or lose it."))

	if len(one) == 0 || len(many) == 0 {
		t.Fatal("expected urgency evidence in both")
	}
	if many[0].Occurrences != 2 {
		t.Errorf("occurrences = %d, want 2", many[0].Occurrences)
	}
	if many[0].Strength <= one[0].Strength {
		t.Errorf("repeated matches strength %d, want > %d", many[0].Strength, one[0].Strength)
	}
	if many[0].Strength > strengthCap {
		t.Errorf("strength %d exceeds cap", many[0].Strength)
	}
}

func TestExcerptsCapped(t *testing.T) {
	ex := newTestExtractor(t)
	text := ""
	for i := 0; i < 10; i++ {
		text += "act now or miss out. "
	}
	got := ex.Extract(conversationRequest(text))
	if len(got) == 0 {
		t.Fatal("expected urgency evidence")
	}
	if len(got[0].Excerpts) > maxExcerpts {
		t.Errorf("%d excerpts, cap is %d", len(got[0].Excerpts), maxExcerpts)
	}
	for _, e := range got[0].Excerpts {
		if len(e) > maxExcerptLen {
			t.Errorf("excerpt length %d exceeds cap", len(e))
		}
	}
}

func TestExtractTradingPromotion(t *testing.T) {
	ex := newTestExtractor(t)
	req := &domain.NormalizedRequest{
		Domain:    domain.DomainTrading,
		SubjectID: "s",
		Payload: domain.Payload{Trading: &domain.TradingActivity{
			Symbol:    "MOON",
			Promotion: "classic pump and dump, 500% return guaranteed",
		}},
	}
	got := ex.Extract(req)
	if len(got) < 2 {
		t.Fatalf("expected investment evidence from promotion, got %v", got)
	}
	for _, ev := range got {
		if ev.SourceRef != "trading:promotion" {
			t.Errorf("source ref = %s, want trading:promotion", ev.SourceRef)
		}
	}
}
