package detector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// stubProvider returns a fixed response or error.
type stubProvider struct {
	resp *ProviderResponse
	err  error
}

func (s *stubProvider) Name() string { return "stub" }
func (s *stubProvider) Query(context.Context, string, string) (*ProviderResponse, error) {
	return s.resp, s.err
}

// stubRepo implements only the watchlist lookup.
type stubRepo struct {
	domain.Repository
	entry *domain.WatchlistEntry
	err   error
}

func (s *stubRepo) LookupWatchlist(context.Context, string, string) (*domain.WatchlistEntry, error) {
	return s.entry, s.err
}

func contactRequest(identifier string) *domain.NormalizedRequest {
	return &domain.NormalizedRequest{
		Domain:    domain.DomainContact,
		SubjectID: "subject-1",
		Payload:   domain.Payload{Contact: &domain.ContactInfo{Identifier: identifier}},
	}
}

func TestSimulatedProviderDeterministic(t *testing.T) {
	p := NewSimulatedProvider("sim", 42)
	first, err := p.Query(context.Background(), "breach", "+15550100")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := p.Query(context.Background(), "breach", "+15550100")
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if again.Found != first.Found || again.Score != first.Score {
			t.Fatalf("simulator drifted: %+v vs %+v", again, first)
		}
	}

	other, _ := p.Query(context.Background(), "breach", "someone-else")
	if other.Found == first.Found && other.Score == first.Score {
		t.Log("distinct keys collided; acceptable but unexpected")
	}
}

func TestExistenceDetector(t *testing.T) {
	tests := []struct {
		name       string
		resp       *ProviderResponse
		err        error
		wantStatus domain.SubAnalysisStatus
		maxScore   float64
	}{
		{"registered", &ProviderResponse{Found: true, Score: 20}, nil, domain.StatusOK, 30},
		{"unregistered stays bounded", &ProviderResponse{Found: false}, nil, domain.StatusOK, 60},
		{"provider down", nil, errors.New("dial tcp: refused"), domain.StatusDegraded, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewExistenceDetector(&stubProvider{resp: tt.resp, err: tt.err})
			sub, err := d.Detect(context.Background(), contactRequest("x@example.com"))
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if sub.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", sub.Status, tt.wantStatus)
			}
			if sub.Score > tt.maxScore {
				t.Errorf("score = %v, want <= %v", sub.Score, tt.maxScore)
			}
			if tt.wantStatus == domain.StatusDegraded {
				if sub.Confidence != 0 {
					t.Errorf("degraded confidence = %v, want 0", sub.Confidence)
				}
				if sub.Diagnostic == "" {
					t.Error("degraded sub-analysis missing diagnostic")
				}
			}
		})
	}
}

func TestReputationDetectorScoresFromReports(t *testing.T) {
	d := NewReputationDetector(&stubProvider{
		resp: &ProviderResponse{Found: true, Attributes: map[string]any{"reports": 4}},
	}, "tenant-a", nil)

	sub, err := d.Detect(context.Background(), contactRequest("scammer@example.com"))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if sub.Status != domain.StatusOK {
		t.Fatalf("status = %s", sub.Status)
	}
	if sub.Score != 60 {
		t.Errorf("score = %v, want 60 (4 reports x 15)", sub.Score)
	}
	if sub.Findings["reports"] != 4 {
		t.Errorf("findings reports = %v, want 4", sub.Findings["reports"])
	}
}

func TestReputationDetectorVelocityBump(t *testing.T) {
	counter := func(ctx context.Context, tenantID, key string, window time.Duration) (int64, error) {
		return 25, nil
	}
	d := NewReputationDetector(&stubProvider{
		resp: &ProviderResponse{Found: true, Attributes: map[string]any{"reports": 2}},
	}, "tenant-a", counter)

	sub, err := d.Detect(context.Background(), contactRequest("busy@example.com"))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if sub.Score != 40 {
		t.Errorf("score = %v, want 40 (2 reports + velocity bump)", sub.Score)
	}
	if sub.Findings["sightings_1h"] != int64(25) {
		t.Errorf("findings sightings_1h = %v, want 25", sub.Findings["sightings_1h"])
	}
}

func TestMarketDataDetectorPumpSignature(t *testing.T) {
	series := []domain.TradePoint{
		{ID: "1", Volume: 100, Price: 1.0},
		{ID: "2", Volume: 110, Price: 1.0},
		{ID: "3", Volume: 95, Price: 1.1},
		{ID: "4", Volume: 105, Price: 1.1},
		{ID: "5", Volume: 100, Price: 1.2},
		{ID: "6", Volume: 5000, Price: 4.5},
	}
	req := &domain.NormalizedRequest{
		Domain:    domain.DomainTrading,
		SubjectID: "s",
		Payload:   domain.Payload{Trading: &domain.TradingActivity{Symbol: "MOON", Series: series}},
	}

	d := NewMarketDataDetector(&stubProvider{resp: &ProviderResponse{Found: false}})
	sub, err := d.Detect(context.Background(), req)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if sub.Status != domain.StatusOK {
		t.Fatalf("status = %s", sub.Status)
	}
	if sub.Score < 80 {
		t.Errorf("score = %v, want high for spike+swing+unlisted", sub.Score)
	}
	if sub.Score > 100 {
		t.Errorf("score = %v exceeds bound", sub.Score)
	}
	if sub.Findings["listed"] != false {
		t.Error("expected unlisted finding")
	}
}

func TestMarketDataDetectorShortSeriesLowConfidence(t *testing.T) {
	req := &domain.NormalizedRequest{
		Domain:    domain.DomainTrading,
		SubjectID: "s",
		Payload:   domain.Payload{Trading: &domain.TradingActivity{Symbol: "ABC"}},
	}
	d := NewMarketDataDetector(&stubProvider{resp: &ProviderResponse{Found: true}})
	sub, err := d.Detect(context.Background(), req)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if sub.Confidence >= 50 {
		t.Errorf("confidence = %v, want < 50 for empty series", sub.Confidence)
	}
}

func TestRegulatoryDetector(t *testing.T) {
	hit := NewRegulatoryDetector(&stubProvider{resp: &ProviderResponse{Found: true, Score: 80}})
	sub, _ := hit.Detect(context.Background(), contactRequest("sanctioned-entity"))
	if sub.Score != 95 {
		t.Errorf("sanctioned score = %v, want 95", sub.Score)
	}

	clean := NewRegulatoryDetector(&stubProvider{resp: &ProviderResponse{Found: false}})
	sub, _ = clean.Detect(context.Background(), contactRequest("fine-entity"))
	if sub.Score != 0 {
		t.Errorf("clean score = %v, want 0", sub.Score)
	}
}

func TestWatchlistDetector(t *testing.T) {
	t.Run("match", func(t *testing.T) {
		d := NewWatchlistDetector(&stubRepo{entry: &domain.WatchlistEntry{
			Identifier: "x@example.com", Reason: "romance scam reports", Reports: 12,
		}}, "tenant-a")
		sub, err := d.Detect(context.Background(), contactRequest("x@example.com"))
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		if sub.Score != 100 {
			t.Errorf("score = %v, want 100 (92 + capped reports)", sub.Score)
		}
		if sub.Findings["matched"] != true {
			t.Error("expected matched finding")
		}
	})

	t.Run("miss", func(t *testing.T) {
		d := NewWatchlistDetector(&stubRepo{}, "tenant-a")
		sub, _ := d.Detect(context.Background(), contactRequest("clean@example.com"))
		if sub.Score != 0 || sub.Status != domain.StatusOK {
			t.Errorf("miss = %+v, want OK score 0", sub)
		}
	})

	t.Run("store error degrades", func(t *testing.T) {
		d := NewWatchlistDetector(&stubRepo{err: errors.New("db locked")}, "tenant-a")
		sub, _ := d.Detect(context.Background(), contactRequest("x"))
		if sub.Status != domain.StatusDegraded || sub.Confidence != 0 {
			t.Errorf("status = %s confidence = %v, want Degraded/0", sub.Status, sub.Confidence)
		}
	})
}

func TestForDomainDeclarationOrder(t *testing.T) {
	deps := Deps{Provider: NewSimulatedProvider("sim", 1), Repository: &stubRepo{}}

	want := map[domain.AnalysisDomain][]string{
		domain.DomainConversation: {"reputation", "watchlist"},
		domain.DomainContact:      {"existence", "reputation", "watchlist"},
		domain.DomainTrading:      {"existence", "marketdata", "regulatory"},
		domain.DomainVeracity:     {"existence", "regulatory", "watchlist", "reputation"},
	}
	for d, names := range want {
		got := ForDomain(d, "tenant-a", deps)
		if len(got) != len(names) {
			t.Fatalf("%s: %d detectors, want %d", d, len(got), len(names))
		}
		for i, det := range got {
			if det.Name() != names[i] {
				t.Errorf("%s[%d] = %s, want %s", d, i, det.Name(), names[i])
			}
		}
	}
}

func TestFilter(t *testing.T) {
	deps := Deps{Provider: NewSimulatedProvider("sim", 1), Repository: &stubRepo{}}
	all := ForDomain(domain.DomainContact, "tenant-a", deps)

	if got := Filter(all, nil); len(got) != len(all) {
		t.Errorf("empty filter dropped detectors: %d vs %d", len(got), len(all))
	}

	got := Filter(all, []string{"watchlist", "existence", "bogus"})
	if len(got) != 2 {
		t.Fatalf("filtered = %d detectors, want 2", len(got))
	}
	if got[0].Name() != "existence" || got[1].Name() != "watchlist" {
		t.Errorf("filter broke declaration order: [%s %s]", got[0].Name(), got[1].Name())
	}
}
