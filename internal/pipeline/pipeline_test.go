package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/detector"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/evidence"
	"github.com/opensource-finance/harrier/internal/narrative"
	"github.com/opensource-finance/harrier/internal/risk"
)

// memCache is a minimal in-memory Cache for pipeline tests.
type memCache struct {
	results  map[string]*domain.DetectionResult
	counters map[string]int64
	getErr   error
	gets     int
	sets     int
}

func newMemCache() *memCache {
	return &memCache{
		results:  make(map[string]*domain.DetectionResult),
		counters: make(map[string]int64),
	}
}

func (m *memCache) Get(context.Context, string, string) ([]byte, error) { return nil, nil }
func (m *memCache) Set(context.Context, string, string, []byte, time.Duration) error {
	return nil
}
func (m *memCache) Delete(context.Context, string, string) error { return nil }
func (m *memCache) Ping(context.Context) error                   { return nil }
func (m *memCache) Close() error                                 { return nil }

func (m *memCache) GetResult(_ context.Context, tenantID, key string) (*domain.DetectionResult, error) {
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	r, ok := m.results[tenantID+":"+key]
	if !ok {
		return nil, nil
	}
	clone := *r
	return &clone, nil
}

func (m *memCache) SetResult(_ context.Context, tenantID, key string, result *domain.DetectionResult, _ time.Duration) error {
	m.sets++
	clone := *result
	m.results[tenantID+":"+key] = &clone
	return nil
}

func (m *memCache) IncrementCounter(_ context.Context, tenantID, key string, _ time.Duration) (int64, error) {
	m.counters[tenantID+":"+key]++
	return m.counters[tenantID+":"+key], nil
}

// memRepo records detections and serves watchlist lookups.
type memRepo struct {
	domain.Repository
	saved     []*domain.DetectionResult
	saveErr   error
	watchlist map[string]*domain.WatchlistEntry
}

func newMemRepo() *memRepo {
	return &memRepo{watchlist: make(map[string]*domain.WatchlistEntry)}
}

func (m *memRepo) SaveDetection(_ context.Context, _ string, result *domain.DetectionResult) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, result)
	return nil
}

func (m *memRepo) LookupWatchlist(_ context.Context, _ string, identifier string) (*domain.WatchlistEntry, error) {
	return m.watchlist[identifier], nil
}

// memBus records published messages per topic.
type memBus struct {
	domain.EventBus
	published map[string][][]byte
}

func newMemBus() *memBus { return &memBus{published: make(map[string][][]byte)} }

func (m *memBus) Publish(_ context.Context, _ string, topic string, payload []byte) error {
	m.published[topic] = append(m.published[topic], payload)
	return nil
}

type fixture struct {
	svc   *Service
	cache *memCache
	repo  *memRepo
	bus   *memBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ex, err := evidence.NewExtractor(evidence.DefaultTable())
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	f := &fixture{cache: newMemCache(), repo: newMemRepo(), bus: newMemBus()}
	f.svc = NewService(Config{
		Cache:      f.cache,
		Repository: f.repo,
		Bus:        f.bus,
		Extractor:  ex,
		Aggregator: risk.NewAggregator(risk.DefaultProfiles()),
		Narrator:   narrative.NewGenerator(),
		Provider:   detector.NewSimulatedProvider("sim", 42),
		Pipeline: domain.PipelineConfig{
			DetectorTimeout: time.Second,
			OverallBudget:   2 * time.Second,
			MaxConcurrent:   4,
		},
		CacheTTL: time.Minute,
		Logger:   slog.New(slog.NewTextHandler(testWriter{t}, nil)),
	})
	return f
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func scamConversation() *domain.NormalizedRequest {
	return &domain.NormalizedRequest{
		Domain:    domain.DomainConversation,
		SubjectID: "chat-7",
		Payload: domain.Payload{Messages: []domain.Message{
			{ID: "m1", Text: "Act now, your account will be suspended"},
			{ID: "m2", Text: "Send bitcoin to this wallet"},
		}},
	}
}

func TestProcessScamConversationIsHigh(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Process(context.Background(), "tenant-a", scamConversation())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if result.RiskLevel.Rank() < domain.RiskHigh.Rank() {
		t.Fatalf("level = %s (score %v), want at least HIGH", result.RiskLevel, result.OverallScore)
	}
	categories := map[string]bool{}
	for _, ev := range result.Evidence {
		categories[ev.Category] = true
	}
	if !categories["urgency_pressure"] || !categories["financial_request"] {
		t.Errorf("evidence categories = %v, want urgency_pressure and financial_request", categories)
	}
	var guidance bool
	for _, r := range result.Narrative.Recommendations {
		if strings.Contains(strings.ToLower(r), "do not send money") {
			guidance = true
		}
	}
	if !guidance {
		t.Errorf("recommendations %v missing do-not-send-money guidance", result.Narrative.Recommendations)
	}
	if result.OverallScore < 0 || result.OverallScore > 100 {
		t.Errorf("score %v out of bounds", result.OverallScore)
	}
}

func TestProcessValidationFailure(t *testing.T) {
	f := newFixture(t)

	req := &domain.NormalizedRequest{Domain: domain.DomainConversation, SubjectID: "x"}
	result, err := f.svc.Process(context.Background(), "tenant-a", req)
	if result != nil {
		t.Fatal("validation failure must not produce a result")
	}
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *domain.ValidationError", err)
	}
	if len(f.repo.saved) != 0 || f.cache.sets != 0 {
		t.Error("side effects ran for an invalid request")
	}
}

func TestProcessCacheHitIsByteIdentical(t *testing.T) {
	f := newFixture(t)
	req := scamConversation()

	first, err := f.svc.Process(context.Background(), "tenant-a", req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	second, err := f.svc.Process(context.Background(), "tenant-a", req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if !second.CacheHit {
		t.Fatal("second call should hit the cache")
	}
	// identical modulo the hit marker
	second.CacheHit = first.CacheHit
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("cached result differs:\n%s\n%s", a, b)
	}
	if len(f.repo.saved) != 1 {
		t.Errorf("store writes = %d, want 1 (hit must not re-store)", len(f.repo.saved))
	}
}

func TestProcessRealTimeBypassesCacheRead(t *testing.T) {
	f := newFixture(t)
	req := scamConversation()

	if _, err := f.svc.Process(context.Background(), "tenant-a", req); err != nil {
		t.Fatalf("Process: %v", err)
	}
	setsAfterFirst := f.cache.sets
	getsAfterFirst := f.cache.gets

	rt := scamConversation()
	rt.Options.RealTime = true
	result, err := f.svc.Process(context.Background(), "tenant-a", rt)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if result.CacheHit {
		t.Error("realTime request must not serve from cache")
	}
	if f.cache.gets != getsAfterFirst {
		t.Error("realTime request read the cache")
	}
	if f.cache.sets != setsAfterFirst+1 {
		t.Error("realTime request must still write through")
	}
}

func TestProcessCacheFailureIsMiss(t *testing.T) {
	f := newFixture(t)
	f.cache.getErr = errors.New("redis gone")

	result, err := f.svc.Process(context.Background(), "tenant-a", scamConversation())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.CacheHit {
		t.Error("broken cache served a hit")
	}
}

func TestProcessStoreFailureNotFatal(t *testing.T) {
	f := newFixture(t)
	f.repo.saveErr = errors.New("disk full")

	result, err := f.svc.Process(context.Background(), "tenant-a", scamConversation())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result == nil {
		t.Fatal("no result despite recoverable store failure")
	}
	if got := f.svc.StatsSnapshot().StoreErrors; got != 1 {
		t.Errorf("store errors = %d, want 1", got)
	}
}

func TestProcessPublishesAlerts(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Process(context.Background(), "tenant-a", scamConversation()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(f.bus.published[domain.TopicDetectionCompleted]) != 1 {
		t.Error("no completion event published")
	}
	if len(f.bus.published[domain.TopicDetectionAlert]) != 1 {
		t.Error("no alert event for a HIGH result")
	}
}

func TestProcessSubAnalysesDeclarationOrder(t *testing.T) {
	f := newFixture(t)
	req := &domain.NormalizedRequest{
		Domain:    domain.DomainContact,
		SubjectID: "c1",
		Payload:   domain.Payload{Contact: &domain.ContactInfo{Identifier: "x@example.com"}},
	}

	result, err := f.svc.Process(context.Background(), "tenant-a", req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := []string{"existence", "reputation", "watchlist"}
	if len(result.SubAnalyses) != len(want) {
		t.Fatalf("%d sub-analyses, want %d", len(result.SubAnalyses), len(want))
	}
	for i, name := range want {
		if result.SubAnalyses[i].Detector != name {
			t.Errorf("subAnalyses[%d] = %s, want %s", i, result.SubAnalyses[i].Detector, name)
		}
	}
}

func TestProcessEnabledDetectorFilter(t *testing.T) {
	f := newFixture(t)
	req := &domain.NormalizedRequest{
		Domain:    domain.DomainContact,
		SubjectID: "c1",
		Payload:   domain.Payload{Contact: &domain.ContactInfo{Identifier: "x@example.com"}},
		Options:   domain.Options{EnabledDetectors: []string{"watchlist"}},
	}

	result, err := f.svc.Process(context.Background(), "tenant-a", req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(result.SubAnalyses) != 1 || result.SubAnalyses[0].Detector != "watchlist" {
		t.Fatalf("subAnalyses = %+v, want only watchlist", result.SubAnalyses)
	}
}

func TestProcessWatchlistHitGoesCritical(t *testing.T) {
	f := newFixture(t)
	f.repo.watchlist["scammer@example.com"] = &domain.WatchlistEntry{
		Identifier: "scammer@example.com", Reason: "reported", Reports: 20,
	}
	req := &domain.NormalizedRequest{
		Domain:    domain.DomainContact,
		SubjectID: "c2",
		Payload:   domain.Payload{Contact: &domain.ContactInfo{Identifier: "scammer@example.com"}},
		Options:   domain.Options{EnabledDetectors: []string{"watchlist"}},
	}

	result, err := f.svc.Process(context.Background(), "tenant-a", req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.RiskLevel.Rank() < domain.RiskHigh.Rank() {
		t.Errorf("level = %s, want at least HIGH on watchlist match", result.RiskLevel)
	}
	var critical bool
	for _, fl := range result.Flags {
		if fl.Severity == domain.SeverityCritical {
			critical = true
		}
	}
	if !critical {
		t.Errorf("flags %v missing critical watchlist flag", result.Flags)
	}
}

func TestProcessCustomRuleFlag(t *testing.T) {
	f := newFixture(t)
	engine, err := risk.NewFlagRuleEngine(4)
	if err != nil {
		t.Fatalf("NewFlagRuleEngine: %v", err)
	}
	if err := engine.LoadRule(&domain.FlagRule{
		ID:           "r1",
		Name:         "crypto_plus_urgency",
		Expression:   `"crypto_lure" in categories || "financial_request" in categories`,
		Severity:     domain.SeverityHigh,
		Contribution: 15,
		Enabled:      true,
	}); err != nil {
		t.Fatalf("LoadRule: %v", err)
	}
	f.svc.ruleEngine = engine

	result, err := f.svc.Process(context.Background(), "tenant-a", scamConversation())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	var ruleFlag bool
	for _, fl := range result.Flags {
		if fl.Source == "rule" && fl.Type == "crypto_plus_urgency" {
			ruleFlag = true
		}
	}
	if !ruleFlag {
		t.Errorf("flags %v missing custom rule flag", result.Flags)
	}
}

func TestStatsSnapshot(t *testing.T) {
	f := newFixture(t)

	req := scamConversation()
	if _, err := f.svc.Process(context.Background(), "tenant-a", req); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Process(context.Background(), "tenant-a", req); err != nil {
		t.Fatal(err)
	}
	_, _ = f.svc.Process(context.Background(), "tenant-a", &domain.NormalizedRequest{Domain: "bogus"})

	stats := f.svc.StatsSnapshot()
	if stats.Processed != 2 {
		t.Errorf("processed = %d, want 2", stats.Processed)
	}
	if stats.CacheHits != 1 || stats.CacheMisses != 1 {
		t.Errorf("cache hits/misses = %d/%d, want 1/1", stats.CacheHits, stats.CacheMisses)
	}
	if stats.ValidationFailures != 1 {
		t.Errorf("validation failures = %d, want 1", stats.ValidationFailures)
	}
}
