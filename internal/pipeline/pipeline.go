// Package pipeline wires the detection stages together: validation,
// cache lookup, evidence extraction, detector fan-out, risk
// aggregation, narrative generation, and the cache/store/bus side
// effects. Only validation failures surface as errors; every other
// fault degrades the result instead of losing it.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/detector"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/evidence"
	"github.com/opensource-finance/harrier/internal/narrative"
	"github.com/opensource-finance/harrier/internal/risk"
)

// Service runs the detection pipeline end to end.
type Service struct {
	cache        domain.Cache
	repo         domain.Repository
	bus          domain.EventBus
	extractor    *evidence.Extractor
	aggregator   *risk.Aggregator
	ruleEngine   *risk.FlagRuleEngine
	narrator     *narrative.Generator
	provider     detector.Provider
	orchestrator *Orchestrator
	logger       *slog.Logger
	cacheTTL     time.Duration

	stats Stats
}

// Stats are the pipeline's running counters, exposed at /stats.
type Stats struct {
	Processed          atomic.Int64
	CacheHits          atomic.Int64
	CacheMisses        atomic.Int64
	ValidationFailures atomic.Int64
	Alerts             atomic.Int64
	StoreErrors        atomic.Int64
}

// StatsSnapshot is the JSON-friendly view of Stats.
type StatsSnapshot struct {
	Processed          int64 `json:"processed"`
	CacheHits          int64 `json:"cacheHits"`
	CacheMisses        int64 `json:"cacheMisses"`
	ValidationFailures int64 `json:"validationFailures"`
	Alerts             int64 `json:"alerts"`
	StoreErrors        int64 `json:"storeErrors"`
}

// Config collects the pipeline's collaborators.
type Config struct {
	Cache      domain.Cache
	Repository domain.Repository
	Bus        domain.EventBus
	Extractor  *evidence.Extractor
	Aggregator *risk.Aggregator
	RuleEngine *risk.FlagRuleEngine // optional
	Narrator   *narrative.Generator
	Provider   detector.Provider
	Pipeline   domain.PipelineConfig
	CacheTTL   time.Duration
	Logger     *slog.Logger
}

// NewService assembles the pipeline.
func NewService(cfg Config) *Service {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cache:        cfg.Cache,
		repo:         cfg.Repository,
		bus:          cfg.Bus,
		extractor:    cfg.Extractor,
		aggregator:   cfg.Aggregator,
		ruleEngine:   cfg.RuleEngine,
		narrator:     cfg.Narrator,
		provider:     cfg.Provider,
		orchestrator: NewOrchestrator(cfg.Pipeline),
		logger:       logger,
		cacheTTL:     ttl,
	}
}

// Process runs one detection. The returned error is non-nil only for
// validation failures; any other trouble yields a complete, possibly
// degraded, DetectionResult.
func (s *Service) Process(ctx context.Context, tenantID string, req *domain.NormalizedRequest) (*domain.DetectionResult, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		s.stats.ValidationFailures.Add(1)
		return nil, err
	}

	key := req.CacheKey()

	// realTime bypasses the read path, never the write path
	if !req.Options.RealTime {
		if cached := s.cacheRead(ctx, tenantID, key); cached != nil {
			s.stats.Processed.Add(1)
			s.stats.CacheHits.Add(1)
			cached.CacheHit = true
			return cached, nil
		}
		s.stats.CacheMisses.Add(1)
	}

	evidenceItems := s.extractor.Extract(req)

	detectors := detector.Filter(
		detector.ForDomain(req.Domain, tenantID, detector.Deps{
			Provider:   s.provider,
			Repository: s.repo,
			Counter:    s.counter(),
		}),
		req.Options.EnabledDetectors,
	)
	subs := s.orchestrator.Run(ctx, req, detectors)

	assessment := s.aggregator.Aggregate(req.Domain, evidenceItems, subs)
	assessment = s.applyRules(ctx, req, assessment, subs)

	result := &domain.DetectionResult{
		ID:           uuid.New().String(),
		Domain:       req.Domain,
		SubjectID:    req.SubjectID,
		OverallScore: assessment.Score,
		RiskLevel:    assessment.Level,
		Confidence:   assessment.Confidence,
		Flags:        assessment.Flags,
		Evidence:     evidenceItems,
		SubAnalyses:  subs,
		Narrative:    s.narrator.Generate(req.Domain, assessment.Level, assessment.Confidence, assessment.Flags),
		Degraded:     anyNotOK(subs),
		ProcessingMS: time.Since(start).Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}

	s.cacheWrite(ctx, tenantID, key, result)
	s.store(ctx, tenantID, result)
	s.publish(ctx, tenantID, result)

	s.stats.Processed.Add(1)
	s.logger.Info("detection processed",
		"id", result.ID,
		"tenant", tenantID,
		"domain", result.Domain,
		"score", result.OverallScore,
		"level", result.RiskLevel,
		"confidence", result.Confidence,
		"degraded", result.Degraded,
		"ms", result.ProcessingMS,
	)

	return result, nil
}

// StatsSnapshot returns the current counters.
func (s *Service) StatsSnapshot() StatsSnapshot {
	return StatsSnapshot{
		Processed:          s.stats.Processed.Load(),
		CacheHits:          s.stats.CacheHits.Load(),
		CacheMisses:        s.stats.CacheMisses.Load(),
		ValidationFailures: s.stats.ValidationFailures.Load(),
		Alerts:             s.stats.Alerts.Load(),
		StoreErrors:        s.stats.StoreErrors.Load(),
	}
}

// applyRules evaluates the custom flag rules, if an engine is wired.
func (s *Service) applyRules(ctx context.Context, req *domain.NormalizedRequest, assessment risk.Assessment, subs []domain.SubAnalysis) risk.Assessment {
	if s.ruleEngine == nil || s.ruleEngine.RulesCount() == 0 {
		return assessment
	}

	categories := make([]string, 0, len(assessment.Flags))
	flagTypes := make([]string, 0, len(assessment.Flags))
	for _, f := range assessment.Flags {
		flagTypes = append(flagTypes, f.Type)
		if f.Source == "evidence" {
			categories = append(categories, f.Type)
		}
	}
	detectorScores := make(map[string]float64, len(subs))
	for _, sub := range subs {
		if sub.Status != domain.StatusFailed {
			detectorScores[sub.Detector] = sub.Score
		}
	}

	ruleFlags := s.ruleEngine.Evaluate(ctx, &risk.RuleInput{
		Domain:         req.Domain,
		Score:          assessment.Score,
		Categories:     categories,
		FlagTypes:      flagTypes,
		DetectorScores: detectorScores,
		Confidence:     assessment.Confidence,
	})
	return s.aggregator.ApplyRuleFlags(req.Domain, assessment, ruleFlags)
}

// counter adapts the cache's atomic counters for detector velocity
// checks. Nil when no cache is wired.
func (s *Service) counter() detector.CounterFunc {
	if s.cache == nil {
		return nil
	}
	return func(ctx context.Context, tenantID, key string, window time.Duration) (int64, error) {
		return s.cache.IncrementCounter(ctx, tenantID, key, window)
	}
}

// cacheRead treats every cache problem as a miss.
func (s *Service) cacheRead(ctx context.Context, tenantID, key string) *domain.DetectionResult {
	if s.cache == nil {
		return nil
	}
	result, err := s.cache.GetResult(ctx, tenantID, key)
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss", "key", key, "error", err)
		return nil
	}
	return result
}

func (s *Service) cacheWrite(ctx context.Context, tenantID, key string, result *domain.DetectionResult) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetResult(ctx, tenantID, key, result, s.cacheTTL); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// store persists the result best-effort; persistence failure is logged
// and swallowed, never fatal to the caller.
func (s *Service) store(ctx context.Context, tenantID string, result *domain.DetectionResult) {
	if s.repo == nil {
		return
	}
	if err := s.repo.SaveDetection(ctx, tenantID, result); err != nil {
		s.stats.StoreErrors.Add(1)
		s.logger.Error("detection persist failed", "id", result.ID, "error", err)
	}
}

// publish emits completion and, for HIGH/CRITICAL, alert events.
func (s *Service) publish(ctx context.Context, tenantID string, result *domain.DetectionResult) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("marshal detection for bus", "id", result.ID, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, tenantID, domain.TopicDetectionCompleted, payload); err != nil {
		s.logger.Warn("publish detection completed", "id", result.ID, "error", err)
	}
	if result.RiskLevel.Rank() >= domain.RiskHigh.Rank() {
		s.stats.Alerts.Add(1)
		if err := s.bus.Publish(ctx, tenantID, domain.TopicDetectionAlert, payload); err != nil {
			s.logger.Warn("publish detection alert", "id", result.ID, "error", err)
		}
	}
}

func anyNotOK(subs []domain.SubAnalysis) bool {
	for _, sub := range subs {
		if sub.Status != domain.StatusOK {
			return true
		}
	}
	return false
}
