package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/harrier/internal/detector"
	"github.com/opensource-finance/harrier/internal/domain"
)

// Orchestrator fans a request out to its detector set. Detectors run
// concurrently under a semaphore; results come back in declaration
// order regardless of completion order. A detector that panics or
// errors becomes a Failed sub-analysis; one that outlives its budget
// becomes Degraded. Nothing a detector does can fail the pipeline.
type Orchestrator struct {
	detectorTimeout time.Duration
	overallBudget   time.Duration
	maxConcurrent   int
}

// NewOrchestrator builds an orchestrator. The individual timeout is
// clipped to the overall budget.
func NewOrchestrator(cfg domain.PipelineConfig) *Orchestrator {
	detectorTimeout := cfg.DetectorTimeout
	if detectorTimeout <= 0 {
		detectorTimeout = 2 * time.Second
	}
	overallBudget := cfg.OverallBudget
	if overallBudget <= 0 {
		overallBudget = 5 * time.Second
	}
	if detectorTimeout > overallBudget {
		detectorTimeout = overallBudget
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Orchestrator{
		detectorTimeout: detectorTimeout,
		overallBudget:   overallBudget,
		maxConcurrent:   maxConcurrent,
	}
}

// Run invokes every detector and returns one sub-analysis per detector
// in declaration order.
func (o *Orchestrator) Run(ctx context.Context, req *domain.NormalizedRequest, detectors []detector.Detector) []domain.SubAnalysis {
	if len(detectors) == 0 {
		return nil
	}

	budgetCtx, cancel := context.WithTimeout(ctx, o.overallBudget)
	defer cancel()

	results := make([]domain.SubAnalysis, len(detectors))
	var wg sync.WaitGroup

	sem := make(chan struct{}, o.maxConcurrent)

	for i, det := range detectors {
		wg.Add(1)
		go func(idx int, d detector.Detector) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = o.invoke(budgetCtx, d, req)
		}(i, det)
	}

	wg.Wait()

	return results
}

// invoke runs one detector under its individual timeout, containing
// panics and errors at this boundary.
func (o *Orchestrator) invoke(ctx context.Context, det detector.Detector, req *domain.NormalizedRequest) domain.SubAnalysis {
	start := time.Now()

	dctx, cancel := context.WithTimeout(ctx, o.detectorTimeout)
	defer cancel()

	type outcome struct {
		sub *domain.SubAnalysis
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		sub, err := det.Detect(dctx, req)
		done <- outcome{sub: sub, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return domain.SubAnalysis{
				Detector:   det.Name(),
				Status:     domain.StatusFailed,
				Diagnostic: out.err.Error(),
				ElapsedMS:  time.Since(start).Milliseconds(),
			}
		}
		if out.sub == nil {
			return domain.SubAnalysis{
				Detector:   det.Name(),
				Status:     domain.StatusFailed,
				Diagnostic: "detector returned no sub-analysis",
				ElapsedMS:  time.Since(start).Milliseconds(),
			}
		}
		return *out.sub
	case <-dctx.Done():
		diagnostic := "detector timeout"
		if ctx.Err() != nil {
			diagnostic = "overall budget exceeded"
		}
		return domain.SubAnalysis{
			Detector:   det.Name(),
			Status:     domain.StatusDegraded,
			Diagnostic: diagnostic,
			ElapsedMS:  time.Since(start).Milliseconds(),
		}
	}
}
