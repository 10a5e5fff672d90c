// Package worker provides async detection processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/pipeline"
)

// Worker runs detections asynchronously from the EventBus. Each
// subscribed tenant's detection.requested messages are fed through the
// pipeline; results are persisted and published by the pipeline itself.
type Worker struct {
	bus     domain.EventBus
	service *pipeline.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = global worker)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, service *pipeline.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		service: service,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicDetectionRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicDetectionRequested, func(ctx context.Context, msg *domain.BusMessage) error {
		return w.processRequest(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicDetectionRequested,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.BusMessage) error {
	return w.processRequest(ctx, msg.TenantID, msg)
}

// DetectionRequestMessage is the payload for async detection requests.
type DetectionRequestMessage struct {
	TenantID string                   `json:"tenantId,omitempty"`
	TraceID  string                   `json:"traceId,omitempty"`
	Request  domain.NormalizedRequest `json:"request"`
}

// processRequest runs one detection through the pipeline.
func (w *Worker) processRequest(ctx context.Context, tenantID string, msg *domain.BusMessage) error {
	start := time.Now()

	var reqMsg DetectionRequestMessage
	if err := json.Unmarshal(msg.Payload, &reqMsg); err != nil {
		slog.Error("failed to parse detection request message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if reqMsg.TenantID != "" {
		tenantID = reqMsg.TenantID
	}

	traceID := reqMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing detection request",
		"tenant_id", tenantID,
		"domain", reqMsg.Request.Domain,
		"subject_id", reqMsg.Request.SubjectID,
		"trace_id", traceID,
	)

	result, err := w.service.Process(ctx, tenantID, &reqMsg.Request)
	if err != nil {
		// Malformed requests are dropped, not retried: they can never
		// succeed and would poison the subscription.
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			slog.Warn("dropping invalid detection request",
				"tenant_id", tenantID,
				"trace_id", traceID,
				"field", verr.Field,
				"reason", verr.Reason,
			)
			return nil
		}
		slog.Error("detection processing failed",
			"tenant_id", tenantID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	slog.Info("detection request processed",
		"id", result.ID,
		"tenant_id", tenantID,
		"domain", result.Domain,
		"level", result.RiskLevel,
		"score", result.OverallScore,
		"trace_id", traceID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
