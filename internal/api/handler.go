package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/pipeline"
	"github.com/opensource-finance/harrier/internal/risk"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	service    *pipeline.Service
	ruleEngine *risk.FlagRuleEngine
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, service *pipeline.Service, ruleEngine *risk.FlagRuleEngine, version string) *Handler {
	return &Handler{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		service:    service,
		ruleEngine: ruleEngine,
		version:    version,
	}
}

// AnalyzeRequest is the request body for the POST /analyze endpoints.
// The payload section matching the endpoint's domain must be populated.
type AnalyzeRequest struct {
	SubjectID string                  `json:"subjectId"`
	Messages  []domain.Message        `json:"messages,omitempty"`
	Contact   *domain.ContactInfo     `json:"contact,omitempty"`
	Trading   *domain.TradingActivity `json:"trading,omitempty"`
	Entity    *domain.EntityInfo      `json:"entity,omitempty"`
	Options   domain.Options          `json:"options"`
}

// AnalyzeConversation handles POST /analyze/conversation.
func (h *Handler) AnalyzeConversation(w http.ResponseWriter, r *http.Request) {
	h.analyze(w, r, domain.DomainConversation)
}

// AnalyzeContact handles POST /analyze/contact.
func (h *Handler) AnalyzeContact(w http.ResponseWriter, r *http.Request) {
	h.analyze(w, r, domain.DomainContact)
}

// AnalyzeTrading handles POST /analyze/trading.
func (h *Handler) AnalyzeTrading(w http.ResponseWriter, r *http.Request) {
	h.analyze(w, r, domain.DomainTrading)
}

// AnalyzeEntity handles POST /analyze/entity.
func (h *Handler) AnalyzeEntity(w http.ResponseWriter, r *http.Request) {
	h.analyze(w, r, domain.DomainVeracity)
}

// analyze runs one detection synchronously through the pipeline.
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request, analysisDomain domain.AnalysisDomain) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	normalized := &domain.NormalizedRequest{
		Domain:    analysisDomain,
		SubjectID: req.SubjectID,
		Payload: domain.Payload{
			Messages: req.Messages,
			Contact:  req.Contact,
			Trading:  req.Trading,
			Entity:   req.Entity,
		},
		Options: req.Options,
	}

	result, err := h.service.Process(ctx, tenantID, normalized)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": verr.Error(),
				"field": verr.Field,
			})
			return
		}
		slog.Error("detection failed", "domain", analysisDomain, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "detection failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// Stats returns pipeline counters and rule engine state.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pipeline": h.service.StatsSnapshot(),
		"rules":    h.ruleEngine.RulesCount(),
		"version":  h.version,
	})
}

// GetDetection retrieves a detection result by ID.
func (h *Handler) GetDetection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	detectionID := chi.URLParam(r, "id")

	if detectionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "detection id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	result, err := h.repo.GetDetection(ctx, tenantID, detectionID)
	if err != nil {
		slog.Error("failed to get detection", "id", detectionID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "detection not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListSubjectDetections retrieves recent detections for a subject.
// The optional ?since= query parameter is an RFC 3339 timestamp;
// it defaults to 30 days ago.
func (h *Handler) ListSubjectDetections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	subjectID := chi.URLParam(r, "id")

	if subjectID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "subject id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	since := time.Now().AddDate(0, 0, -30)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be an RFC 3339 timestamp",
			})
			return
		}
		since = parsed
	}

	results, err := h.repo.ListDetectionsBySubject(ctx, tenantID, subjectID, since)
	if err != nil {
		slog.Error("failed to list detections", "subject_id", subjectID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list detections",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"detections": results,
		"count":      len(results),
	})
}

// GlobalTenantID is used for flag rules that apply to all tenants.
const GlobalTenantID = "*"

// ListRules returns all loaded flag rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.ruleEngine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a flag rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.ruleEngine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a flag rule.
type CreateRuleRequest struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Expression   string          `json:"expression"`
	Severity     domain.Severity `json:"severity"`
	Contribution float64         `json:"contribution"`
	Domains      []string        `json:"domains,omitempty"`
	Enabled      bool            `json:"enabled"`
}

// CreateRule creates a new flag rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	severity := req.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}

	rule := &domain.FlagRule{
		ID:           req.ID,
		Name:         req.Name,
		Description:  req.Description,
		Expression:   req.Expression,
		Severity:     severity,
		Contribution: req.Contribution,
		Domains:      req.Domains,
		Enabled:      req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.ruleEngine.LoadRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	// Persist to repository (global tenant ID)
	if h.repo != nil {
		if err := h.repo.SaveFlagRule(ctx, GlobalTenantID, rule); err != nil {
			slog.Error("failed to save flag rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("flag rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// DeleteRule removes a flag rule from the database and reloads the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteFlagRule(ctx, GlobalTenantID, ruleID); err != nil {
		slog.Error("failed to delete flag rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	// Auto-reload the engine after delete
	dbRules, err := h.repo.ListFlagRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to reload rules after delete", "error", err)
	} else if err := h.ruleEngine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine after delete", "error", err)
	}

	slog.Info("flag rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Rule deleted and engine reloaded.",
	})
}

// ReloadRules reloads all flag rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	// Load rules from database (global rules)
	dbRules, err := h.repo.ListFlagRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	// Reload into engine
	if err := h.ruleEngine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   h.ruleEngine.RulesCount(),
	})
}

// CreateWatchlistEntryRequest is the request body for adding a
// watchlist entry.
type CreateWatchlistEntryRequest struct {
	Identifier string `json:"identifier"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason,omitempty"`
	Reports    int    `json:"reports"`
}

// CreateWatchlistEntry handles POST /watchlist.
func (h *Handler) CreateWatchlistEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateWatchlistEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Identifier == "" || req.Kind == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "identifier and kind are required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	entry := &domain.WatchlistEntry{
		ID:         uuid.New().String(),
		Identifier: req.Identifier,
		Kind:       req.Kind,
		Reason:     req.Reason,
		Reports:    req.Reports,
		AddedAt:    time.Now().UTC(),
	}

	if err := h.repo.SaveWatchlistEntry(ctx, tenantID, entry); err != nil {
		slog.Error("failed to save watchlist entry", "identifier", req.Identifier, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save watchlist entry",
		})
		return
	}

	slog.Info("watchlist entry saved", "identifier", entry.Identifier, "kind", entry.Kind)
	writeJSON(w, http.StatusCreated, entry)
}

// LookupWatchlistEntry handles GET /watchlist/{identifier}.
func (h *Handler) LookupWatchlistEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	identifier := chi.URLParam(r, "identifier")

	if identifier == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "identifier is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	entry, err := h.repo.LookupWatchlist(ctx, tenantID, identifier)
	if err != nil {
		slog.Error("watchlist lookup failed", "identifier", identifier, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "watchlist lookup failed",
		})
		return
	}
	if entry == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "identifier not on watchlist",
		})
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// ListWatchlist handles GET /watchlist.
func (h *Handler) ListWatchlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	entries, err := h.repo.ListWatchlist(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list watchlist", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list watchlist",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
