package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-care/kestrel/internal/catalog"
	"github.com/opensource-care/kestrel/internal/domain"
	"github.com/opensource-care/kestrel/internal/evaluate"
	"github.com/opensource-care/kestrel/internal/matrix"
	"github.com/opensource-care/kestrel/internal/snapshot"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	catalog    *catalog.Service
	store      *matrix.Store
	activation *matrix.ActivationManager
	evaluator  *evaluate.Service
	recorder   *snapshot.Recorder
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, catalogSvc *catalog.Service, store *matrix.Store, activation *matrix.ActivationManager, evaluator *evaluate.Service, recorder *snapshot.Recorder, version string) *Handler {
	return &Handler{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		catalog:    catalogSvc,
		store:      store,
		activation: activation,
		evaluator:  evaluator,
		recorder:   recorder,
		version:    version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

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

// EvaluateResponse is the response for POST /cases/{caseID}/evaluate.
type EvaluateResponse struct {
	Snapshot *domain.RiskSnapshot `json:"snapshot"`
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// EvaluateCase handles POST /cases/{caseID}/evaluate.
// With ?async=true the request is published to the event bus and picked up
// by a worker; the caller polls the snapshot endpoints for the result.
func (h *Handler) EvaluateCase(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "caseID")

	if caseID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "case id is required",
		})
		return
	}

	if r.URL.Query().Get("async") == "true" && h.bus != nil {
		payload, _ := json.Marshal(evaluate.Request{CaseID: caseID})
		if err := h.bus.Publish(ctx, tenantID, domain.TopicEvaluateRequest, payload); err != nil {
			slog.Error("failed to publish evaluate request",
				"tenant_id", tenantID,
				"case_id", caseID,
				"error", err,
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to enqueue evaluation",
			})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"caseId": caseID,
			"status": "queued",
		})
		return
	}

	snap, err := h.evaluator.EvaluateCase(ctx, tenantID, caseID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := EvaluateResponse{Snapshot: snap}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// ListSnapshots handles GET /cases/{caseID}/snapshots.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "caseID")

	snaps, err := h.recorder.History(ctx, tenantID, caseID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

// LatestSnapshot handles GET /cases/{caseID}/snapshots/latest.
func (h *Handler) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "caseID")

	snap, err := h.recorder.Latest(ctx, tenantID, caseID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// PutTagRequest is the request body for PUT /cases/{caseID}/tags/{indicatorID}.
type PutTagRequest struct {
	Severity *int `json:"severity,omitempty"`
}

// PutTag handles PUT /cases/{caseID}/tags/{indicatorID}.
// Re-tagging an already tagged indicator replaces the severity override.
func (h *Handler) PutTag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "caseID")
	indicatorID := chi.URLParam(r, "indicatorID")

	var req PutTagRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	if err := h.catalog.PutTag(ctx, tenantID, caseID, indicatorID, req.Severity); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"caseId":      caseID,
		"indicatorId": indicatorID,
	})
}

// DeleteTag handles DELETE /cases/{caseID}/tags/{indicatorID}.
func (h *Handler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "caseID")
	indicatorID := chi.URLParam(r, "indicatorID")

	if err := h.catalog.RemoveTag(ctx, tenantID, caseID, indicatorID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListTags handles GET /cases/{caseID}/tags. Tags are returned resolved
// against the catalog: label, category and effective severity.
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "caseID")

	tags, err := h.catalog.ResolveTags(ctx, tenantID, caseID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tags":  tags,
		"count": len(tags),
	})
}

// IndicatorRequest is the request body for indicator create and update.
type IndicatorRequest struct {
	ID              string `json:"id,omitempty"`
	Label           string `json:"label"`
	Description     string `json:"description,omitempty"`
	Category        string `json:"category,omitempty"`
	SortOrder       int    `json:"sortOrder,omitempty"`
	DefaultSeverity *int   `json:"defaultSeverity,omitempty"`
}

// CreateIndicator handles POST /indicators.
func (h *Handler) CreateIndicator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req IndicatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	ind := &domain.Indicator{
		ID:              req.ID,
		TenantID:        tenantID,
		Label:           req.Label,
		Description:     req.Description,
		Category:        req.Category,
		SortOrder:       req.SortOrder,
		DefaultSeverity: req.DefaultSeverity,
		Enabled:         true,
	}

	if err := h.catalog.SaveIndicator(ctx, tenantID, ind); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ind)
}

// UpdateIndicator handles PUT /indicators/{id}.
func (h *Handler) UpdateIndicator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	indicatorID := chi.URLParam(r, "id")

	existing, err := h.catalog.GetIndicator(ctx, tenantID, indicatorID)
	if err != nil {
		writeError(w, err)
		return
	}

	var req IndicatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	existing.Label = req.Label
	existing.Description = req.Description
	existing.Category = req.Category
	existing.SortOrder = req.SortOrder
	existing.DefaultSeverity = req.DefaultSeverity

	if err := h.catalog.SaveIndicator(ctx, tenantID, existing); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, existing)
}

// DisableIndicator handles POST /indicators/{id}/disable. Indicators are
// never deleted; disabling keeps historical snapshots interpretable.
func (h *Handler) DisableIndicator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	indicatorID := chi.URLParam(r, "id")

	if err := h.catalog.DisableIndicator(ctx, tenantID, indicatorID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":     indicatorID,
		"status": "disabled",
	})
}

// ListIndicators handles GET /indicators. Disabled indicators are included
// with ?includeDisabled=true.
func (h *Handler) ListIndicators(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	includeDisabled := r.URL.Query().Get("includeDisabled") == "true"

	indicators, err := h.catalog.ListIndicators(ctx, tenantID, includeDisabled)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"indicators": indicators,
		"count":      len(indicators),
	})
}

// CreateConfigRequest is the request body for POST /configs.
type CreateConfigRequest struct {
	Version  string                `json:"version"`
	Document domain.ConfigDocument `json:"document"`
}

// CreateConfig handles POST /configs. The new version is validated against
// the current catalog and stored inactive; activation is a separate call.
func (h *Handler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	cfg, err := h.store.Create(ctx, tenantID, req.Version, req.Document, GetActorID(ctx))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, cfg)
}

// ActivateConfig handles POST /configs/{id}/activate.
func (h *Handler) ActivateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	configID := chi.URLParam(r, "id")

	cfg, err := h.activation.Activate(ctx, tenantID, configID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// GetActiveConfig handles GET /configs/active.
func (h *Handler) GetActiveConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	cfg, err := h.store.GetActive(ctx, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// ListConfigs handles GET /configs, newest first.
func (h *Handler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	configs, err := h.store.History(ctx, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"configs": configs,
		"count":   len(configs),
	})
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, domain.ErrConfigInvalid),
		errors.Is(err, domain.ErrUnknownIndicator):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateVersion):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNoSnapshot),
		errors.Is(err, domain.ErrNoActiveConfig):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		writeJSON(w, status, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
