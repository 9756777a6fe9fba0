// Package evaluate orchestrates a case evaluation: resolve the current tag
// set, load the tenant's active configuration, score, record the snapshot.
package evaluate

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensource-care/kestrel/internal/catalog"
	"github.com/opensource-care/kestrel/internal/domain"
	"github.com/opensource-care/kestrel/internal/matrix"
	"github.com/opensource-care/kestrel/internal/scoring"
	"github.com/opensource-care/kestrel/internal/snapshot"
)

// Service runs the evaluation pipeline. Stateless; safe for concurrent
// invocation across cases and tenants.
type Service struct {
	catalog  *catalog.Service
	store    *matrix.Store
	engine   *scoring.Engine
	recorder *snapshot.Recorder
}

// NewService creates an evaluation service.
func NewService(catalogSvc *catalog.Service, store *matrix.Store, engine *scoring.Engine, recorder *snapshot.Recorder) *Service {
	return &Service{
		catalog:  catalogSvc,
		store:    store,
		engine:   engine,
		recorder: recorder,
	}
}

// Request is the payload of an async evaluation request on the event bus.
type Request struct {
	CaseID string `json:"caseId"`
}

// EvaluateCase scores a case under the tenant's active configuration and
// records the result as a snapshot.
//
// A tenant without an active configuration fails with ErrNoActiveConfig:
// scoring without a defined policy is worse than refusing to score, so no
// default is ever substituted. The active-config read and the snapshot write
// happen within this single call against consistent single-statement reads,
// so every snapshot names a configuration that was genuinely active when it
// was read.
func (s *Service) EvaluateCase(ctx context.Context, tenantID, caseID string) (*domain.RiskSnapshot, error) {
	start := time.Now()

	tags, err := s.catalog.ResolveTags(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}

	cfg, err := s.store.GetActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Evaluate(tags, *cfg)
	if err != nil {
		return nil, err
	}

	snap, err := s.recorder.Record(ctx, tenantID, caseID,
		domain.ConfigRef{ID: cfg.ID, Version: cfg.Version}, result)
	if err != nil {
		return nil, err
	}

	slog.Debug("case evaluated",
		"tenant_id", tenantID,
		"case_id", caseID,
		"config_version", cfg.Version,
		"traffic_light", result.TrafficLight,
		"final_score", result.FinalScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return snap, nil
}
