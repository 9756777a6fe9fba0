// Package snapshot records immutable risk evaluation snapshots.
package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-care/kestrel/internal/domain"
)

// DefaultCacheTTL bounds how long a latest-snapshot cache entry lives when
// no Record overwrites it first.
const DefaultCacheTTL = 5 * time.Minute

// Recorder persists scoring results as append-only snapshots. The public
// contract has no update or delete: once recorded, a snapshot is evidence.
type Recorder struct {
	repo     domain.Repository
	cache    domain.Cache    // optional latest-read cache
	bus      domain.EventBus // optional, fire-and-forget notifications
	cacheTTL time.Duration
}

// NewRecorder creates a snapshot recorder. cache and bus may be nil.
func NewRecorder(repo domain.Repository, cache domain.Cache, bus domain.EventBus) *Recorder {
	return &Recorder{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		cacheTTL: DefaultCacheTTL,
	}
}

// Record persists one evaluation result tied to the case and the
// configuration version used. Called exactly once per evaluation.
func (r *Recorder) Record(ctx context.Context, tenantID, caseID string, ref domain.ConfigRef, result *domain.ScoreResult) (*domain.RiskSnapshot, error) {
	snap := &domain.RiskSnapshot{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		CaseID:        caseID,
		ConfigID:      ref.ID,
		ConfigVersion: ref.Version,
		Result:        *result,
		CreatedAt:     time.Now().UTC(),
	}

	if err := r.repo.SaveSnapshot(ctx, tenantID, snap); err != nil {
		return nil, err
	}

	// The new snapshot is by construction the latest for this case.
	if r.cache != nil {
		if err := r.cache.SetLatestSnapshot(ctx, tenantID, caseID, snap, r.cacheTTL); err != nil {
			slog.Warn("failed to cache latest snapshot",
				"tenant_id", tenantID,
				"case_id", caseID,
				"error", err,
			)
		}
	}

	r.publishRecorded(ctx, snap)

	return snap, nil
}

// History returns the case's snapshots, newest first.
func (r *Recorder) History(ctx context.Context, tenantID, caseID string) ([]*domain.RiskSnapshot, error) {
	return r.repo.ListSnapshots(ctx, tenantID, caseID)
}

// Latest returns the most recent snapshot for a case, or ErrNoSnapshot if
// the case has never been evaluated.
func (r *Recorder) Latest(ctx context.Context, tenantID, caseID string) (*domain.RiskSnapshot, error) {
	if r.cache != nil {
		if snap, err := r.cache.GetLatestSnapshot(ctx, tenantID, caseID); err == nil && snap != nil {
			return snap, nil
		}
	}

	snap, err := r.repo.LatestSnapshot(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.SetLatestSnapshot(ctx, tenantID, caseID, snap, r.cacheTTL); err != nil {
			slog.Warn("failed to cache latest snapshot",
				"tenant_id", tenantID,
				"case_id", caseID,
				"error", err,
			)
		}
	}

	return snap, nil
}

func (r *Recorder) publishRecorded(ctx context.Context, snap *domain.RiskSnapshot) {
	if r.bus == nil {
		return
	}

	payload, _ := json.Marshal(map[string]string{
		"snapshotId":   snap.ID,
		"caseId":       snap.CaseID,
		"trafficLight": string(snap.Result.TrafficLight),
	})
	if err := r.bus.Publish(ctx, snap.TenantID, domain.TopicSnapshotRecorded, payload); err != nil {
		slog.Warn("failed to publish snapshot event",
			"tenant_id", snap.TenantID,
			"snapshot_id", snap.ID,
			"error", err,
		)
	}
}
