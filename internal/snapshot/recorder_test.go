package snapshot

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-care/kestrel/internal/cache"
	"github.com/opensource-care/kestrel/internal/domain"
	"github.com/opensource-care/kestrel/internal/repository"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "snapshot_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testResult(raw float64, light domain.TrafficLight) *domain.ScoreResult {
	return &domain.ScoreResult{
		RawScore:     raw,
		FinalScore:   raw,
		TrafficLight: light,
		Contributions: []domain.Contribution{
			{IndicatorID: "IND_NEGLECT", Dimension: "BODY", Severity: 2, Weight: raw / 2, Points: raw},
		},
		Dimensions: []domain.DimensionSubtotal{
			{Dimension: "BODY", Subtotal: raw, TagCount: 1},
		},
		Reduction: domain.ReductionDetail{Kind: "none"},
	}
}

func TestRecordAndLatest(t *testing.T) {
	repo := newTestRepo(t)
	recorder := NewRecorder(repo, nil, nil)
	ctx := context.Background()
	tenant := "tenant-001"
	ref := domain.ConfigRef{ID: "cfg-1", Version: "v1"}

	snap, err := recorder.Record(ctx, tenant, "case-001", ref, testResult(6, domain.LightYellow))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if snap.ID == "" || snap.CreatedAt.IsZero() {
		t.Fatalf("snapshot missing identity: %+v", snap)
	}
	if snap.ConfigVersion != "v1" {
		t.Errorf("expected config version v1, got %s", snap.ConfigVersion)
	}

	latest, err := recorder.Latest(ctx, tenant, "case-001")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.ID != snap.ID {
		t.Errorf("expected latest %s, got %s", snap.ID, latest.ID)
	}
	if latest.Result.RawScore != 6 || latest.Result.TrafficLight != domain.LightYellow {
		t.Errorf("result not round-tripped: %+v", latest.Result)
	}
	if len(latest.Result.Contributions) != 1 || latest.Result.Contributions[0].IndicatorID != "IND_NEGLECT" {
		t.Errorf("contributions not round-tripped: %+v", latest.Result.Contributions)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	recorder := NewRecorder(repo, nil, nil)
	ctx := context.Background()
	tenant := "tenant-001"
	ref := domain.ConfigRef{ID: "cfg-1", Version: "v1"}

	for _, raw := range []float64{2, 4, 12} {
		if _, err := recorder.Record(ctx, tenant, "case-001", ref, testResult(raw, domain.LightGreen)); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	history, err := recorder.History(ctx, tenant, "case-001")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(history))
	}
	if history[0].Result.RawScore != 12 || history[2].Result.RawScore != 2 {
		t.Errorf("history not newest first: %v, %v", history[0].Result.RawScore, history[2].Result.RawScore)
	}
}

func TestLatestNoSnapshot(t *testing.T) {
	recorder := NewRecorder(newTestRepo(t), nil, nil)

	_, err := recorder.Latest(context.Background(), "tenant-001", "case-never-scored")
	if !errors.Is(err, domain.ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot, got %v", err)
	}
}

// Record overwrites the cached latest entry so reads after a new evaluation
// never serve the previous snapshot.
func TestLatestServedFromCache(t *testing.T) {
	repo := newTestRepo(t)
	lru := cache.NewLRUCache(16)
	recorder := NewRecorder(repo, lru, nil)
	ctx := context.Background()
	tenant := "tenant-001"
	ref := domain.ConfigRef{ID: "cfg-1", Version: "v1"}

	first, err := recorder.Record(ctx, tenant, "case-001", ref, testResult(3, domain.LightGreen))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	cached, err := lru.GetLatestSnapshot(ctx, tenant, "case-001")
	if err != nil || cached == nil {
		t.Fatalf("expected cached snapshot after Record, got %v, %v", cached, err)
	}
	if cached.ID != first.ID {
		t.Errorf("cache holds wrong snapshot: %s", cached.ID)
	}

	second, err := recorder.Record(ctx, tenant, "case-001", ref, testResult(9, domain.LightYellow))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	latest, err := recorder.Latest(ctx, tenant, "case-001")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("expected latest %s after re-evaluation, got %s", second.ID, latest.ID)
	}
}
