package matrix

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/opensource-care/kestrel/internal/domain"
)

// ActivationManager swaps which configuration version is active for a
// tenant. Concurrent activations for the same tenant serialize on a
// per-tenant mutex; different tenants never contend. The repository's
// transactional swap plus the partial unique index make a lost update
// impossible even if a second writer bypassed this manager.
type ActivationManager struct {
	repo domain.Repository
	bus  domain.EventBus // optional, fire-and-forget notifications

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewActivationManager creates an activation manager. bus may be nil.
func NewActivationManager(repo domain.Repository, bus domain.EventBus) *ActivationManager {
	return &ActivationManager{
		repo:  repo,
		bus:   bus,
		locks: make(map[string]*sync.Mutex),
	}
}

// Activate makes configID the tenant's single active configuration.
// Activating the already-active configuration succeeds idempotently.
// A config belonging to another tenant fails with ErrNotFound.
func (m *ActivationManager) Activate(ctx context.Context, tenantID, configID string) (*domain.MatrixConfig, error) {
	lock := m.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	wasActive := false
	if current, err := m.repo.GetActiveConfig(ctx, tenantID); err == nil && current.ID == configID {
		wasActive = true
	}

	cfg, err := m.repo.ActivateConfig(ctx, tenantID, configID)
	if err != nil {
		return nil, err
	}

	// No event on the idempotent no-op: no new audit noise.
	if !wasActive {
		m.publishActivated(ctx, cfg)
	}

	return cfg, nil
}

func (m *ActivationManager) tenantLock(tenantID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[tenantID] = lock
	}
	return lock
}

func (m *ActivationManager) publishActivated(ctx context.Context, cfg *domain.MatrixConfig) {
	if m.bus == nil {
		return
	}

	payload, _ := json.Marshal(map[string]string{
		"configId": cfg.ID,
		"version":  cfg.Version,
	})
	if err := m.bus.Publish(ctx, cfg.TenantID, domain.TopicConfigActivated, payload); err != nil {
		slog.Warn("failed to publish activation event",
			"tenant_id", cfg.TenantID,
			"config_id", cfg.ID,
			"error", err,
		)
	}
}
