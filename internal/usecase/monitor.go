package usecase

import (
	"context"
	"fmt"

	"github.com/vitos/swap_monitor/internal/domain"
	"go.uber.org/zap"
)

// MonitorService is the read and control surface consumed by the web layer.
type MonitorService struct {
	store      *InstrumentStore
	symbols    *SymbolSet
	scheduler  *RefreshScheduler
	supervisor *IngestionSupervisor
	logger     *zap.Logger

	// lifetime bounds background command work; see BindLifetime.
	lifetime context.Context
}

func NewMonitorService(
	store *InstrumentStore,
	symbols *SymbolSet,
	scheduler *RefreshScheduler,
	supervisor *IngestionSupervisor,
	logger *zap.Logger,
) *MonitorService {
	return &MonitorService{
		store:      store,
		symbols:    symbols,
		scheduler:  scheduler,
		supervisor: supervisor,
		logger:     logger,
		lifetime:   context.Background(),
	}
}

// BindLifetime ties background command work (the forced refresh passes) to
// the process lifetime, so a shutdown cancels them instead of letting a full
// pass run on after the rest of the monitor stopped.
func (m *MonitorService) BindLifetime(ctx context.Context) {
	m.lifetime = ctx
}

// Snapshot returns the current stats and ranking tables.
func (m *MonitorService) Snapshot() domain.MonitorSnapshot {
	return BuildSnapshot(m.store, m.symbols)
}

// Status reports upstream connection health.
func (m *MonitorService) Status() domain.ConnectionStatus {
	return m.supervisor.Status()
}

// Coverage reports how many tracked symbols have a fresh 24h volume.
func (m *MonitorService) Coverage() (updated, total int) {
	return m.scheduler.Coverage()
}

// Command executes a named control command and returns a human-readable
// confirmation. Long-running refreshes run in the background so the caller
// is acknowledged immediately.
func (m *MonitorService) Command(ctx context.Context, name string) (string, error) {
	switch name {
	case "clear":
		m.store.Clear()
		m.scheduler.ResetCoverage()
		return "data cleared", nil
	case "reconnect":
		m.supervisor.Reconnect()
		return "reconnect initiated", nil
	case "restart":
		m.store.Clear()
		m.scheduler.ResetCoverage()
		m.supervisor.Reconnect()
		return "monitor restarted", nil
	case "update_volumes":
		go func() {
			updated, failed := m.scheduler.RefreshAllVolumes(m.lifetime)
			m.logger.Info("forced volume refresh finished",
				zap.Int("updated", updated), zap.Int("failed", failed))
		}()
		return "volume refresh started", nil
	case "update_oi_history":
		go func() {
			m.scheduler.RefreshOpenInterest(m.lifetime)
		}()
		return "open interest refresh started", nil
	default:
		return "", fmt.Errorf("unknown command %q", name)
	}
}
