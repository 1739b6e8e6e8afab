package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/swap_monitor/internal/domain"
	"go.uber.org/zap"
)

type RefreshSchedulerConfig struct {
	// Spacing between consecutive refreshes. Together with the symbol count
	// this sets the cadence of a full pass.
	Spacing time.Duration
	// FailureDelay is added after a failed refresh before moving on.
	FailureDelay time.Duration

	// Open interest history sampling.
	OIPeriod string
	// OIOffset past the top of the hour for the hourly job.
	OIOffset time.Duration
}

func DefaultRefreshSchedulerConfig() RefreshSchedulerConfig {
	return RefreshSchedulerConfig{
		Spacing:      300 * time.Millisecond,
		FailureDelay: time.Second,
		OIPeriod:     "1H",
		OIOffset:     30 * time.Second,
	}
}

// RefreshScheduler drives two independent rhythms: a continuous round-robin
// 24h volume refresh and an hourly open-interest history refresh. Failed
// symbols go to the back of the queue and retry on the next pass.
type RefreshScheduler struct {
	cfg      RefreshSchedulerConfig
	provider domain.MarketDataProvider
	store    *InstrumentStore
	symbols  *SymbolSet
	recorder domain.Recorder // optional
	logger   *zap.Logger

	mu         sync.Mutex
	queue      []string
	lastVolume map[string]time.Time

	timeNow func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewRefreshScheduler(
	cfg RefreshSchedulerConfig,
	provider domain.MarketDataProvider,
	store *InstrumentStore,
	symbols *SymbolSet,
	recorder domain.Recorder,
	logger *zap.Logger,
) *RefreshScheduler {
	return &RefreshScheduler{
		cfg:        cfg,
		provider:   provider,
		store:      store,
		symbols:    symbols,
		recorder:   recorder,
		logger:     logger,
		lastVolume: make(map[string]time.Time),
		timeNow:    time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run is the continuous volume refresh loop. It pops the head of the
// round-robin queue and refreshes it; a failed symbol simply waits for the
// next pass.
func (s *RefreshScheduler) Run(ctx context.Context) error {
	s.logger.Info("volume refresh loop started", zap.Duration("spacing", s.cfg.Spacing))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		symbol := s.nextSymbol()
		if symbol == "" {
			// Nothing tracked yet; check again shortly.
			if err := s.sleep(ctx, time.Second); err != nil {
				return err
			}
			continue
		}

		if err := s.refreshVolume(ctx, symbol); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("volume refresh failed",
				zap.String("symbol", symbol),
				zap.Error(err))
			if err := s.sleep(ctx, s.cfg.FailureDelay); err != nil {
				return err
			}
		}

		if err := s.sleep(ctx, s.cfg.Spacing); err != nil {
			return err
		}
	}
}

// nextSymbol pops the round-robin head. The queue drains over one full pass
// and reseeds from the current symbol universe, so symbols added after a
// reconnect enter the rotation and delisted ones drop out.
func (s *RefreshScheduler) nextSymbol() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		s.queue = s.symbols.Snapshot()
		if len(s.queue) == 0 {
			return ""
		}
	}

	symbol := s.queue[0]
	s.queue = s.queue[1:]
	return symbol
}

// refreshVolume fetches the ticker and merges the 24h volume fields.
func (s *RefreshScheduler) refreshVolume(ctx context.Context, symbol string) error {
	ticker, err := s.provider.GetTicker(ctx, symbol)
	if err != nil {
		return err
	}

	volume := domain.Volume24hUSDT(ticker.Open24h, ticker.Last, ticker.VolCcy24h)
	s.store.Merge(symbol, domain.InstrumentUpdate{Volume24h: &volume})

	now := s.timeNow()
	s.mu.Lock()
	s.lastVolume[symbol] = now
	s.mu.Unlock()

	if s.recorder != nil {
		if err := s.recorder.RecordVolume(ctx, symbol, volume, ticker.Last, now); err != nil {
			s.logger.Warn("history record failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return nil
}

// RunOpenInterest refreshes open interest once at startup and then once per
// hour at the configured offset past the hour.
func (s *RefreshScheduler) RunOpenInterest(ctx context.Context) error {
	s.logger.Info("open interest refresh loop started", zap.String("period", s.cfg.OIPeriod))

	s.RefreshOpenInterest(ctx)

	for {
		next := s.nextHourlyRun()
		if err := s.sleep(ctx, next.Sub(s.timeNow())); err != nil {
			return err
		}
		s.RefreshOpenInterest(ctx)
	}
}

func (s *RefreshScheduler) nextHourlyRun() time.Time {
	now := s.timeNow()
	next := now.Truncate(time.Hour).Add(time.Hour).Add(s.cfg.OIOffset)
	if !next.After(now) {
		next = next.Add(time.Hour)
	}
	return next
}

// RefreshOpenInterest walks the whole symbol universe once, merging the
// newest open interest sample and the roughly hour-old one used as the change
// rate base.
func (s *RefreshScheduler) RefreshOpenInterest(ctx context.Context) {
	symbols := s.symbols.Snapshot()
	updated := 0

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}

		points, err := s.provider.GetOpenInterestHistory(ctx, symbol, s.cfg.OIPeriod, 2)
		if err != nil {
			s.logger.Warn("open interest refresh failed",
				zap.String("symbol", symbol),
				zap.Error(err))
		} else {
			// Points arrive newest first.
			current := points[0]
			historical := points[len(points)-1]
			s.store.Merge(symbol, domain.InstrumentUpdate{
				OICurrent:    &current.OICcy,
				OIHistorical: &historical.OICcy,
			})
			updated++

			if s.recorder != nil {
				if err := s.recorder.RecordOpenInterest(ctx, symbol, current.OICcy, current.OIUsd, s.timeNow()); err != nil {
					s.logger.Warn("history record failed", zap.String("symbol", symbol), zap.Error(err))
				}
			}
		}

		if err := s.sleep(ctx, s.cfg.Spacing); err != nil {
			return
		}
	}

	s.logger.Info("open interest pass complete",
		zap.Int("updated", updated),
		zap.Int("total", len(symbols)))
}

// RefreshAllVolumes forces a full volume pass, skipping symbols refreshed
// within the freshness window. Used by the update_volumes command.
func (s *RefreshScheduler) RefreshAllVolumes(ctx context.Context) (updated, failed int) {
	symbols := s.symbols.Snapshot()

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		last := s.lastVolume[symbol]
		s.mu.Unlock()
		if s.timeNow().Sub(last) < domain.FreshWindow {
			updated++
			continue
		}

		if err := s.refreshVolume(ctx, symbol); err != nil {
			failed++
		} else {
			updated++
		}
		if err := s.sleep(ctx, s.cfg.Spacing); err != nil {
			return
		}
	}

	s.logger.Info("forced volume pass complete",
		zap.Int("updated", updated),
		zap.Int("failed", failed))
	return
}

// Coverage reports how many tracked symbols have a fresh volume, for the
// stats broadcast.
func (s *RefreshScheduler) Coverage() (updated, total int) {
	now := s.timeNow()

	s.mu.Lock()
	for _, t := range s.lastVolume {
		if now.Sub(t) < domain.FreshWindow {
			updated++
		}
	}
	s.mu.Unlock()

	return updated, s.symbols.Len()
}

// ResetCoverage forgets refresh timestamps, typically alongside a store clear.
func (s *RefreshScheduler) ResetCoverage() {
	s.mu.Lock()
	s.lastVolume = make(map[string]time.Time)
	s.mu.Unlock()
}
