package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/swap_monitor/internal/domain"
	"go.uber.org/zap"
)

// DefaultPrioritySymbols are subscribed first, ahead of whatever else the
// listing returns.
var DefaultPrioritySymbols = []string{
	"BTC-USDT-SWAP", "ETH-USDT-SWAP", "SOL-USDT-SWAP",
	"BNB-USDT-SWAP", "XRP-USDT-SWAP", "ADA-USDT-SWAP",
	"DOGE-USDT-SWAP", "DOT-USDT-SWAP", "AVAX-USDT-SWAP",
	"MATIC-USDT-SWAP", "LTC-USDT-SWAP", "LINK-USDT-SWAP",
	"UNI-USDT-SWAP", "ATOM-USDT-SWAP", "FIL-USDT-SWAP",
	"ETC-USDT-SWAP", "XLM-USDT-SWAP", "ALGO-USDT-SWAP",
}

type SupervisorConfig struct {
	// Linear reconnect backoff: min(BackoffBase x attempts, BackoffMax). The
	// attempt counter wraps to zero at MaxAttempts; the supervisor never gives
	// up.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	MaxAttempts int

	InstType        string
	MaxProducts     int
	PrioritySymbols []string
}

func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		BackoffBase:     5 * time.Second,
		BackoffMax:      60 * time.Second,
		MaxAttempts:     10,
		InstType:        "SWAP",
		MaxProducts:     300,
		PrioritySymbols: DefaultPrioritySymbols,
	}
}

// StreamFactory builds a fresh connection for each supervised attempt.
type StreamFactory func() domain.StreamConnection

// streamSpec describes one supervised connection and the channel it carries.
type streamSpec struct {
	name        string
	channel     string
	seedSymbols bool // this connection refreshes the symbol universe on connect
}

// IngestionSupervisor owns the stream connections, restarts them with linear
// capped backoff, and feeds decoded events into the instrument store.
type IngestionSupervisor struct {
	cfg       SupervisorConfig
	provider  domain.MarketDataProvider
	store     *InstrumentStore
	symbols   *SymbolSet
	newStream StreamFactory
	logger    *zap.Logger

	specs []streamSpec

	mu         sync.Mutex
	conns      map[string]domain.StreamConnection
	reconnects int
	onStatus   func()

	sleep func(ctx context.Context, d time.Duration) error
}

func NewIngestionSupervisor(
	cfg SupervisorConfig,
	provider domain.MarketDataProvider,
	store *InstrumentStore,
	symbols *SymbolSet,
	newStream StreamFactory,
	logger *zap.Logger,
) *IngestionSupervisor {
	return &IngestionSupervisor{
		cfg:       cfg,
		provider:  provider,
		store:     store,
		symbols:   symbols,
		newStream: newStream,
		logger:    logger,
		specs: []streamSpec{
			{name: "candle", channel: "candle1H", seedSymbols: true},
			{name: "open-interest", channel: "open-interest"},
		},
		conns: make(map[string]domain.StreamConnection),
		sleep: sleepCtx,
	}
}

// SetStatusListener registers a callback fired on every connection state
// change. Must be set before Run.
func (s *IngestionSupervisor) SetStatusListener(fn func()) {
	s.onStatus = fn
}

// Run supervises all stream connections until ctx is cancelled, then awaits
// their disconnect.
func (s *IngestionSupervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, spec := range s.specs {
		wg.Add(1)
		go func(spec streamSpec) {
			defer wg.Done()
			s.superviseLoop(ctx, spec)
		}(spec)
	}
	wg.Wait()
	return ctx.Err()
}

// superviseLoop runs connect -> subscribe -> monitor -> disconnect -> backoff
// for one connection, forever.
func (s *IngestionSupervisor) superviseLoop(ctx context.Context, spec streamSpec) {
	log := s.logger.With(zap.String("stream", spec.name))
	attempts := 0

	for ctx.Err() == nil {
		if err := s.runOnce(ctx, spec, log); err == nil {
			// Clean session; counters reset.
			attempts = 0
			s.resetReconnects()
		}
		if ctx.Err() != nil {
			return
		}

		attempts++
		s.bumpReconnects()
		delay := s.backoffDelay(attempts)
		if attempts >= s.cfg.MaxAttempts {
			// Wrap and keep trying; the supervisor never gives up.
			attempts = 0
		}

		log.Info("reconnecting after backoff",
			zap.Duration("delay", delay),
			zap.Int("attempt", attempts))
		if err := s.sleep(ctx, delay); err != nil {
			return
		}
	}
}

// backoffDelay returns min(base x n, cap).
func (s *IngestionSupervisor) backoffDelay(attempts int) time.Duration {
	d := time.Duration(attempts) * s.cfg.BackoffBase
	if d > s.cfg.BackoffMax {
		d = s.cfg.BackoffMax
	}
	return d
}

// runOnce runs a single connection session. A nil return means the session
// was established and later lost (or deliberately stopped); an error means it
// never got to a healthy subscribed state.
func (s *IngestionSupervisor) runOnce(ctx context.Context, spec streamSpec, log *zap.Logger) error {
	conn := s.newStream()

	s.notifyStatus()
	if err := conn.Connect(ctx); err != nil {
		log.Warn("connect failed", zap.Error(err))
		return err
	}

	if spec.seedSymbols {
		s.seedSymbols(ctx, log)
	}

	symbols := s.symbols.Snapshot()
	if len(symbols) == 0 {
		symbols = s.cfg.PrioritySymbols
	}
	subs := make([]domain.Subscription, 0, len(symbols))
	for _, sym := range symbols {
		subs = append(subs, domain.Subscription{Channel: spec.channel, InstID: sym})
	}

	if err := conn.Subscribe(ctx, subs); err != nil {
		log.Warn("subscribe failed", zap.Error(err))
		conn.Disconnect()
		s.notifyStatus()
		return err
	}

	s.setConn(spec.name, conn)
	s.notifyStatus()
	log.Info("stream session established", zap.Int("subscriptions", len(subs)))

	go s.pumpEvents(ctx, conn)

	select {
	case <-ctx.Done():
	case <-conn.Done():
		log.Warn("stream session lost", zap.String("state", conn.State().String()))
	}

	conn.Disconnect()
	s.clearConn(spec.name)
	s.notifyStatus()
	return nil
}

// seedSymbols refreshes the tracked universe from the instrument listing,
// priority pairs first, capped at MaxProducts. On failure the previous
// universe (or the priority list) stays in place.
func (s *IngestionSupervisor) seedSymbols(ctx context.Context, log *zap.Logger) {
	listed, err := s.provider.ListInstruments(ctx, s.cfg.InstType)
	if err != nil {
		log.Warn("instrument listing failed, keeping current universe", zap.Error(err))
		if s.symbols.Len() == 0 {
			s.symbols.Replace(s.cfg.PrioritySymbols)
		}
		return
	}

	live := make(map[string]struct{}, len(listed))
	for _, inst := range listed {
		if inst.State == "" || inst.State == "live" {
			live[inst.InstID] = struct{}{}
		}
	}

	ordered := make([]string, 0, s.cfg.MaxProducts)
	for _, sym := range s.cfg.PrioritySymbols {
		if _, ok := live[sym]; ok {
			ordered = append(ordered, sym)
			delete(live, sym)
		}
	}
	for _, inst := range listed {
		if len(ordered) >= s.cfg.MaxProducts {
			break
		}
		if _, ok := live[inst.InstID]; ok {
			ordered = append(ordered, inst.InstID)
			delete(live, inst.InstID)
		}
	}

	s.symbols.Replace(ordered)
	log.Info("symbol universe refreshed", zap.Int("count", len(ordered)))
}

// pumpEvents merges decoded stream events into the store until the session
// ends. Stream events own the kline and current-OI fields of a record.
func (s *IngestionSupervisor) pumpEvents(ctx context.Context, conn domain.StreamConnection) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case ev := <-conn.Events():
			s.mergeEvent(ev)
		}
	}
}

func (s *IngestionSupervisor) mergeEvent(ev domain.StreamEvent) {
	switch {
	case ev.Candle != nil:
		c := ev.Candle
		s.store.Merge(c.InstID, domain.InstrumentUpdate{
			OpenPrice:  &c.Open,
			ClosePrice: &c.Close,
			Volume1h:   &c.VolCcyQuote,
			KlineTime:  &c.Ts,
		})
	case ev.OI != nil:
		s.store.Merge(ev.OI.InstID, domain.InstrumentUpdate{
			OICurrent: &ev.OI.OICcy,
		})
	}
}

func (s *IngestionSupervisor) setConn(name string, conn domain.StreamConnection) {
	s.mu.Lock()
	s.conns[name] = conn
	s.mu.Unlock()
}

func (s *IngestionSupervisor) clearConn(name string) {
	s.mu.Lock()
	delete(s.conns, name)
	s.mu.Unlock()
}

func (s *IngestionSupervisor) bumpReconnects() {
	s.mu.Lock()
	s.reconnects++
	s.mu.Unlock()
}

func (s *IngestionSupervisor) resetReconnects() {
	s.mu.Lock()
	s.reconnects = 0
	s.mu.Unlock()
}

func (s *IngestionSupervisor) notifyStatus() {
	if s.onStatus != nil {
		s.onStatus()
	}
}

// Status reports aggregate upstream health: connected only when every
// supervised stream is in the Connected state.
func (s *IngestionSupervisor) Status() domain.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := "disconnected"
	if len(s.conns) == len(s.specs) {
		status = "connected"
		for _, conn := range s.conns {
			if conn.State() != domain.ConnConnected {
				status = "disconnected"
				break
			}
		}
	}

	return domain.ConnectionStatus{
		Status:         status,
		ReconnectCount: s.reconnects,
	}
}

// Reconnect forces every live connection down; the supervise loops bring them
// back with a fresh listing and subscriptions.
func (s *IngestionSupervisor) Reconnect() {
	s.mu.Lock()
	conns := make([]domain.StreamConnection, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		conn.Disconnect()
	}
	s.logger.Info("manual reconnect requested", zap.Int("connections", len(conns)))
}
