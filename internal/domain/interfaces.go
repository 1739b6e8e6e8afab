package domain

import (
	"context"
	"time"
)

// MarketDataProvider wraps the exchange REST API behind the shared rate
// limiter. All methods are safe for concurrent use.
type MarketDataProvider interface {
	GetTicker(ctx context.Context, instID string) (*TickerSnapshot, error)
	GetOpenInterestHistory(ctx context.Context, instID, period string, limit int) ([]OIPoint, error)
	ListInstruments(ctx context.Context, instType string) ([]InstrumentInfo, error)
}

// StreamConnection owns one logical websocket to the exchange.
type StreamConnection interface {
	// Connect establishes the transport and starts the heartbeat monitor.
	Connect(ctx context.Context) error
	// Subscribe sends the subscriptions in capped batches. It fails the whole
	// call if any batch send fails.
	Subscribe(ctx context.Context, subs []Subscription) error
	// Disconnect best-effort unsubscribes and releases the transport.
	// Idempotent.
	Disconnect() error
	// Events yields decoded data frames in arrival order.
	Events() <-chan StreamEvent
	// Done is closed when the connection leaves the Connected state.
	Done() <-chan struct{}
	State() ConnState
}

// Recorder appends completed refreshes to durable history for offline
// analysis. Implementations must tolerate concurrent callers.
type Recorder interface {
	RecordVolume(ctx context.Context, instID string, volume, price float64, ts time.Time) error
	RecordOpenInterest(ctx context.Context, instID string, oiCcy, oiUsd float64, ts time.Time) error
	Close() error
}
