package domain

import "time"

// TickerSnapshot is the subset of the provider's ticker used by the monitor.
type TickerSnapshot struct {
	InstID    string
	Last      float64
	Open24h   float64
	VolCcy24h float64 // 24h volume in base currency
	Ts        time.Time
}

// OIPoint is one sample of an instrument's open interest history.
type OIPoint struct {
	Ts    time.Time
	OI    float64 // contracts
	OICcy float64 // base currency
	OIUsd float64
}

// InstrumentInfo describes a listed instrument.
type InstrumentInfo struct {
	InstID string
	State  string
}

// ConnState is the lifecycle state of one stream connection.
type ConnState int32

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnConnected
	ConnDegraded
)

func (s ConnState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnDegraded:
		return "degraded"
	default:
		return "disconnected"
	}
}

// Subscription is one (channel, instrument) pair of a stream subscribe
// request.
type Subscription struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// CandleEvent is a decoded kline frame from the stream.
type CandleEvent struct {
	InstID      string
	Open        float64
	Close       float64
	VolCcyQuote float64 // quote currency turnover of the candle
	Ts          time.Time
}

// OIEvent is a decoded open-interest frame from the stream.
type OIEvent struct {
	InstID string
	OICcy  float64
}

// StreamEvent is a decoded data frame. Exactly one variant is non-nil.
type StreamEvent struct {
	Candle *CandleEvent
	OI     *OIEvent
}
