package domain

import (
	"strings"
	"time"
)

// Freshness classifies how recently the 24h volume of an instrument was
// refreshed. The numeric values are part of the push protocol.
type Freshness int

const (
	FreshnessExpired Freshness = -1 // no data, or older than an hour
	FreshnessStale   Freshness = 0  // older than five minutes
	FreshnessFresh   Freshness = 1  // refreshed within five minutes
)

const (
	FreshWindow = 5 * time.Minute
	StaleWindow = time.Hour
)

// ClassifyFreshness maps the age of the last volume refresh to a Freshness
// tier. A zero updatedAt means the volume was never refreshed.
func ClassifyFreshness(updatedAt, now time.Time) Freshness {
	if updatedAt.IsZero() {
		return FreshnessExpired
	}
	age := now.Sub(updatedAt)
	switch {
	case age < FreshWindow:
		return FreshnessFresh
	case age < StaleWindow:
		return FreshnessStale
	default:
		return FreshnessExpired
	}
}

// Instrument is the aggregate record kept per tracked symbol. Kline fields are
// written by the stream decoder, volume and open interest fields by the
// refresh scheduler; a merge only touches the fields its update carries.
type Instrument struct {
	Symbol        string
	DisplaySymbol string

	// Current hourly candle.
	OpenPrice  float64
	ClosePrice float64
	ChangeRate float64 // percent, 2 decimals
	Volume1h   float64 // quote currency turnover of the current candle
	KlineTime  time.Time

	// 24h volume from REST refresh.
	Volume24h       float64 // USDT
	VolumeUpdatedAt time.Time

	// Open interest. Historical is the snapshot roughly one hour old used as
	// the base of the change rate.
	OICurrent    float64
	OIHistorical float64
	OIChangeRate float64 // percent, 2 decimals
	OIUpdatedAt  time.Time

	VolumeFreshness Freshness

	// LastMerge orders records for eviction and expiry sweeps.
	LastMerge time.Time
}

// NewInstrument returns a record that has never been merged. Its volume
// freshness reads Expired until a refresh lands; the zero value of Freshness
// would wrongly read Stale.
func NewInstrument(symbol string) *Instrument {
	return &Instrument{Symbol: symbol, VolumeFreshness: FreshnessExpired}
}

// InstrumentUpdate is a partial update merged into an Instrument. Nil fields
// are left untouched.
type InstrumentUpdate struct {
	OpenPrice  *float64
	ClosePrice *float64
	Volume1h   *float64
	KlineTime  *time.Time

	Volume24h *float64

	OICurrent    *float64
	OIHistorical *float64
}

// Apply merges the update into the record and recomputes every derived field
// from the merged whole, so the outcome does not depend on which writer
// landed first.
func (i *Instrument) Apply(u InstrumentUpdate, now time.Time) {
	if u.OpenPrice != nil {
		i.OpenPrice = *u.OpenPrice
	}
	if u.ClosePrice != nil {
		i.ClosePrice = *u.ClosePrice
	}
	if u.Volume1h != nil {
		i.Volume1h = *u.Volume1h
	}
	if u.KlineTime != nil {
		i.KlineTime = *u.KlineTime
	}
	if u.Volume24h != nil {
		i.Volume24h = *u.Volume24h
		i.VolumeUpdatedAt = now
	}
	if u.OICurrent != nil {
		i.OICurrent = *u.OICurrent
		i.OIUpdatedAt = now
	}
	if u.OIHistorical != nil {
		i.OIHistorical = *u.OIHistorical
		i.OIUpdatedAt = now
	}

	i.DisplaySymbol = DisplaySymbol(i.Symbol)
	i.ChangeRate = ChangeRate(i.OpenPrice, i.ClosePrice)
	i.OIChangeRate = ChangeRate(i.OIHistorical, i.OICurrent)
	i.VolumeFreshness = ClassifyFreshness(i.VolumeUpdatedAt, now)
	i.LastMerge = now
}

// DisplaySymbol strips the contract suffix for display: "BTC-USDT-SWAP" -> "BTC".
func DisplaySymbol(instID string) string {
	if s, ok := strings.CutSuffix(instID, "-USDT-SWAP"); ok {
		return s
	}
	if s, ok := strings.CutSuffix(instID, "-SWAP"); ok {
		return s
	}
	return instID
}
