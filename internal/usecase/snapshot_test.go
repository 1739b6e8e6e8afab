package usecase

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/swap_monitor/internal/domain"
)

func mergeCandle(store *InstrumentStore, symbol string, open, close float64) {
	store.Merge(symbol, domain.InstrumentUpdate{
		OpenPrice:  &open,
		ClosePrice: &close,
	})
}

func TestBuildSnapshot_Stats(t *testing.T) {
	store, _ := newTestStore(300)
	symbols := NewSymbolSet()
	symbols.Replace([]string{"A-USDT-SWAP", "B-USDT-SWAP", "C-USDT-SWAP", "D-USDT-SWAP"})

	mergeCandle(store, "A-USDT-SWAP", 100, 110) // +10
	mergeCandle(store, "B-USDT-SWAP", 100, 95)  // -5
	mergeCandle(store, "C-USDT-SWAP", 100, 100) // flat

	snap := BuildSnapshot(store, symbols)

	assert.Equal(t, 4, snap.Stats.Total)
	assert.Equal(t, 3, snap.Stats.Collected)
	assert.Equal(t, 1, snap.Stats.UpCount)
	assert.Equal(t, 1, snap.Stats.DownCount)
	assert.Equal(t, 1.67, snap.Stats.AvgChange)
}

func TestBuildSnapshot_TablesAreFilteredAndSorted(t *testing.T) {
	store, _ := newTestStore(300)
	symbols := NewSymbolSet()

	mergeCandle(store, "A-USDT-SWAP", 100, 110) // +10
	mergeCandle(store, "B-USDT-SWAP", 100, 103) // +3
	mergeCandle(store, "C-USDT-SWAP", 100, 92)  // -8
	mergeCandle(store, "D-USDT-SWAP", 100, 98)  // -2
	mergeCandle(store, "E-USDT-SWAP", 100, 100) // flat, in neither table

	snap := BuildSnapshot(store, symbols)

	require.Len(t, snap.Tables.Gainers, 2)
	assert.Equal(t, "A-USDT-SWAP", snap.Tables.Gainers[0].InstID)
	assert.Equal(t, "B-USDT-SWAP", snap.Tables.Gainers[1].InstID)

	require.Len(t, snap.Tables.Losers, 2)
	assert.Equal(t, "C-USDT-SWAP", snap.Tables.Losers[0].InstID)
	assert.Equal(t, "D-USDT-SWAP", snap.Tables.Losers[1].InstID)
}

func TestBuildSnapshot_TablesAreCapped(t *testing.T) {
	store, _ := newTestStore(300)
	symbols := NewSymbolSet()

	for i := 0; i < tableLimit+10; i++ {
		mergeCandle(store, fmt.Sprintf("G%03d-USDT-SWAP", i), 100, 101+float64(i)*0.01)
	}

	snap := BuildSnapshot(store, symbols)
	assert.Len(t, snap.Tables.Gainers, tableLimit)
	assert.Empty(t, snap.Tables.Losers)
}

func TestBuildSnapshot_RowFields(t *testing.T) {
	store, _ := newTestStore(300)
	symbols := NewSymbolSet()

	kt := time.Date(2025, 3, 1, 9, 30, 45, 0, time.UTC)
	vol24 := 250_000_000.0
	vol1h := 50_000.0
	store.Merge("BTC-USDT-SWAP", domain.InstrumentUpdate{
		OpenPrice:  fptr(100),
		ClosePrice: fptr(105),
		Volume24h:  &vol24,
		Volume1h:   &vol1h,
		KlineTime:  &kt,
	})

	snap := BuildSnapshot(store, symbols)
	require.Len(t, snap.Tables.Gainers, 1)

	row := snap.Tables.Gainers[0]
	assert.Equal(t, "BTC-USDT-SWAP", row.InstID)
	assert.Equal(t, "BTC", row.DisplayID)
	assert.Equal(t, 5.00, row.ChangeRate)
	assert.Equal(t, "2.50亿", row.Volume24hFormatted)
	assert.Equal(t, "5.00万", row.Volume1hFormatted)
	assert.Equal(t, "09:30:45", row.Timestamp)
	assert.Equal(t, domain.FreshnessFresh, row.VolumeFreshness)
}

func TestBuildSnapshot_FreshnessMarshalsAsProtocolValue(t *testing.T) {
	row := domain.TableRow{VolumeFreshness: domain.FreshnessExpired}
	b, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"volume_freshness":-1`)
}

func TestBuildSnapshot_EmptyStore(t *testing.T) {
	store, _ := newTestStore(300)
	symbols := NewSymbolSet()

	snap := BuildSnapshot(store, symbols)
	assert.Equal(t, 0, snap.Stats.Collected)
	assert.Equal(t, 0.0, snap.Stats.AvgChange)
	assert.Empty(t, snap.Tables.Gainers)
	assert.Empty(t, snap.Tables.Losers)
}
