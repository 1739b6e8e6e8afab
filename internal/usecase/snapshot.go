package usecase

import (
	"sort"

	"github.com/vitos/swap_monitor/internal/domain"
)

// tableLimit caps each ranking table.
const tableLimit = 50

// BuildSnapshot assembles the aggregate stats and gainer/loser tables from
// the current store contents. total reflects the tracked universe, collected
// the records that actually received data.
func BuildSnapshot(store *InstrumentStore, symbols *SymbolSet) domain.MonitorSnapshot {
	records := store.Snapshot()

	total := symbols.Len()
	if total < len(records) {
		total = len(records)
	}

	var sumChange float64
	var up, down int
	rows := make([]domain.TableRow, 0, len(records))
	for _, rec := range records {
		sumChange += rec.ChangeRate
		switch {
		case rec.ChangeRate > 0:
			up++
		case rec.ChangeRate < 0:
			down++
		}
		rows = append(rows, toTableRow(rec))
	}

	avg := 0.0
	if len(records) > 0 {
		avg = domain.Round2(sumChange / float64(len(records)))
	}

	return domain.MonitorSnapshot{
		Stats: domain.Stats{
			Total:     total,
			Collected: len(records),
			AvgChange: avg,
			UpCount:   up,
			DownCount: down,
		},
		Tables: domain.Tables{
			Gainers: rankRows(rows, true),
			Losers:  rankRows(rows, false),
		},
	}
}

func toTableRow(rec domain.Instrument) domain.TableRow {
	ts := ""
	if !rec.KlineTime.IsZero() {
		ts = rec.KlineTime.Format("15:04:05")
	}
	return domain.TableRow{
		InstID:             rec.Symbol,
		DisplayID:          rec.DisplaySymbol,
		ChangeRate:         rec.ChangeRate,
		ClosePrice:         rec.ClosePrice,
		Volume24h:          rec.Volume24h,
		Volume24hFormatted: domain.FormatVolume(rec.Volume24h),
		Volume1h:           rec.Volume1h,
		Volume1hFormatted:  domain.FormatVolume(rec.Volume1h),
		OpenInterest:       rec.OICurrent,
		OIChangeRate:       rec.OIChangeRate,
		VolumeFreshness:    rec.VolumeFreshness,
		Timestamp:          ts,
	}
}

// rankRows filters and orders one table: gainers hold strictly positive
// change rates sorted descending, losers strictly negative sorted ascending.
func rankRows(rows []domain.TableRow, gainers bool) []domain.TableRow {
	out := make([]domain.TableRow, 0, len(rows))
	for _, row := range rows {
		if gainers && row.ChangeRate > 0 {
			out = append(out, row)
		}
		if !gainers && row.ChangeRate < 0 {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if gainers {
			return out[i].ChangeRate > out[j].ChangeRate
		}
		return out[i].ChangeRate < out[j].ChangeRate
	})
	if len(out) > tableLimit {
		out = out[:tableLimit]
	}
	return out
}
