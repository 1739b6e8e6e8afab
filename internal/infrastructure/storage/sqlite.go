package storage

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// HistoryStore appends completed refreshes to sqlite for offline analysis.
// It is write-only from the monitor's point of view; the live store never
// reads it back.
type HistoryStore struct {
	db *sql.DB
}

func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &HistoryStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *HistoryStore) initSchema() error {
	// Timestamps are stored as unix seconds so aggregates like MAX keep
	// integer affinity across the coverage UNION.
	queries := []string{
		`CREATE TABLE IF NOT EXISTS volume_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			inst_id TEXT NOT NULL,
			volume_24h REAL NOT NULL,
			last_price REAL NOT NULL,
			recorded_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_volume_history_inst ON volume_history(inst_id, recorded_at);`,
		`CREATE TABLE IF NOT EXISTS oi_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			inst_id TEXT NOT NULL,
			oi_ccy REAL NOT NULL,
			oi_usd REAL NOT NULL,
			recorded_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_oi_history_inst ON oi_history(inst_id, recorded_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *HistoryStore) RecordVolume(ctx context.Context, instID string, volume, price float64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO volume_history (inst_id, volume_24h, last_price, recorded_at) VALUES (?, ?, ?, ?)`,
		instID, volume, price, ts.Unix())
	return err
}

func (s *HistoryStore) RecordOpenInterest(ctx context.Context, instID string, oiCcy, oiUsd float64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO oi_history (inst_id, oi_ccy, oi_usd, recorded_at) VALUES (?, ?, ?, ?)`,
		instID, oiCcy, oiUsd, ts.Unix())
	return err
}

// SymbolCoverage is one row of the per-symbol refresh tally.
type SymbolCoverage struct {
	InstID      string
	VolumeRows  int
	OIRows      int
	LastVolume  time.Time
	LastOpenInt time.Time
}

// Coverage tallies recorded rows per symbol, for the history CLI.
func (s *HistoryStore) Coverage(ctx context.Context) ([]SymbolCoverage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT inst_id,
		       SUM(vol_rows), SUM(oi_rows),
		       MAX(last_vol), MAX(last_oi)
		FROM (
			SELECT inst_id, COUNT(*) AS vol_rows, 0 AS oi_rows,
			       MAX(recorded_at) AS last_vol, NULL AS last_oi
			FROM volume_history GROUP BY inst_id
			UNION ALL
			SELECT inst_id, 0, COUNT(*), NULL, MAX(recorded_at)
			FROM oi_history GROUP BY inst_id
		)
		GROUP BY inst_id
		ORDER BY inst_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SymbolCoverage
	for rows.Next() {
		var c SymbolCoverage
		var lastVol, lastOI sql.NullInt64
		if err := rows.Scan(&c.InstID, &c.VolumeRows, &c.OIRows, &lastVol, &lastOI); err != nil {
			return nil, err
		}
		if lastVol.Valid {
			c.LastVolume = time.Unix(lastVol.Int64, 0).UTC()
		}
		if lastOI.Valid {
			c.LastOpenInt = time.Unix(lastOI.Int64, 0).UTC()
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *HistoryStore) Close() error {
	return s.db.Close()
}
