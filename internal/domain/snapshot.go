package domain

// Stats summarizes the whole tracked universe for subscribers.
type Stats struct {
	Total     int     `json:"total"`
	Collected int     `json:"collected"`
	AvgChange float64 `json:"avg_change"`
	UpCount   int     `json:"up_count"`
	DownCount int     `json:"down_count"`
}

// TableRow is one instrument row of the gainers or losers table.
type TableRow struct {
	InstID             string    `json:"inst_id"`
	DisplayID          string    `json:"display_id"`
	ChangeRate         float64   `json:"change_rate"`
	ClosePrice         float64   `json:"close_price"`
	Volume24h          float64   `json:"volume_24h"`
	Volume24hFormatted string    `json:"volume_24h_formatted"`
	Volume1h           float64   `json:"volume_1h"`
	Volume1hFormatted  string    `json:"volume_1h_formatted"`
	OpenInterest       float64   `json:"open_interest"`
	OIChangeRate       float64   `json:"oi_change_rate"`
	VolumeFreshness    Freshness `json:"volume_freshness"`
	Timestamp          string    `json:"timestamp"` // HH:MM:SS of the last kline event
}

// Tables holds the top gainers and losers derived from a store snapshot.
type Tables struct {
	Gainers []TableRow `json:"gainers"`
	Losers  []TableRow `json:"losers"`
}

// MonitorSnapshot is the full payload served to subscribers and the read API.
type MonitorSnapshot struct {
	Stats  Stats  `json:"stats"`
	Tables Tables `json:"tables"`
}

// ConnectionStatus describes the upstream stream health for subscribers.
type ConnectionStatus struct {
	Status         string `json:"status"` // connected | disconnected
	ReconnectCount int    `json:"reconnect_count"`
}
