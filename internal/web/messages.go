package web

import (
	"time"

	"github.com/vitos/swap_monitor/internal/domain"
)

// Outbound message type tags.
const (
	msgFullUpdate      = "full_update"
	msgStatus          = "okx_connection_status"
	msgVolumeStats     = "volume_update_stats"
	msgCommandResponse = "command_response"
)

type fullUpdateMsg struct {
	Type      string        `json:"type"`
	Stats     domain.Stats  `json:"stats"`
	Tables    domain.Tables `json:"tables"`
	Timestamp string        `json:"timestamp"`
}

type statusMsg struct {
	Type           string `json:"type"`
	Status         string `json:"status"`
	ReconnectCount int    `json:"reconnect_count"`
	Timestamp      string `json:"timestamp"`
}

type volumeStatsMsg struct {
	Type      string `json:"type"`
	Updated   int    `json:"updated"`
	Total     int    `json:"total"`
	Timestamp string `json:"timestamp"`
}

type commandResponseMsg struct {
	Type      string `json:"type"`
	Command   string `json:"command"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// clientMessage is the only inbound shape accepted from subscribers.
type clientMessage struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

func stamp(now time.Time) string {
	return now.Format(time.RFC3339)
}

func newFullUpdate(snap domain.MonitorSnapshot, now time.Time) fullUpdateMsg {
	return fullUpdateMsg{
		Type:      msgFullUpdate,
		Stats:     snap.Stats,
		Tables:    snap.Tables,
		Timestamp: stamp(now),
	}
}

func newStatus(st domain.ConnectionStatus, now time.Time) statusMsg {
	return statusMsg{
		Type:           msgStatus,
		Status:         st.Status,
		ReconnectCount: st.ReconnectCount,
		Timestamp:      stamp(now),
	}
}

func newVolumeStats(updated, total int, now time.Time) volumeStatsMsg {
	return volumeStatsMsg{
		Type:      msgVolumeStats,
		Updated:   updated,
		Total:     total,
		Timestamp: stamp(now),
	}
}

func newCommandResponse(command string, success bool, message string, now time.Time) commandResponseMsg {
	return commandResponseMsg{
		Type:      msgCommandResponse,
		Command:   command,
		Success:   success,
		Message:   message,
		Timestamp: stamp(now),
	}
}
