package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/swap_monitor/internal/domain"
	"go.uber.org/zap"
)

// StubMonitor
type StubMonitor struct {
	Snap       domain.MonitorSnapshot
	Conn       domain.ConnectionStatus
	Updated    int
	Total      int
	Commands   []string
	CommandErr error
}

func (s *StubMonitor) Snapshot() domain.MonitorSnapshot { return s.Snap }
func (s *StubMonitor) Status() domain.ConnectionStatus  { return s.Conn }
func (s *StubMonitor) Coverage() (updated, total int)   { return s.Updated, s.Total }
func (s *StubMonitor) Command(ctx context.Context, name string) (string, error) {
	s.Commands = append(s.Commands, name)
	if s.CommandErr != nil {
		return "", s.CommandErr
	}
	return "ok", nil
}

func newStubMonitor() *StubMonitor {
	return &StubMonitor{
		Snap: domain.MonitorSnapshot{
			Stats: domain.Stats{Total: 300, Collected: 250, AvgChange: 1.25, UpCount: 150, DownCount: 80},
			Tables: domain.Tables{
				Gainers: []domain.TableRow{{InstID: "BTC-USDT-SWAP", DisplayID: "BTC", ChangeRate: 5}},
			},
		},
		Conn:    domain.ConnectionStatus{Status: "connected", ReconnectCount: 2},
		Updated: 200,
		Total:   300,
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *StubMonitor, *Hub) {
	t.Helper()
	stub := newStubMonitor()
	hub := NewHub(stub, zap.NewNop())
	srv := NewServer(0, hub, stub, zap.NewNop())
	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	return ts, stub, hub
}

func TestServer_DataEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/api/data")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body struct {
		Stats  domain.Stats  `json:"stats"`
		Tables domain.Tables `json:"tables"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 300, body.Stats.Total)
	require.Len(t, body.Tables.Gainers, 1)
	assert.Equal(t, "BTC", body.Tables.Gainers[0].DisplayID)
}

func TestServer_StatusEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Status         string `json:"status"`
		ReconnectCount int    `json:"reconnect_count"`
		Coverage       struct {
			Updated int `json:"updated"`
			Total   int `json:"total"`
		} `json:"volume_coverage"`
		Subscribers int `json:"subscribers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "connected", body.Status)
	assert.Equal(t, 2, body.ReconnectCount)
	assert.Equal(t, 200, body.Coverage.Updated)
	assert.Equal(t, 300, body.Coverage.Total)
	assert.Equal(t, 0, body.Subscribers)
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readTyped(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_InitialHello(t *testing.T) {
	ts, _, _ := newTestServer(t)
	conn := dialWS(t, ts)

	// A fresh subscriber gets the full state before the first tick.
	first := readTyped(t, conn)
	assert.Equal(t, msgFullUpdate, first["type"])
	stats, ok := first["stats"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(250), stats["collected"])

	second := readTyped(t, conn)
	assert.Equal(t, msgStatus, second["type"])
	assert.Equal(t, "connected", second["status"])

	third := readTyped(t, conn)
	assert.Equal(t, msgVolumeStats, third["type"])
	assert.Equal(t, float64(200), third["updated"])
}

func TestHub_CommandRoundTrip(t *testing.T) {
	ts, stub, _ := newTestServer(t)
	conn := dialWS(t, ts)

	// Skip the hello burst.
	for i := 0; i < 3; i++ {
		readTyped(t, conn)
	}

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "command", "command": "clear"}))

	resp := readTyped(t, conn)
	assert.Equal(t, msgCommandResponse, resp["type"])
	assert.Equal(t, "clear", resp["command"])
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, []string{"clear"}, stub.Commands)
}

func TestHub_RejectedCommand(t *testing.T) {
	ts, stub, _ := newTestServer(t)
	stub.CommandErr = fmt.Errorf("unknown command %q", "nope")
	conn := dialWS(t, ts)
	for i := 0; i < 3; i++ {
		readTyped(t, conn)
	}

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "command", "command": "nope"}))

	resp := readTyped(t, conn)
	assert.Equal(t, msgCommandResponse, resp["type"])
	assert.Equal(t, false, resp["success"])
}

func TestHub_GetDataOnDemand(t *testing.T) {
	ts, _, _ := newTestServer(t)
	conn := dialWS(t, ts)
	for i := 0; i < 3; i++ {
		readTyped(t, conn)
	}

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "get_data"}))

	resp := readTyped(t, conn)
	assert.Equal(t, msgFullUpdate, resp["type"])
}

func TestHub_UnknownMessageTypeIsRejected(t *testing.T) {
	ts, _, _ := newTestServer(t)
	conn := dialWS(t, ts)
	for i := 0; i < 3; i++ {
		readTyped(t, conn)
	}

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe_all"}))

	resp := readTyped(t, conn)
	assert.Equal(t, msgCommandResponse, resp["type"])
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "unknown message type", resp["message"])
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	ts, _, hub := newTestServer(t)
	conn := dialWS(t, ts)
	readTyped(t, conn) // ensure registration completed

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_BroadcastRhythm(t *testing.T) {
	ts, _, hub := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialWS(t, ts)
	for i := 0; i < 3; i++ {
		readTyped(t, conn)
	}

	// The 1s rhythm delivers another full update without any request.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		msg := readTyped(t, conn)
		if msg["type"] == msgFullUpdate {
			return
		}
	}
	t.Fatal("no periodic full update received")
}
