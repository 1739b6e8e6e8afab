package exchange

import (
	"context"
	"net/http"
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

func TestDecodeFrame_Candle(t *testing.T) {
	raw := []byte(`{
		"arg": {"channel": "candle1H", "instId": "BTC-USDT-SWAP"},
		"data": [["1700000000000","100","110","95","105","10","1000","105000","0"]]
	}`)

	ev, err := decodeFrame(raw)
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.NotNil(t, ev.Candle)

	assert.Equal(t, "BTC-USDT-SWAP", ev.Candle.InstID)
	assert.Equal(t, 100.0, ev.Candle.Open)
	assert.Equal(t, 105.0, ev.Candle.Close)
	assert.Equal(t, 105000.0, ev.Candle.VolCcyQuote)
	assert.Equal(t, time.UnixMilli(1700000000000), ev.Candle.Ts)
}

func TestDecodeFrame_OpenInterest(t *testing.T) {
	raw := []byte(`{
		"arg": {"channel": "open-interest", "instId": "ETH-USDT-SWAP"},
		"data": [{"instId": "ETH-USDT-SWAP", "oiCcy": "12345.5"}]
	}`)

	ev, err := decodeFrame(raw)
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.NotNil(t, ev.OI)

	assert.Equal(t, "ETH-USDT-SWAP", ev.OI.InstID)
	assert.Equal(t, 12345.5, ev.OI.OICcy)
}

func TestDecodeFrame_OpenInterestFallsBackToArgInstID(t *testing.T) {
	raw := []byte(`{
		"arg": {"channel": "open-interest", "instId": "SOL-USDT-SWAP"},
		"data": [{"oiCcy": "777"}]
	}`)

	ev, err := decodeFrame(raw)
	require.NoError(t, err)
	require.NotNil(t, ev.OI)
	assert.Equal(t, "SOL-USDT-SWAP", ev.OI.InstID)
}

func TestDecodeFrame_AcksAreIgnored(t *testing.T) {
	for _, raw := range []string{
		`{"event":"subscribe","arg":{"channel":"candle1H","instId":"BTC-USDT-SWAP"}}`,
		`{"event":"unsubscribe","arg":{"channel":"open-interest","instId":"BTC-USDT-SWAP"}}`,
	} {
		ev, err := decodeFrame([]byte(raw))
		assert.NoError(t, err, raw)
		assert.Nil(t, ev, raw)
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"error event", `{"event":"error","msg":"channel does not exist"}`},
		{"data without channel", `{"data":[["1","2"]]}`},
		{"unknown channel", `{"arg":{"channel":"tickers","instId":"X"},"data":[{}]}`},
		{"short candle row", `{"arg":{"channel":"candle1H","instId":"X"},"data":[["1700000000000","100"]]}`},
		{"non-numeric candle", `{"arg":{"channel":"candle1H","instId":"X"},"data":[["ts","a","b","c","d","e","f","g","0"]]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := decodeFrame([]byte(tc.raw))
			assert.Error(t, err)
			assert.Nil(t, ev)
		})
	}
}

// wsTestServer upgrades one connection and echoes frames fed through the
// returned channel.
func wsTestServer(t *testing.T, frames <-chan string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Drain client writes so subscribe requests do not block.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamConn_ConnectSubscribeAndReceive(t *testing.T) {
	frames := make(chan string, 4)
	srv := wsTestServer(t, frames)

	cfg := DefaultStreamConfig()
	cfg.URL = wsURL(srv)
	cfg.BatchDelay = 0
	s := NewStreamConn(cfg, zap.NewNop())

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, domain.ConnConnected, s.State())

	subs := []domain.Subscription{
		{Channel: "candle1H", InstID: "BTC-USDT-SWAP"},
		{Channel: "open-interest", InstID: "BTC-USDT-SWAP"},
	}
	require.NoError(t, s.Subscribe(context.Background(), subs))

	frames <- `{"event":"subscribe","arg":{"channel":"candle1H","instId":"BTC-USDT-SWAP"}}`
	frames <- `{"arg":{"channel":"candle1H","instId":"BTC-USDT-SWAP"},
		"data":[["1700000000000","100","110","95","105","10","1000","105000","0"]]}`

	select {
	case ev := <-s.Events():
		require.NotNil(t, ev.Candle)
		assert.Equal(t, "BTC-USDT-SWAP", ev.Candle.InstID)
		assert.Equal(t, 105.0, ev.Candle.Close)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	require.NoError(t, s.Disconnect())
	assert.Equal(t, domain.ConnDisconnected, s.State())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done must be closed after Disconnect")
	}
	close(frames)
}

func TestStreamConn_ServerCloseSignalsDone(t *testing.T) {
	frames := make(chan string)
	srv := wsTestServer(t, frames)

	cfg := DefaultStreamConfig()
	cfg.URL = wsURL(srv)
	s := NewStreamConn(cfg, zap.NewNop())

	require.NoError(t, s.Connect(context.Background()))
	close(frames) // server handler returns and closes the transport

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not signalled after server close")
	}
	s.Disconnect()
}

func TestStreamConn_SubscribeRequiresConnection(t *testing.T) {
	s := NewStreamConn(DefaultStreamConfig(), zap.NewNop())

	err := s.Subscribe(context.Background(), []domain.Subscription{
		{Channel: "candle1H", InstID: "BTC-USDT-SWAP"},
	})
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindConnectionLost, domain.KindOf(err))
}

func TestStreamConn_ConnectTwiceFails(t *testing.T) {
	frames := make(chan string)
	defer close(frames)
	srv := wsTestServer(t, frames)

	cfg := DefaultStreamConfig()
	cfg.URL = wsURL(srv)
	s := NewStreamConn(cfg, zap.NewNop())

	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect()

	assert.Error(t, s.Connect(context.Background()))
}
