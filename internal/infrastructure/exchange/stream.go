package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/swap_monitor/internal/domain"
	"go.uber.org/zap"
)

type StreamConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// The connection is considered dead when no frame arrived for
	// HeartbeatInterval + HeartbeatTimeout.
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	HeartbeatTick     time.Duration

	// Subscriptions are sent in batches to stay under the per-message limit,
	// with a small delay between batches to avoid burst rejection.
	BatchSize  int
	BatchDelay time.Duration

	EventBuffer int
}

func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		URL:               OKXWSURL,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		HeartbeatInterval: 25 * time.Second,
		HeartbeatTimeout:  35 * time.Second,
		HeartbeatTick:     5 * time.Second,
		BatchSize:         10,
		BatchDelay:        500 * time.Millisecond,
		EventBuffer:       1024,
	}
}

// StreamConn is one logical websocket to the OKX public stream. State machine:
// Disconnected -> Connecting -> Connected -> (Degraded | Disconnected).
// Degraded is a signal to the owning supervisor, not a self-heal.
type StreamConn struct {
	cfg    StreamConfig
	logger *zap.Logger

	mu        sync.Mutex
	state     domain.ConnState
	conn      *websocket.Conn
	subs      []domain.Subscription
	lastFrame time.Time

	writeMu sync.Mutex

	events   chan domain.StreamEvent
	done     chan struct{}
	doneOnce sync.Once

	timeNow func() time.Time
}

func NewStreamConn(cfg StreamConfig, logger *zap.Logger) *StreamConn {
	return &StreamConn{
		cfg:     cfg,
		logger:  logger,
		state:   domain.ConnDisconnected,
		events:  make(chan domain.StreamEvent, cfg.EventBuffer),
		done:    make(chan struct{}),
		timeNow: time.Now,
	}
}

func (s *StreamConn) State() domain.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *StreamConn) Events() <-chan domain.StreamEvent { return s.events }

// Done is closed once the connection leaves Connected, whether by transport
// error, heartbeat staleness or an explicit Disconnect.
func (s *StreamConn) Done() <-chan struct{} { return s.done }

func (s *StreamConn) signalDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Connect establishes the transport and starts the read and heartbeat loops.
func (s *StreamConn) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != domain.ConnDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("connect: already %s", s.state)
	}
	s.state = domain.ConnConnecting
	s.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		s.mu.Lock()
		s.state = domain.ConnDisconnected
		s.mu.Unlock()
		return &domain.ProviderError{Kind: domain.ErrKindConnectionLost, Op: "ws_connect", Err: err}
	}

	s.mu.Lock()
	s.conn = conn
	s.state = domain.ConnConnected
	s.lastFrame = s.timeNow()
	s.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})

	go s.readLoop(conn)
	go s.heartbeatLoop(conn)

	s.logger.Info("stream connected", zap.String("url", s.cfg.URL))
	return nil
}

type wsRequest struct {
	Op   string                `json:"op"`
	Args []domain.Subscription `json:"args"`
}

// Subscribe sends the subscriptions in capped batches, sequentially, failing
// the whole call if any batch send fails.
func (s *StreamConn) Subscribe(ctx context.Context, subs []domain.Subscription) error {
	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(subs)
	}

	for i := 0; i < len(subs); i += batchSize {
		end := min(i+batchSize, len(subs))
		if err := s.send(wsRequest{Op: "subscribe", Args: subs[i:end]}); err != nil {
			return fmt.Errorf("subscribe batch %d: %w", i/batchSize+1, err)
		}
		if end < len(subs) && s.cfg.BatchDelay > 0 {
			if err := sleepCtx(ctx, s.cfg.BatchDelay); err != nil {
				return err
			}
		}
	}

	s.mu.Lock()
	s.subs = append(s.subs, subs...)
	s.mu.Unlock()

	s.logger.Info("subscribed", zap.Int("count", len(subs)))
	return nil
}

// Disconnect best-effort unsubscribes, stops the monitors and releases the
// transport. Safe to call repeatedly.
func (s *StreamConn) Disconnect() error {
	s.mu.Lock()
	conn := s.conn
	subs := s.subs
	s.conn = nil
	s.subs = nil
	s.state = domain.ConnDisconnected
	s.mu.Unlock()

	s.signalDone()

	if conn == nil {
		return nil
	}

	if len(subs) > 0 {
		// Best effort; the server drops subscriptions on close anyway.
		_ = s.sendOn(conn, wsRequest{Op: "unsubscribe", Args: subs})
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		s.timeNow().Add(time.Second))
	err := conn.Close()

	s.logger.Info("stream disconnected")
	return err
}

func (s *StreamConn) send(req wsRequest) error {
	s.mu.Lock()
	conn := s.conn
	state := s.state
	s.mu.Unlock()

	if conn == nil || state != domain.ConnConnected {
		return &domain.ProviderError{
			Kind: domain.ErrKindConnectionLost,
			Op:   "ws_send",
			Err:  fmt.Errorf("not connected (%s)", state),
		}
	}
	return s.sendOn(conn, req)
}

func (s *StreamConn) sendOn(conn *websocket.Conn, req wsRequest) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(s.timeNow().Add(s.cfg.WriteTimeout))
	return conn.WriteJSON(req)
}

func (s *StreamConn) touch() {
	s.mu.Lock()
	s.lastFrame = s.timeNow()
	s.mu.Unlock()
}

// readLoop decodes inbound frames and forwards typed events in arrival order.
func (s *StreamConn) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				// Disconnect already ran.
			default:
				s.mu.Lock()
				if s.state == domain.ConnConnected {
					s.state = domain.ConnDisconnected
				}
				s.mu.Unlock()
				s.logger.Warn("stream read failed", zap.Error(err))
			}
			s.signalDone()
			return
		}

		s.touch()

		ev, err := decodeFrame(data)
		if err != nil {
			// A malformed frame must never abort the connection.
			s.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		if ev == nil {
			continue // subscribe ack or other non-data frame
		}

		select {
		case s.events <- *ev:
		default:
			s.logger.Warn("event buffer full, dropping frame")
		}
	}
}

// heartbeatLoop pings the server and flags the connection Degraded when no
// frame arrived within the staleness budget.
func (s *StreamConn) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.HeartbeatTick)
	defer ticker.Stop()

	staleAfter := s.cfg.HeartbeatInterval + s.cfg.HeartbeatTimeout

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := s.timeNow().Add(s.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				s.logger.Debug("ping failed", zap.Error(err))
			}

			s.mu.Lock()
			stale := s.timeNow().Sub(s.lastFrame) > staleAfter
			if stale {
				s.state = domain.ConnDegraded
			}
			s.mu.Unlock()

			if stale {
				s.logger.Warn("heartbeat stale, flagging connection degraded",
					zap.Duration("threshold", staleAfter))
				s.signalDone()
				return
			}
		}
	}
}

type wsFrame struct {
	Event string `json:"event"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data json.RawMessage `json:"data"`
}

// decodeFrame turns a raw frame into a typed event. Returns (nil, nil) for
// frames that carry no data, such as subscribe acks.
func decodeFrame(data []byte) (*domain.StreamEvent, error) {
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("frame decode: %w", err)
	}

	if frame.Event != "" {
		if frame.Event == "error" {
			return nil, fmt.Errorf("stream error event: %s", string(data))
		}
		return nil, nil // subscribe / unsubscribe ack
	}

	if len(frame.Data) == 0 {
		return nil, nil
	}
	if frame.Arg.Channel == "" {
		return nil, fmt.Errorf("data frame without channel tag")
	}

	switch {
	case strings.HasPrefix(frame.Arg.Channel, "candle"):
		return decodeCandle(frame)
	case frame.Arg.Channel == "open-interest":
		return decodeOpenInterest(frame)
	default:
		return nil, fmt.Errorf("unknown channel %q", frame.Arg.Channel)
	}
}

// decodeCandle extracts [ts, open, high, low, close, vol, volCcy, volCcyQuote,
// confirm] from the newest row.
func decodeCandle(frame wsFrame) (*domain.StreamEvent, error) {
	if frame.Arg.InstID == "" {
		return nil, fmt.Errorf("candle frame without instId")
	}

	var rows [][]string
	if err := json.Unmarshal(frame.Data, &rows); err != nil {
		return nil, fmt.Errorf("candle data: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	if len(row) < 8 {
		return nil, fmt.Errorf("candle row has %d fields", len(row))
	}

	ts, errT := strconv.ParseInt(row[0], 10, 64)
	open, err1 := strconv.ParseFloat(row[1], 64)
	closePrice, err2 := strconv.ParseFloat(row[4], 64)
	volCcyQuote := 0.0
	var err3 error
	if row[7] != "" {
		volCcyQuote, err3 = strconv.ParseFloat(row[7], 64)
	}
	if errT != nil || err1 != nil || err2 != nil || err3 != nil {
		return nil, fmt.Errorf("candle row has non-numeric fields")
	}

	return &domain.StreamEvent{Candle: &domain.CandleEvent{
		InstID:      frame.Arg.InstID,
		Open:        open,
		Close:       closePrice,
		VolCcyQuote: volCcyQuote,
		Ts:          time.UnixMilli(ts),
	}}, nil
}

func decodeOpenInterest(frame wsFrame) (*domain.StreamEvent, error) {
	var rows []struct {
		InstID string `json:"instId"`
		OICcy  string `json:"oiCcy"`
	}
	if err := json.Unmarshal(frame.Data, &rows); err != nil {
		return nil, fmt.Errorf("open interest data: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	instID := row.InstID
	if instID == "" {
		instID = frame.Arg.InstID
	}
	if instID == "" {
		return nil, fmt.Errorf("open interest frame without instId")
	}
	oiCcy, err := strconv.ParseFloat(row.OICcy, 64)
	if err != nil {
		return nil, fmt.Errorf("open interest row has non-numeric oiCcy")
	}

	return &domain.StreamEvent{OI: &domain.OIEvent{InstID: instID, OICcy: oiCcy}}, nil
}
