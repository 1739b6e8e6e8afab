package web

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vitos/swap_monitor/internal/domain"
	"go.uber.org/zap"
)

const (
	fullUpdateInterval  = 1 * time.Second
	statusInterval      = 5 * time.Second
	volumeStatsInterval = 10 * time.Second

	clientWriteTimeout = 5 * time.Second
)

// MonitorAPI is the read and control surface the hub exposes to subscribers.
type MonitorAPI interface {
	Snapshot() domain.MonitorSnapshot
	Status() domain.ConnectionStatus
	Coverage() (updated, total int)
	Command(ctx context.Context, name string) (string, error)
}

type client struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
	return c.conn.WriteJSON(v)
}

// Hub fans monitor updates out to websocket subscribers on fixed rhythms and
// services their control commands. A subscriber that cannot keep up is
// dropped without affecting the others.
type Hub struct {
	service MonitorAPI
	logger  *zap.Logger

	mu      sync.Mutex
	clients map[string]*client

	statusC chan struct{}
	timeNow func() time.Time
}

func NewHub(service MonitorAPI, logger *zap.Logger) *Hub {
	return &Hub{
		service: service,
		logger:  logger,
		clients: make(map[string]*client),
		statusC: make(chan struct{}, 1),
		timeNow: time.Now,
	}
}

// NotifyStatus requests an immediate status broadcast, coalescing bursts.
func (h *Hub) NotifyStatus() {
	select {
	case h.statusC <- struct{}{}:
	default:
	}
}

// Run drives the broadcast rhythms until ctx is cancelled, then closes every
// subscriber.
func (h *Hub) Run(ctx context.Context) error {
	fullTicker := time.NewTicker(fullUpdateInterval)
	statusTicker := time.NewTicker(statusInterval)
	volumeTicker := time.NewTicker(volumeStatsInterval)
	defer fullTicker.Stop()
	defer statusTicker.Stop()
	defer volumeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case <-fullTicker.C:
			h.broadcast(newFullUpdate(h.service.Snapshot(), h.timeNow()))
		case <-statusTicker.C:
			h.broadcast(newStatus(h.service.Status(), h.timeNow()))
		case <-h.statusC:
			h.broadcast(newStatus(h.service.Status(), h.timeNow()))
		case <-volumeTicker.C:
			updated, total := h.service.Coverage()
			h.broadcast(newVolumeStats(updated, total, h.timeNow()))
		}
	}
}

// HandleClient registers a freshly upgraded connection, sends the initial
// snapshot, and services its commands until it disconnects.
func (h *Hub) HandleClient(ctx context.Context, conn *websocket.Conn) {
	c := &client{id: uuid.NewString(), conn: conn}

	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("subscriber connected",
		zap.String("client_id", c.id), zap.Int("subscribers", count))

	h.sendHello(c)
	h.readLoop(ctx, c)
	h.drop(c, "subscriber disconnected")
}

// sendHello pushes the full current state so a new subscriber does not wait
// for the next tick.
func (h *Hub) sendHello(c *client) {
	now := h.timeNow()
	if err := c.writeJSON(newFullUpdate(h.service.Snapshot(), now)); err != nil {
		return
	}
	c.writeJSON(newStatus(h.service.Status(), now))
	updated, total := h.service.Coverage()
	c.writeJSON(newVolumeStats(updated, total, now))
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		h.handleMessage(ctx, c, msg)
	}
}

func (h *Hub) handleMessage(ctx context.Context, c *client, msg clientMessage) {
	now := h.timeNow()
	switch msg.Type {
	case "get_data":
		c.writeJSON(newFullUpdate(h.service.Snapshot(), now))
	case "command":
		result, err := h.service.Command(ctx, msg.Command)
		if err != nil {
			h.logger.Warn("command rejected",
				zap.String("client_id", c.id),
				zap.String("command", msg.Command),
				zap.Error(err))
			c.writeJSON(newCommandResponse(msg.Command, false, err.Error(), now))
			return
		}
		h.logger.Info("command executed",
			zap.String("client_id", c.id), zap.String("command", msg.Command))
		c.writeJSON(newCommandResponse(msg.Command, true, result, now))
	default:
		c.writeJSON(newCommandResponse(msg.Type, false, "unknown message type", now))
	}
}

// broadcast sends one message to every subscriber, dropping the ones whose
// writes fail.
func (h *Hub) broadcast(v any) {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.writeJSON(v); err != nil {
			h.drop(c, "subscriber write failed")
		}
	}
}

func (h *Hub) drop(c *client, reason string) {
	h.mu.Lock()
	_, present := h.clients[c.id]
	delete(h.clients, c.id)
	count := len(h.clients)
	h.mu.Unlock()

	if !present {
		return
	}
	c.conn.Close()
	h.logger.Info(reason,
		zap.String("client_id", c.id), zap.Int("subscribers", count))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range targets {
		c.conn.Close()
	}
}

// ClientCount reports the current number of subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
