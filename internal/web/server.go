package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Server struct {
	router   *http.ServeMux
	server   *http.Server
	hub      *Hub
	service  MonitorAPI
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewServer(port int, hub *Hub, service MonitorAPI, logger *zap.Logger) *Server {
	s := &Server{
		router:  http.NewServeMux(),
		hub:     hub,
		service: service,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Live feed
	s.router.HandleFunc("GET /ws", s.handleWebSocket)

	// Read API
	s.router.HandleFunc("GET /api/data", s.handleData)
	s.router.HandleFunc("GET /api/status", s.handleStatus)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}
	s.hub.HandleClient(r.Context(), conn)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	snap := s.service.Snapshot()
	s.writeJSON(w, map[string]any{
		"stats":  snap.Stats,
		"tables": snap.Tables,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.service.Status()
	updated, total := s.service.Coverage()
	s.writeJSON(w, map[string]any{
		"status":          st.Status,
		"reconnect_count": st.ReconnectCount,
		"volume_coverage": map[string]int{"updated": updated, "total": total},
		"subscribers":     s.hub.ClientCount(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
