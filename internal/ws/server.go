package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

type Server struct {
	svc      chatService
	cfg      Config
	log      *slog.Logger
	upgrader *websocket.Upgrader
}

func NewServer(svc chatService, cfg Config) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		svc: svc,
		cfg: cfg,
		log: cfg.Log,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // clients authenticate upstream
			},
		},
	}
}

// HandleConnections upgrades the request and serves the connection until it
// closes. Users identify themselves with user:join after the upgrade.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := NewConnection(s.svc, ws, s.cfg)
	s.log.Debug("connection opened", "conn_id", conn.ID(), "remote", r.RemoteAddr)

	if err := conn.Handle(r.Context()); err != nil {
		s.log.Info("connection ended with error", "conn_id", conn.ID(), "error", err)
	}
}
