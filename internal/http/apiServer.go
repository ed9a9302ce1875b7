package http

import (
	"context"
	"log"
	"net"
	"net/http"
	"sync"

	"gigchat/internal/api"
	"gigchat/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

// NewAPIServer serves the REST surface and the websocket endpoint. Request
// contexts derive from ctx so open websockets end when ctx is done.
func NewAPIServer(ctx context.Context, apiHandlers *api.API, wsServer *ws.Server, addr string) *APIServer {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", apiHandlers.HealthHandler)

	// API endpoints
	mux.HandleFunc("POST /api/conversations", apiHandlers.CreateConversationHandler)
	mux.HandleFunc("GET /api/conversations", apiHandlers.ListConversationsHandler)
	mux.HandleFunc("GET /api/conversations/{jobId}/messages", apiHandlers.MessagesHandler)
	mux.HandleFunc("POST /api/push/subscriptions", apiHandlers.PushSubscriptionHandler)
	mux.HandleFunc("GET /api/push/key", apiHandlers.PushKeyHandler)

	// WebSocket endpoint
	mux.HandleFunc("GET /ws", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:        addr,
			Handler:     mux,
			BaseContext: func(net.Listener) context.Context { return ctx },
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
