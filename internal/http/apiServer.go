package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/ezeslucky/drawio/internal/api"
	"github.com/ezeslucky/drawio/internal/auth"
	"github.com/ezeslucky/drawio/internal/session"
	"github.com/ezeslucky/drawio/internal/storage"
	"github.com/ezeslucky/drawio/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(authService *auth.AuthService, store *storage.BboltStorage, addr string) *APIServer {
	registry := session.NewRegistry(store)
	router := ws.NewRouter(registry)
	wsServer := ws.NewServer(authService, registry, router, store)
	apiHandlers := api.New(authService, store, registry)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/login", apiHandlers.LoginHandler)
	mux.HandleFunc("POST /api/rooms", apiHandlers.RequireAuth(apiHandlers.CreateRoomHandler))
	mux.HandleFunc("GET /api/rooms", apiHandlers.RequireAuth(apiHandlers.ListRoomsHandler))
	mux.HandleFunc("GET /api/rooms/{id}", apiHandlers.RequireAuth(apiHandlers.RoomHandler))
	mux.HandleFunc("DELETE /api/rooms/{id}", apiHandlers.RequireAuth(apiHandlers.DeleteRoomHandler))

	// WebSocket endpoint
	mux.HandleFunc("/api/sync", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
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
