package desk

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Server runs the desk's HTTP routes and its stream hub.
type Server struct {
	hub       *Hub
	server    *http.Server
	cancelHub context.CancelFunc
	hubDone   chan struct{}
	isRunning bool
	mu        sync.Mutex
}

func NewServer(addr string, svc *Service, hub *Hub, opts RouterOptions) *Server {
	return &Server{
		hub: hub,
		server: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(svc, hub, opts),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
	}
}

// Start starts the hub and serves HTTP in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("desk server is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelHub = cancel
	s.hubDone = make(chan struct{})
	go func() {
		defer close(s.hubDone)
		if s.hub != nil {
			s.hub.Run(ctx)
		}
	}()

	go func() {
		log.Info().
			Str("address", s.server.Addr).
			Msg("Starting transaction desk server")

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Transaction desk server failed")
		}
	}()

	s.isRunning = true
	return nil
}

// Stop disconnects stream clients and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancelHub()
	<-s.hubDone

	if err := s.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown transaction desk server")
		return err
	}

	s.isRunning = false
	log.Info().Msg("Transaction desk stopped")
	return nil
}
