package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gideonlabs/gideon/internal/config"
	"github.com/gideonlabs/gideon/internal/relay"
	"github.com/gideonlabs/gideon/internal/store"
	"github.com/gideonlabs/gideon/internal/topic"
)

// Server is the HTTP surface of the daemon: the chat endpoint plus the
// notebook/progress/extension API the web app polls.
type Server struct {
	httpServer *http.Server
	relay      *relay.Relay
	store      *store.Worker
	catalog    *topic.Catalog
	tutorID    string
}

func New(cfg *config.Config, rly *relay.Relay, worker *store.Worker, catalog *topic.Catalog) (*Server, error) {
	readTimeout, err := config.DurationOrDefault(cfg.Server.ReadTimeout, config.DefaultServerReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse server read timeout: %w", err)
	}
	idleTimeout, err := config.DurationOrDefault(cfg.Server.IdleTimeout, config.DefaultServerIdleTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse server idle timeout: %w", err)
	}

	s := &Server{
		relay:   rly,
		store:   worker,
		catalog: catalog,
		tutorID: cfg.Agent.TutorID,
	}

	// WriteTimeout stays zero: chat responses are open-ended SSE streams.
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     s.routes(),
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/letta", s.handleLetta)
	mux.HandleFunc("/api/letta/lessons", s.handleLessons)
	mux.HandleFunc("/api/progress", s.handleProgress)
	mux.HandleFunc("/api/activity", s.handleActivity)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	slog.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
