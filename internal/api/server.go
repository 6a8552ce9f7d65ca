// Package api assembles the HTTP surface: the platform webhook, the engine
// callback routes, and the operational endpoints.
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tengenlabs/tengen/internal/circuitbreaker"
	"github.com/tengenlabs/tengen/internal/dispatch"
	"github.com/tengenlabs/tengen/internal/handlers"
	"github.com/tengenlabs/tengen/internal/middleware"
	"github.com/tengenlabs/tengen/internal/storage"
)

const (
	readTimeout  = 15 * time.Second
	writeTimeout = 15 * time.Second
	idleTimeout  = 60 * time.Second

	// The review pipeline runs commentary and media synthesis after the
	// engine callback lands; the genmove follow-up only replays one game
	// and renders two boards.
	reviewCallbackTimeout  = 10 * time.Minute
	genMoveCallbackTimeout = 2 * time.Minute
)

// Config wires the server's routes.
type Config struct {
	Addr          string
	WebhookPath   string
	ChannelSecret string

	Events   handlers.EventSink
	Review   handlers.ReviewCompleter
	LivePlay handlers.MoveCompleter

	Store      storage.Store
	Dispatcher dispatch.Dispatcher
	Breakers   *circuitbreaker.ServiceBreakers
}

// Server is the HTTP front of the bot.
type Server struct {
	srv         *http.Server
	webhookPath string
	logger      *log.Logger
}

// New builds the route table and the HTTP server around it.
func New(cfg Config) *Server {
	webhookPath := cfg.WebhookPath
	if webhookPath == "" {
		webhookPath = "/webhook"
	}

	r := mux.NewRouter()
	r.Use(middleware.Logging, middleware.Recovery)

	r.HandleFunc(webhookPath, handlers.Webhook(handlers.WebhookConfig{
		Secret: cfg.ChannelSecret,
		Events: cfg.Events,
	})).Methods("POST")

	r.HandleFunc("/callback/review",
		handlers.ReviewCallback(cfg.Review, reviewCallbackTimeout)).Methods("POST")
	r.HandleFunc("/callback/get_ai_next_move",
		handlers.GenMoveCallback(cfg.LivePlay, genMoveCallbackTimeout)).Methods("POST")

	r.Handle("/health", middleware.CORS(handlers.Health(handlers.HealthConfig{
		Store:      cfg.Store,
		Dispatcher: cfg.Dispatcher,
		Breakers:   cfg.Breakers,
	}))).Methods("GET", "OPTIONS")
	r.Handle("/metrics", middleware.CORS(promhttp.Handler())).Methods("GET", "OPTIONS")

	return &Server{
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      r,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
		webhookPath: webhookPath,
		logger:      log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
}

// Handler exposes the assembled routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until the listener fails or Shutdown runs. A clean
// shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Printf("🚀 Listening on %s (webhook at %s)", s.srv.Addr, s.webhookPath)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until the context expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Printf("🔌 HTTP server shutting down")
	return s.srv.Shutdown(ctx)
}
