// Package server provides the HTTP API for kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vectorstore"
	"go.uber.org/zap"
)

// WatchService is the directory watcher as seen by the API.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the kotae API.
type Server struct {
	pipeline *rag.Pipeline
	indexer  *indexer.Indexer
	storage  storage.Storage
	store    *vectorstore.Store
	cfg      *config.Config
	validate *validator.Validate
	logger   *zap.Logger

	watch      WatchService
	configPath string
	cfgMu      sync.Mutex

	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWatch enables the watch directory endpoints. When configPath is set,
// directory changes are written back to that config file.
func WithWatch(w WatchService, configPath string) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(
	pipeline *rag.Pipeline,
	idx *indexer.Indexer,
	st storage.Storage,
	store *vectorstore.Store,
	cfg *config.Config,
	opts ...Option,
) *Server {
	s := &Server{
		pipeline: pipeline,
		indexer:  idx,
		storage:  st,
		store:    store,
		cfg:      cfg,
		validate: validator.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the API routes. The streaming endpoint sits outside the
// timeout and compression middleware so deltas reach the client as they are
// produced.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/api/v1/ask/stream", s.handleAskStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))

		r.Post("/api/v1/ask", s.handleAsk)

		r.Get("/api/v1/documents", s.handleListDocuments)
		r.Post("/api/v1/documents", s.handleIngestDocument)
		r.Post("/api/v1/documents/upload", s.handleUploadDocument)
		r.Post("/api/v1/documents/refresh", s.handleRefresh)
		r.Get("/api/v1/documents/{id}", s.handleGetDocument)
		r.Post("/api/v1/documents/{id}/embed", s.handleReembed)
		r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)

		r.Get("/api/v1/status", s.handleStatus)

		r.Get("/api/v1/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/api/v1/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/api/v1/watch/directories", s.handleWatchDirectoriesRemove)

		r.Get("/health", s.handleHealth)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
