// Package server exposes the chat engine over HTTP with lifecycle
// management.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/parley-go/internal/auth"
	"github.com/raphaelgruber/parley-go/internal/chat"
	"github.com/raphaelgruber/parley-go/internal/metrics"
	"github.com/raphaelgruber/parley-go/internal/models"
)

// ChatService is the engine surface the handlers depend on.
type ChatService interface {
	Send(ctx context.Context, owner string, req models.ChatRequest) (*models.ChatResponse, error)
	Regenerate(ctx context.Context, owner string, req models.RegenerateRequest) (*models.ChatResponse, error)
}

// ModelLister enumerates selectable models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]models.ModelInfo, error)
	Healthy(ctx context.Context) bool
}

// SearchStatus reports search service availability for health checks.
type SearchStatus interface {
	Configured() bool
}

// StoreStatus reports database availability for health checks.
type StoreStatus interface {
	Healthy(ctx context.Context) bool
}

// Server wires the HTTP surface: routing, auth, graceful shutdown.
type Server struct {
	engine  ChatService
	store   chat.Store
	llm     ModelLister
	search  SearchStatus
	dbState StoreStatus
	tokens  *auth.Manager
	metrics *metrics.Collector
	logger  *slog.Logger

	router *gin.Engine
	http   *http.Server
}

// New creates the server and registers all routes.
func New(engine ChatService, store chat.Store, llm ModelLister, search SearchStatus, dbState StoreStatus, tokens *auth.Manager, mc *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		engine:  engine,
		store:   store,
		llm:     llm,
		search:  search,
		dbState: dbState,
		tokens:  tokens,
		metrics: mc,
		logger:  logger,
		router:  router,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Use(requestLogger(s.logger))

	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api/v1")
	api.Use(bearerAuth(s.tokens))
	{
		api.POST("/chat/send", s.handleSend)
		api.POST("/chat/regenerate", s.handleRegenerate)
		api.GET("/chat/models", s.handleListModels)

		api.GET("/conversations", s.handleListConversations)
		api.GET("/conversations/:id", s.handleGetConversation)
		api.GET("/conversations/:id/messages", s.handleListMessages)
		api.GET("/conversations/:id/export", s.handleExportConversation)
		api.PUT("/conversations/:id", s.handleRenameConversation)
		api.DELETE("/conversations/:id", s.handleDeleteConversation)
		api.DELETE("/messages/:id", s.handleDeleteMessage)
	}
}

// Handler returns the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP on addr until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
