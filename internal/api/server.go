package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"recipescan/internal/config"
	"recipescan/internal/domain"
)

// Ingestor runs the full ingestion workflow for one upload.
type Ingestor interface {
	Ingest(ctx context.Context, upload domain.Upload) (*domain.RecipeRecord, error)
}

// RecipeReader is the read-only record store surface the handlers need.
type RecipeReader interface {
	GetRecipe(ctx context.Context, id int64) (*domain.RecipeRecord, error)
	ListRecipes(ctx context.Context) ([]domain.RecipeSummary, error)
	SearchRecipes(ctx context.Context, query string) ([]domain.RecipeSummary, error)
	Ping(ctx context.Context) error
}

// Pinger is the optional cache dependency checked by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	ingestor   Ingestor
	recipes    RecipeReader
	cache      Pinger // nil when redis is not configured
	logger     *zap.Logger
}

func NewServer(cfg *config.Config, ing Ingestor, recipes RecipeReader, cache Pinger, l *zap.Logger) *Server {
	s := &Server{
		config:   cfg,
		ingestor: ing,
		recipes:  recipes,
		cache:    cache,
		logger:   l,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
