// Package api exposes browsing sessions over HTTP for a web front end.
package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/geodir/internal/engine/search"
	"github.com/rendis/geodir/internal/engine/session"
)

// Server wires HTTP routes to sessions.
type Server struct {
	store      *Store
	backend    search.Backend
	categories *session.CategoryResolver
	logger     *slog.Logger
	metrics    bool
}

type ServerOptions struct {
	Metrics bool
}

func NewServer(store *Store, backend search.Backend, categories *session.CategoryResolver, logger *slog.Logger, opts ServerOptions) *Server {
	return &Server{
		store:      store,
		backend:    backend,
		categories: categories,
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.health)
	if s.metrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	api.GET("/categories", s.listCategories)
	api.GET("/listings/:id", s.getListing)
	api.GET("/places/predictions", s.predictions)

	api.POST("/sessions", s.createSession)
	sess := api.Group("/sessions/:id", s.loadSession)
	{
		sess.GET("", s.getSession)
		sess.PUT("/category", s.setCategory)
		sess.PUT("/query", s.setQuery)
		sess.PUT("/page", s.setPage)
		sess.PATCH("/filters/pending", s.editPending)
		sess.POST("/filters/apply", s.applyFilters)
		sess.POST("/filters/clear", s.clearFilters)
		sess.POST("/geo/area", s.searchArea)
		sess.POST("/geo/place", s.selectPlace)
		sess.GET("/search", s.search)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
