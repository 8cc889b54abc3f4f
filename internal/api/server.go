// Package api exposes the intelligence query surface over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cyberintel/internal/model"
	"cyberintel/internal/pipeline"
	"cyberintel/internal/progress"
	"cyberintel/internal/ratelimit"
	"cyberintel/internal/store"
)

const (
	readTimeout  = 10 * time.Second
	writeTimeout = 120 * time.Second // refresh queries can run long
	idleTimeout  = 120 * time.Second
)

// Server wires the pipeline behind a gin router.
type Server struct {
	pipeline *pipeline.Pipeline
	store    store.Store
	limiter  *ratelimit.Limiter
	progress *progress.Broadcaster
	router   *gin.Engine
	server   *http.Server
}

// NewServer builds the router. limiter and broadcaster may be nil, which
// disables throttling and progress streaming respectively.
func NewServer(addr string, p *pipeline.Pipeline, s store.Store, limiter *ratelimit.Limiter, b *progress.Broadcaster) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	srv := &Server{
		pipeline: p,
		store:    s,
		limiter:  limiter,
		progress: b,
		router:   router,
		server: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
	}

	router.GET("/", srv.handleRoot)
	router.GET("/health", srv.handleHealth)
	router.POST("/search", srv.rateLimited("search"), srv.handleSearch)
	router.GET("/progress", srv.handleProgress)
	return srv
}

func (s *Server) Start() error {
	slog.Info("http server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "cyberintel",
		"endpoints": gin.H{
			"search":   "POST /search",
			"health":   "GET /health",
			"progress": "GET /progress",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	stats, err := s.store.Statistics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "stats": stats})
}

func (s *Server) handleSearch(c *gin.Context) {
	var params model.QueryParams
	if err := c.ShouldBindJSON(&params); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("invalid request body: %v", err),
		})
		return
	}
	res := s.pipeline.Search(c.Request.Context(), params)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
	}
	c.JSON(status, res)
}

// handleProgress streams pipeline status updates as server-sent events
// until the client disconnects.
func (s *Server) handleProgress(c *gin.Context) {
	if s.progress == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "progress streaming disabled"})
		return
	}
	updates, cancel := s.progress.Subscribe()
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case u, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("progress", u)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// rateLimited enforces the per-client window when a limiter is configured.
func (s *Server) rateLimited(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		v := s.limiter.Allow(c.Request.Context(), c.ClientIP(), endpoint)
		if !v.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(v.RetryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
