// Package server assembles the HTTP surface: the REST API, webhook intake,
// and the module-registered routes.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/curatarr/curatarr/internal/config"
	"github.com/curatarr/curatarr/internal/database"
	"github.com/curatarr/curatarr/internal/events"
	"github.com/curatarr/curatarr/internal/logger"
	"github.com/curatarr/curatarr/internal/modules/jobmodule"
	"github.com/curatarr/curatarr/internal/modules/modulemanager"
	"github.com/curatarr/curatarr/internal/modules/scannermodule"
	"github.com/curatarr/curatarr/internal/modules/wsmodule"
)

// Server hosts the API.
type Server struct {
	cfg      *config.Config
	db       *gorm.DB
	settings *database.Settings
	scanner  *scannermodule.Module
	queue    *jobmodule.Queue
	ws       *wsmodule.Module
	bus      events.EventBus

	engine *gin.Engine
	http   *http.Server
}

// New builds the server and registers every route.
func New(cfg *config.Config, db *gorm.DB, settings *database.Settings,
	scanner *scannermodule.Module, queue *jobmodule.Queue,
	ws *wsmodule.Module, bus events.EventBus) *Server {

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	if cfg.Server.EnableCORS {
		engine.Use(corsMiddleware())
	}

	s := &Server{
		cfg:      cfg,
		db:       db,
		settings: settings,
		scanner:  scanner,
		queue:    queue,
		ws:       ws,
		bus:      bus,
		engine:   engine,
	}
	s.registerRoutes()

	if ws != nil {
		ws.SetMutationHandler(s.handleMutation)
	}
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.health)

	api := s.engine.Group("/api")
	s.registerLibraryRoutes(api)
	s.registerMovieRoutes(api)
	s.registerSettingsRoutes(api)
	s.registerWebhookRoutes(api)

	modulemanager.RegisterRoutes(s.engine)
}

// Start begins serving and blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	logger.Info("HTTP server listening", "addr", addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.Ping() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "curatarr",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/health" {
			return
		}
		logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
