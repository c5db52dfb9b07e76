// Package api wires the gin engine for the publisher HTTP service: logging,
// recovery and CORS middleware, the /api/x routes, health and index pages.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brightmind/post-publisher/internal/api/handlers/xapi"
	"github.com/brightmind/post-publisher/internal/api/middleware"
	xauth "github.com/brightmind/post-publisher/internal/auth/x"
	"github.com/brightmind/post-publisher/internal/buildinfo"
	"github.com/brightmind/post-publisher/internal/config"
	"github.com/brightmind/post-publisher/internal/logging"
	"github.com/brightmind/post-publisher/internal/publish"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Builder creates the auth session and publisher for a configuration. It runs
// again on every config reload.
type Builder func(cfg *config.Config) (xapi.AuthSession, xapi.Publisher)

// DefaultBuilder builds the X OAuth session and publish pipeline from cfg.
func DefaultBuilder(cfg *config.Config) (xapi.AuthSession, xapi.Publisher) {
	return xauth.NewXAuth(cfg), publish.NewPipeline(cfg)
}

// Server is the HTTP front of the publisher.
type Server struct {
	engine  *gin.Engine
	handler *xapi.Handler
	build   Builder
	origins atomic.Pointer[[]string]

	mu      sync.Mutex
	cfg     *config.Config
	server  *http.Server
	stopped bool
}

// NewServer creates a server using DefaultBuilder.
func NewServer(cfg *config.Config) *Server {
	return NewServerWithBuilder(cfg, DefaultBuilder)
}

// NewServerWithBuilder creates a server whose collaborators come from build.
func NewServerWithBuilder(cfg *config.Config, build Builder) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if build == nil {
		build = DefaultBuilder
	}
	auth, pub := build(cfg)
	s := &Server{
		handler: xapi.NewHandler(cfg, auth, pub),
		build:   build,
		cfg:     cfg,
	}
	s.setOrigins(cfg.AllowedOrigins)
	s.engine = s.setupEngine()
	return s
}

// Handler exposes the gin engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())
	engine.Use(middleware.CORS(s.allowedOrigins))

	engine.GET("/", s.index)
	engine.GET("/health", s.health)

	h := s.handler
	x := engine.Group("/api/x")
	{
		x.GET("/auth/config", h.Config)
		x.POST("/auth/initiate", h.Initiate)
		x.POST("/auth/token", h.Token)
		x.POST("/auth/refresh", h.Refresh)

		authed := x.Group("", middleware.RequireBearer())
		authed.POST("/auth/revoke", h.Revoke)
		authed.GET("/user", h.User)
		authed.GET("/user/tweets", h.UserPosts)
		authed.GET("/user/rate-limits", h.RateLimits)
		authed.POST("/post", h.Post)
		authed.POST("/post/with-media", h.PostWithMedia)
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not found",
			"message": fmt.Sprintf("Route %s %s not found", c.Request.Method, c.Request.URL.Path),
		})
	})
	return engine
}

func (s *Server) health(c *gin.Context) {
	logging.SkipGinRequestLogging(c)
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   buildinfo.Version,
	})
}

func (s *Server) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "post-publisher",
		"version": buildinfo.Version,
		"endpoints": gin.H{
			"health": "GET /health",
			"auth": []string{
				"GET /api/x/auth/config",
				"POST /api/x/auth/initiate",
				"POST /api/x/auth/token",
				"POST /api/x/auth/refresh",
				"POST /api/x/auth/revoke",
			},
			"user": []string{
				"GET /api/x/user",
				"GET /api/x/user/tweets",
				"GET /api/x/user/rate-limits",
			},
			"post": []string{
				"POST /api/x/post",
				"POST /api/x/post/with-media",
			},
		},
	})
}

func (s *Server) allowedOrigins() []string {
	if p := s.origins.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *Server) setOrigins(origins []string) {
	cp := append([]string(nil), origins...)
	s.origins.Store(&cp)
}

// UpdateConfig rebuilds the auth session and publisher from cfg and applies
// its CORS origins. The listen address only changes on restart.
func (s *Server) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	auth, pub := s.build(cfg)
	s.handler.SetConfig(cfg, auth, pub)
	s.setOrigins(cfg.AllowedOrigins)

	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	s.mu.Unlock()

	if old != nil && (old.Port != cfg.Port || old.Host != cfg.Host) {
		log.Warn("listen address changed; restart the server to apply it")
	}
	log.Info("server configuration updated")
}

// Start listens on the configured address and serves until Stop is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	if s.server != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.server = srv
	s.mu.Unlock()

	log.Infof("post-publisher listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed on %s: %w", addr, err)
	}
	return nil
}

// Stop gracefully shuts the server down, waiting at most until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.stopped = true
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(stopCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
