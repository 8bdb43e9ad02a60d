// Package server exposes the monitoring pipeline over HTTP and
// WebSocket and runs the background schedules.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harborwatch/harborwatch-monitor/internal/audit"
	"github.com/harborwatch/harborwatch-monitor/internal/collector"
	"github.com/harborwatch/harborwatch-monitor/internal/config"
	"github.com/harborwatch/harborwatch-monitor/internal/db"
	"github.com/harborwatch/harborwatch-monitor/internal/insights"
	"github.com/harborwatch/harborwatch-monitor/internal/middleware"
	"github.com/harborwatch/harborwatch-monitor/internal/monitor"
	"github.com/harborwatch/harborwatch-monitor/internal/remediation"
)

// Deps carries the wired components the server serves.
type Deps struct {
	Store       db.Store
	Monitor     *monitor.Service
	Remediation *remediation.Service
	Insights    *insights.Store
	Collector   *collector.Collector
	Scheduler   *Scheduler
	Hub         *Hub
	Audit       audit.Logger
	Logger      *zap.Logger
}

// Server represents the monitoring server.
type Server struct {
	cfg  *config.Config
	deps Deps

	httpServer *http.Server
	limiter    *middleware.RateLimiter

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// New creates a new monitoring server.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		cfg:    cfg,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
	}

	// New reports and insights fan out to connected WebSocket clients.
	if deps.Hub != nil && deps.Insights != nil {
		deps.Insights.Subscribe("websocket-hub", deps.Hub.Broadcast)
	}

	if cfg.Server.ActionRateLimitPerMinute > 0 {
		srv.limiter = middleware.NewRateLimiter(cfg.Server.ActionRateLimitPerMinute)
	}

	return srv, nil
}

// Start starts the HTTP listener and the background schedules.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if s.deps.Scheduler != nil {
		s.deps.Scheduler.Run(s.ctx, &s.wg)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deps.Logger.Info("starting http server", zap.Int("port", s.cfg.Server.Port))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.deps.Logger.Error("http server error", zap.Error(err))
		}
	}()

	if s.deps.Audit != nil {
		_ = s.deps.Audit.Log(s.ctx, audit.NewEvent(audit.EventServerStarted).
			WithResult(audit.ResultSuccess).
			WithMetadata("port", s.cfg.Server.Port).
			WithMetadata("environments", len(s.cfg.Environments)).
			WithDescription("Monitoring server started"))
	}

	s.deps.Logger.Info("server started",
		zap.Int("environments", len(s.cfg.Environments)),
		zap.Bool("llm_enabled", s.cfg.LLM.Enabled),
		zap.Duration("sweep_interval", s.cfg.SweepInterval()))

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	s.deps.Logger.Info("stopping server")

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.deps.Logger.Error("error shutting down http server", zap.Error(err))
		}
	}

	s.cancel()

	if s.limiter != nil {
		s.limiter.Stop()
	}

	if s.deps.Hub != nil {
		s.deps.Hub.CloseAll()
	}

	s.wg.Wait()

	if s.deps.Audit != nil {
		_ = s.deps.Audit.Log(context.Background(), audit.NewEvent(audit.EventServerShutdown).
			WithResult(audit.ResultSuccess).
			WithDescription("Monitoring server stopped"))
	}

	s.deps.Logger.Info("server stopped")
	return nil
}

// Wait blocks until the server is stopped.
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
