// Package server exposes the agent's invocation surface: POST /invocations
// starts a session asynchronously, GET /ping reports busy/idle health.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/voicewire/voicewire/pkg/agent"
	"github.com/voicewire/voicewire/pkg/tools"
)

// Runner starts one session and blocks until it finishes.
type Runner func(ctx context.Context, params agent.Params) error

type Server struct {
	echo   *echo.Echo
	runner Runner
	logger *slog.Logger
	busy   atomic.Bool
}

func New(runner Runner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		echo:   echo.New(),
		runner: runner,
		logger: logger,
	}
	s.echo.POST("/invocations", s.handleInvocation)
	s.echo.GET("/ping", s.handlePing)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Busy reports whether a session is currently running.
func (s *Server) Busy() bool {
	return s.busy.Load()
}

type invocationRequest struct {
	SessionID    string          `json:"sessionId"`
	UserID       string          `json:"userId"`
	SystemPrompt string          `json:"systemPrompt"`
	VoiceID      string          `json:"voiceId"`
	MCPConfig    tools.MCPConfig `json:"mcpConfig"`
}

func (s *Server) handleInvocation(c *echo.Context) error {
	var req invocationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SessionID == "" || req.UserID == "" || req.VoiceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sessionId, userId and voiceId are required")
	}
	if !s.busy.CompareAndSwap(false, true) {
		return echo.NewHTTPError(http.StatusConflict, "a session is already running")
	}

	s.logger.Info("invocation received", "session", req.SessionID, "user", req.UserID, "voice", req.VoiceID)
	go func() {
		defer s.busy.Store(false)
		err := s.runner(context.Background(), agent.Params{
			SessionID:    req.SessionID,
			UserID:       req.UserID,
			SystemPrompt: req.SystemPrompt,
			VoiceID:      req.VoiceID,
			MCPConfig:    req.MCPConfig,
		})
		if err != nil {
			s.logger.Error("session run failed", "session", req.SessionID, "error", err)
		}
	}()

	return c.JSON(http.StatusOK, map[string]string{
		"response": "ok",
		"status":   "success",
	})
}

func (s *Server) handlePing(c *echo.Context) error {
	status := "Healthy"
	if s.busy.Load() {
		status = "HealthyBusy"
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":              status,
		"time_of_last_update": time.Now().Unix(),
	})
}
