package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/annai/internal/auth"
	"github.com/ashita-ai/annai/internal/model"
	"github.com/ashita-ai/annai/internal/ratelimit"
	"github.com/ashita-ai/annai/internal/service/router"
	"github.com/ashita-ai/annai/internal/storage"
)

// Server is the Annai HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Handlers returns the underlying Handlers for access to SeedAdmin etc.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, MCPServer.
type ServerConfig struct {
	// Required dependencies.
	DB     *storage.DB
	JWTMgr *auth.JWTManager
	Router *router.Router
	Logger *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	DefaultPageLimit    int
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		Router:              cfg.Router,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		DefaultPageLimit:    cfg.DefaultPageLimit,
	})

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	// Anonymous traffic is limited by IP; authenticated users are exempt.
	anonRL := ratelimit.Middleware(cfg.Limiter, anonymousIPKeyFunc, reqIDFunc)
	// Credential exchange is limited by IP for everyone.
	authRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Auth endpoint (no auth required, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Routing endpoints. Submission and per-attempt lookup allow anonymous
	// callers; history is always scoped to the authenticated user.
	mux.Handle("POST /v1/route", anonRL(http.HandlerFunc(h.HandleRoute)))
	mux.Handle("GET /v1/route/history", http.HandlerFunc(h.HandleRouteHistory))
	mux.Handle("GET /v1/route/{request_id}", anonRL(http.HandlerFunc(h.HandleGetRoute)))

	// Skill catalog. Reads are open; mutations are admin-only.
	adminOnly := requireRole(model.RoleAdmin)
	mux.Handle("GET /v1/skills", anonRL(http.HandlerFunc(h.HandleListSkills)))
	mux.Handle("GET /v1/skills/{id}", anonRL(http.HandlerFunc(h.HandleGetSkill)))
	mux.Handle("POST /v1/skills", adminOnly(http.HandlerFunc(h.HandleRegisterSkill)))
	mux.Handle("PUT /v1/skills/{id}", adminOnly(http.HandlerFunc(h.HandleUpdateSkill)))
	mux.Handle("DELETE /v1/skills/{id}", adminOnly(http.HandlerFunc(h.HandleDeactivateSkill)))

	// User management (admin-only).
	mux.Handle("POST /v1/users", adminOnly(http.HandlerFunc(h.HandleCreateUser)))
	mux.Handle("GET /v1/users", adminOnly(http.HandlerFunc(h.HandleListUsers)))

	// MCP StreamableHTTP transport (any authenticated user).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", requireRole(model.RoleUser)(mcpHTTP))
	}

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// anonymousIPKeyFunc rate-limits by client IP, exempting authenticated users.
func anonymousIPKeyFunc(r *http.Request) string {
	if ClaimsFromContext(r.Context()) != nil {
		return ""
	}
	return ratelimit.IPKeyFunc(r)
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
