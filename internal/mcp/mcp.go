// Package mcp implements the Model Context Protocol server for Annai.
//
// The MCP server exposes routing and catalog operations as MCP tools, so
// MCP-compatible AI agents can route input through the same orchestration
// path as the HTTP API.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/annai/internal/auth"
	"github.com/ashita-ai/annai/internal/model"
	"github.com/ashita-ai/annai/internal/service/router"
	"github.com/ashita-ai/annai/internal/storage"
)

// ClaimsFunc extracts the caller's JWT claims from a request context.
// Injected by the caller to avoid a dependency on the server package.
type ClaimsFunc func(ctx context.Context) *auth.Claims

// Server wraps the MCP server with Annai's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	db        *storage.DB
	router    *router.Router
	claims    ClaimsFunc
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all tools registered.
func New(db *storage.DB, rt *router.Router, claims ClaimsFunc, logger *slog.Logger, version string) *Server {
	s := &Server{
		db:     db,
		router: rt,
		claims: claims,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"annai",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	// annai_route — route free-text input to a skill and invoke it.
	s.mcpServer.AddTool(
		mcplib.NewTool("annai_route",
			mcplib.WithDescription("Route free-text input to the best matching skill and return the skill's response"),
			mcplib.WithString("input", mcplib.Description("Free-text input to route"), mcplib.Required()),
			mcplib.WithString("request_id", mcplib.Description("Idempotency key; generated when omitted")),
		),
		s.handleRoute,
	)

	// annai_list_skills — the active skill catalog.
	s.mcpServer.AddTool(
		mcplib.NewTool("annai_list_skills",
			mcplib.WithDescription("List the active skills available for routing"),
		),
		s.handleListSkills,
	)

	// annai_route_history — the caller's past routing attempts.
	s.mcpServer.AddTool(
		mcplib.NewTool("annai_route_history",
			mcplib.WithDescription("List the caller's past routing attempts, newest first"),
			mcplib.WithNumber("page", mcplib.Description("Page number, starting at 1")),
			mcplib.WithNumber("limit", mcplib.Description("Results per page")),
		),
		s.handleRouteHistory,
	)
}

func (s *Server) handleRoute(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	input := request.GetString("input", "")
	if input == "" {
		return errorResult("input is required"), nil
	}

	var userID *uuid.UUID
	if claims := s.claims(ctx); claims != nil {
		id := claims.SubjectID()
		userID = &id
	}

	env, err := s.router.Route(ctx, userID, model.RouteRequest{
		Input:     input,
		RequestID: request.GetString("request_id", ""),
	}, map[string]any{"transport": "mcp"})
	if err != nil {
		switch {
		case errors.Is(err, router.ErrDuplicateRequest):
			return errorResult("request_id has already been processed"), nil
		case errors.Is(err, router.ErrNoSkillsAvailable):
			return errorResult("no active skills available"), nil
		}
		var invErr *router.InvocationError
		if errors.As(err, &invErr) {
			return errorResult(fmt.Sprintf("skill invocation failed: %v", invErr)), nil
		}
		return errorResult(fmt.Sprintf("routing failed: %v", err)), nil
	}

	return jsonResult(env), nil
}

func (s *Server) handleListSkills(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	active := true
	skills, err := s.db.ListSkills(ctx, storage.SkillFilter{IsActive: &active})
	if err != nil {
		return errorResult(fmt.Sprintf("failed to list skills: %v", err)), nil
	}
	if skills == nil {
		skills = []model.Skill{}
	}

	return jsonResult(model.SkillListResponse{
		Count:  len(skills),
		Skills: skills,
	}), nil
}

func (s *Server) handleRouteHistory(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims := s.claims(ctx)
	if claims == nil {
		return errorResult("authentication required"), nil
	}

	page := request.GetInt("page", 1)
	limit := request.GetInt("limit", 20)

	history, err := s.router.GetHistory(ctx, claims.SubjectID(), page, limit)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to load route history: %v", err)), nil
	}

	return jsonResult(history), nil
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
