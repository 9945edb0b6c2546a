// Package mcp implements the Model Context Protocol server for Hanashi.
//
// The MCP server exposes the routing pipeline through MCP tools and
// resources, so MCP-compatible AI agents can route utterances and inspect
// the entity catalog and turn history.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hanashi-ai/hanashi/internal/catalog"
	"github.com/hanashi-ai/hanashi/internal/history"
	"github.com/hanashi-ai/hanashi/internal/model"
	"github.com/hanashi-ai/hanashi/internal/route"
)

// Server wraps the MCP server with Hanashi's routing layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	router    *route.Holder
	catalog   *catalog.Catalog
	history   *history.Store
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
// History may be nil when turn history is disabled.
func New(router *route.Holder, cat *catalog.Catalog, hist *history.Store, logger *slog.Logger) *Server {
	s := &Server{
		router:  router,
		catalog: cat,
		history: hist,
		logger:  logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"hanashi",
		"0.1.0",
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// hanashi://entities: the current entity catalog snapshot.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"hanashi://entities",
			"Entity Catalog",
			mcplib.WithResourceDescription("Controllable entities with names and aliases known to the deterministic matcher"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleEntities,
	)

	// hanashi://turns/recent: recently routed turns.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"hanashi://turns/recent",
			"Recent Turns",
			mcplib.WithResourceDescription("Recently routed turns with stage, outcome, and executed service calls"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRecentTurns,
	)
}

func (s *Server) registerTools() {
	// hanashi_process routes one utterance.
	s.mcpServer.AddTool(
		mcplib.NewTool("hanashi_process",
			mcplib.WithDescription("Route a voice command through the deterministic matcher and agent chain, executing a device action when confident"),
			mcplib.WithString("text", mcplib.Description("The utterance to route"), mcplib.Required()),
			mcplib.WithString("conversation_id", mcplib.Description("Conversation UUID for multi-turn context")),
			mcplib.WithString("debug", mcplib.Description("Trace detail appended to the response: none, low, or verbose")),
		),
		s.handleProcess,
	)

	// hanashi_refresh_catalog rebuilds the entity catalog.
	s.mcpServer.AddTool(
		mcplib.NewTool("hanashi_refresh_catalog",
			mcplib.WithDescription("Rebuild the entity catalog from the home automation source"),
		),
		s.handleRefreshCatalog,
	)
}

func (s *Server) handleEntities(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	snap, err := s.catalog.Ensure(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: entity catalog: %w", err)
	}

	data, err := json.MarshalIndent(snap.Entities, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal entities: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "hanashi://entities",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleRecentTurns(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.history == nil {
		return nil, fmt.Errorf("mcp: turn history is disabled")
	}

	records, err := s.history.Recent(ctx, 20)
	if err != nil {
		return nil, fmt.Errorf("mcp: recent turns: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal turns: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "hanashi://turns/recent",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleProcess(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	text := request.GetString("text", "")
	if err := model.ValidateTurnText(text); err != nil {
		return errorResult(err.Error()), nil
	}

	conversationID := uuid.New()
	if raw := request.GetString("conversation_id", ""); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return errorResult("conversation_id must be a UUID"), nil
		}
		conversationID = parsed
	}

	router := s.router.Current()
	if debug := request.GetString("debug", ""); debug != "" {
		router = router.WithDebug(model.ParseDebugLevel(debug))
	}

	turn := model.Turn{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Text:           text,
		ReceivedAt:     time.Now().UTC(),
	}

	decision, err := router.Route(ctx, turn)
	if err != nil {
		s.logger.Warn("mcp: turn routing failed", "turn_id", turn.ID, "error", err)
	}

	resultData, err := json.MarshalIndent(model.TurnResponse{
		TurnID:         decision.TurnID.String(),
		ConversationID: decision.ConversationID.String(),
		Stage:          decision.Stage,
		Outcome:        decision.Outcome,
		Response:       decision.Response,
		Executed:       decision.Executed,
		DurationMS:     decision.Duration.Milliseconds(),
	}, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal decision: %v", err)), nil
	}

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func (s *Server) handleRefreshCatalog(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	snap, err := s.catalog.Refresh(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("catalog refresh failed: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(model.RefreshResponse{
		Entities:  len(snap.Entities),
		BuiltAt:   snap.BuiltAt,
		Refreshed: true,
	}, "", "  ")

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
