// Package mcp implements the MCP server exposing the vectorization and
// search operations as tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/spetr/dirvec/internal/config"
	"github.com/spetr/dirvec/internal/search"
	"github.com/spetr/dirvec/internal/vectorize"
	"github.com/spetr/dirvec/pkg/provider"
)

// Server implements the MCP server.
type Server struct {
	mcpServer    *server.MCPServer
	projectDir   string
	config       *config.Config
	store        provider.VectorStore
	orchestrator *vectorize.Orchestrator
	search       *search.Service
}

// Config contains server configuration.
type Config struct {
	ProjectDir   string
	Config       *config.Config
	Store        provider.VectorStore
	Orchestrator *vectorize.Orchestrator
	Search       *search.Service
}

// New creates a new MCP server.
func New(cfg Config) (*Server, error) {
	s := &Server{
		projectDir:   cfg.ProjectDir,
		config:       cfg.Config,
		store:        cfg.Store,
		orchestrator: cfg.Orchestrator,
		search:       cfg.Search,
	}

	mcpServer := server.NewMCPServer(
		"dirvec",
		"0.1.0",
		server.WithLogging(),
	)

	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s, nil
}

// registerTools registers all MCP tools.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	// vectorize_project - vectorize all unprocessed files and directories
	mcpServer.AddTool(mcp.NewTool("vectorize_project",
		mcp.WithDescription("Vectorize all unprocessed files and directories in the project"),
	), s.handleVectorizeProject)

	// vectorize_file - vectorize a single file
	mcpServer.AddTool(mcp.NewTool("vectorize_file",
		mcp.WithDescription("Vectorize a single file and return its record id"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the file")),
	), s.handleVectorizeFile)

	// search_similar - similarity search
	mcpServer.AddTool(mcp.NewTool("search_similar",
		mcp.WithDescription("Find files and directories similar to a text query"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 10)")),
	), s.handleSearchSimilar)

	// list_items - browse stored records
	mcpServer.AddTool(mcp.NewTool("list_items",
		mcp.WithDescription("List stored embedding records"),
		mcp.WithNumber("limit", mcp.Description("Maximum records (default 100, 0 = all)")),
	), s.handleListItems)

	// get_status - store statistics
	mcpServer.AddTool(mcp.NewTool("get_status",
		mcp.WithDescription("Get vector store status and statistics"),
	), s.handleGetStatus)

	// clear_storage - drop all records
	mcpServer.AddTool(mcp.NewTool("clear_storage",
		mcp.WithDescription("Delete all embedding records and reset the store dimension"),
	), s.handleClearStorage)
}

func (s *Server) handleVectorizeProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.orchestrator.VectorizeAll(ctx, s.projectDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("vectorization failed: %v", err)), nil
	}

	payload := map[string]any{
		"processed": result.Processed,
		"errors":    result.Errors,
	}
	jsonResult, _ := json.MarshalIndent(payload, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) handleVectorizeFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("path is required"), nil
	}

	id, err := s.orchestrator.VectorizeFile(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("vectorization failed: %v", err)), nil
	}

	payload := map[string]any{"id": id, "path": path}
	jsonResult, _ := json.MarshalIndent(payload, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) handleSearchSimilar(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	limit := req.GetInt("limit", s.config.Search.DefaultLimit)

	results, err := s.search.SearchSimilar(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	var formatted []map[string]any
	for _, r := range results {
		formatted = append(formatted, map[string]any{
			"path":       r.Item.Path,
			"type":       r.Item.Type,
			"kind":       r.Item.Kind,
			"similarity": r.Similarity,
			"raw":        r.Item.Raw,
		})
	}

	jsonResult, _ := json.MarshalIndent(map[string]any{
		"query":   query,
		"results": formatted,
	}, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) handleListItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 100)

	results, err := s.search.Browse(limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing failed: %v", err)), nil
	}

	var formatted []map[string]any
	for _, r := range results {
		formatted = append(formatted, map[string]any{
			"id":         r.Item.ID,
			"path":       r.Item.Path,
			"type":       r.Item.Type,
			"kind":       r.Item.Kind,
			"created_at": r.Item.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	jsonResult, _ := json.MarshalIndent(formatted, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) handleGetStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.search.Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}

	result := map[string]any{
		"total_items": stats.TotalItems,
		"dimensions":  stats.Dimensions,
		"db_size":     formatBytes(stats.DBSizeBytes),
	}

	jsonResult, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) handleClearStorage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.store.Clear(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("clear failed: %v", err)), nil
	}
	return mcp.NewToolResultText("storage cleared"), nil
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// formatBytes formats bytes to human readable string.
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
