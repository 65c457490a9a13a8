// Package tools provides MCP tool implementations for relayscout.
package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type healthResult struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status, version and uptime.
func RegisterHealthTool(s *server.MCPServer, version string) {
	started := time.Now()
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(healthResult{
			Status:  "ok",
			Version: version,
			Uptime:  time.Since(started).Round(time.Second).String(),
		})
	})
}
