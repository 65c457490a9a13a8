package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/relayscout/pkg/logging"
	"github.com/ekaya-inc/relayscout/pkg/models"
	"github.com/ekaya-inc/relayscout/pkg/services"
)

// DiscoveryToolDeps contains dependencies for discovery session tools.
type DiscoveryToolDeps struct {
	Session  services.DiscoverySessionService
	Report   services.DiscoveryReportService
	Registry services.SourceRegistry
	Logger   *zap.Logger
}

// RegisterDiscoveryTools registers session, index and relay registry tools.
func RegisterDiscoveryTools(s *server.MCPServer, deps *DiscoveryToolDeps) {
	registerGetDiscoveryStatusTool(s, deps)
	registerStartDiscoveryTool(s, deps)
	registerStopDiscoveryTool(s, deps)
	registerListDiscoveredAddressesTool(s, deps)
	registerListSourcesTool(s, deps)
	registerAddSourceTool(s, deps)
	registerRemoveSourceTool(s, deps)
}

type discoveryStatusResponse struct {
	Session   *services.SessionStatus `json:"session"`
	Addresses []services.AddressView  `json:"addresses"`
}

func registerGetDiscoveryStatusTool(s *server.MCPServer, deps *DiscoveryToolDeps) {
	tool := mcp.NewTool(
		"get_discovery_status",
		mcp.WithDescription(
			"Get the current discovery session: state, status message, per-relay connection status, "+
				"and the lightning addresses admitted so far in admission order.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(discoveryStatusResponse{
			Session:   deps.Session.Status(),
			Addresses: deps.Report.Addresses(),
		})
	})
}

func registerStartDiscoveryTool(s *server.MCPServer, deps *DiscoveryToolDeps) {
	tool := mcp.NewTool(
		"start_discovery",
		mcp.WithDescription(
			"Start a new discovery session. Clears every previous result and subscribes to all registered relays. "+
				"The session stops on its own once the address cap is reached; poll get_discovery_status for progress.",
		),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status, err := deps.Session.Start(ctx)
		if err != nil {
			return NewServiceErrorResult(err)
		}
		deps.Logger.Info("Discovery started via MCP", zap.String("session_id", status.SessionID))
		return jsonResult(status)
	})
}

func registerStopDiscoveryTool(s *server.MCPServer, deps *DiscoveryToolDeps) {
	tool := mcp.NewTool(
		"stop_discovery",
		mcp.WithDescription("Stop the running discovery session. Results collected so far are kept."),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(deps.Session.Stop(models.StopManual))
	})
}

func registerListDiscoveredAddressesTool(s *server.MCPServer, deps *DiscoveryToolDeps) {
	tool := mcp.NewTool(
		"list_discovered_addresses",
		mcp.WithDescription(
			"List admitted lightning addresses in admission order with the relays that reported them "+
				"and their verification result when available.",
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Maximum number of addresses to return (default: all)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		addresses := deps.Report.Addresses()
		if limit, ok := getOptionalFloat(req, "limit"); ok {
			if limit < 1 {
				return NewErrorResult("invalid_limit", "limit must be at least 1"), nil
			}
			if int(limit) < len(addresses) {
				addresses = addresses[:int(limit)]
			}
		}

		return jsonResult(struct {
			Addresses []services.AddressView `json:"addresses"`
			Count     int                    `json:"count"`
		}{Addresses: addresses, Count: len(addresses)})
	})
}

func registerListSourcesTool(s *server.MCPServer, deps *DiscoveryToolDeps) {
	tool := mcp.NewTool(
		"list_sources",
		mcp.WithDescription("List the relays the next discovery session will subscribe to."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(struct {
			Sources []models.Source `json:"sources"`
		}{Sources: deps.Registry.List()})
	})
}

func registerAddSourceTool(s *server.MCPServer, deps *DiscoveryToolDeps) {
	tool := mcp.NewTool(
		"add_source",
		mcp.WithDescription(
			"Register a relay by websocket URL (ws:// or wss://). The relay is probed before it is added. "+
				"Running sessions are not affected.",
		),
		mcp.WithString(
			"url",
			mcp.Required(),
			mcp.Description("Relay websocket URL, e.g. wss://relay.damus.io"),
		),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		source, err := deps.Registry.Add(ctx, trimString(url))
		if err != nil {
			deps.Logger.Debug("Relay not added",
				zap.String("url", logging.SanitizeSourceURL(url)),
				zap.String("error", logging.SanitizeError(err)))
			return NewServiceErrorResult(err)
		}
		return jsonResult(source)
	})
}

func registerRemoveSourceTool(s *server.MCPServer, deps *DiscoveryToolDeps) {
	tool := mcp.NewTool(
		"remove_source",
		mcp.WithDescription("Unregister a relay. Running sessions keep their existing subscriptions."),
		mcp.WithString(
			"url",
			mcp.Required(),
			mcp.Description("Registered relay URL to remove"),
		),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		if err := deps.Registry.Remove(trimString(url)); err != nil {
			return NewServiceErrorResult(err)
		}
		return jsonResult(map[string]string{"removed": trimString(url)})
	})
}
