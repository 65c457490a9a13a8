package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/relayscout/pkg/logging"
	"github.com/ekaya-inc/relayscout/pkg/services"
)

// ActorToolDeps contains dependencies for per-actor tools.
type ActorToolDeps struct {
	Report     services.DiscoveryReportService
	Enrichment services.DeepEnrichmentService
	Logger     *zap.Logger
}

// RegisterActorTools registers the profile timeline and deep enrichment tools.
func RegisterActorTools(s *server.MCPServer, deps *ActorToolDeps) {
	registerGetActorStatsTool(s, deps)
	registerEnrichActorTool(s, deps)
}

func registerGetActorStatsTool(s *server.MCPServer, deps *ActorToolDeps) {
	tool := mcp.NewTool(
		"get_actor_stats",
		mcp.WithDescription(
			"Get the stored profile history of one actor, newest first. Each entry lists the name, "+
				"lightning address, relays that delivered it, and what changed from the previous version. "+
				"Call enrich_actor first to fetch the full history.",
		),
		mcp.WithString(
			"actor",
			mcp.Required(),
			mcp.Description("Actor public key as 64 hex characters"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("actor")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		actor, err := services.NormalizeActor(raw)
		if err != nil {
			return NewServiceErrorResult(err)
		}

		stats, err := deps.Report.ActorStats(actor)
		if err != nil {
			return NewServiceErrorResult(err)
		}
		return jsonResult(stats)
	})
}

func registerEnrichActorTool(s *server.MCPServer, deps *ActorToolDeps) {
	tool := mcp.NewTool(
		"enrich_actor",
		mcp.WithDescription(
			"Fetch every stored profile version of one actor from all registered relays for a short window. "+
				"Returns immediately; the fetch continues in the background. Poll get_actor_stats for results.",
		),
		mcp.WithString(
			"actor",
			mcp.Required(),
			mcp.Description("Actor public key as 64 hex characters"),
		),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		actor, err := req.RequireString("actor")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		run, err := deps.Enrichment.Enrich(ctx, trimString(actor))
		if err != nil {
			return NewServiceErrorResult(err)
		}
		deps.Logger.Debug("Enrichment started via MCP",
			zap.String("actor", logging.ShortActor(run.Actor)),
			zap.String("run_id", run.ID))
		return jsonResult(run)
	})
}
