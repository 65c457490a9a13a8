package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/relayscout/pkg/services"
)

// VerificationToolDeps contains dependencies for address verification tools.
type VerificationToolDeps struct {
	Verifier services.AddressVerificationService
	Logger   *zap.Logger
}

// RegisterVerificationTools registers the lightning address lookup tools.
func RegisterVerificationTools(s *server.MCPServer, deps *VerificationToolDeps) {
	registerVerifyAddressTool(s, deps)
	registerListVerificationsTool(s, deps)
}

func registerVerifyAddressTool(s *server.MCPServer, deps *VerificationToolDeps) {
	tool := mcp.NewTool(
		"verify_address",
		mcp.WithDescription(
			"Resolve a lightning address (user@domain) to its LNURL-pay endpoint and report whether it is valid. "+
				"The result is stored and shown next to admitted addresses.",
		),
		mcp.WithString(
			"address",
			mcp.Required(),
			mcp.Description("Lightning address, e.g. alice@getalby.com"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		address, err := req.RequireString("address")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		result, err := deps.Verifier.Verify(ctx, trimString(address))
		if err != nil {
			return NewServiceErrorResult(err)
		}
		deps.Logger.Debug("Address verified via MCP",
			zap.String("address", result.Address),
			zap.String("status", string(result.Status)))
		return jsonResult(result)
	})
}

func registerListVerificationsTool(s *server.MCPServer, deps *VerificationToolDeps) {
	tool := mcp.NewTool(
		"list_address_verifications",
		mcp.WithDescription("List stored lightning address verification results sorted by address."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(struct {
			Verifications []services.AddressVerification `json:"verifications"`
		}{Verifications: deps.Verifier.List()})
	})
}
