package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
)

// toolResponse is the decoded outcome of a tools/call message.
type toolResponse struct {
	IsError  bool
	Text     string
	RPCError string
}

func newTestServer() *server.MCPServer {
	return server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
}

// callTool executes an MCP tool via the server's HandleMessage method.
func callTool(t *testing.T, s *server.MCPServer, name string, arguments map[string]any) toolResponse {
	t.Helper()

	reqBytes, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"id":      1,
		"params": map[string]any{
			"name":      name,
			"arguments": arguments,
		},
	})
	require.NoError(t, err)

	resultBytes, err := json.Marshal(s.HandleMessage(context.Background(), reqBytes))
	require.NoError(t, err)

	var response struct {
		Result *struct {
			IsError bool              `json:"isError"`
			Content []mcp.TextContent `json:"content"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resultBytes, &response))

	if response.Error != nil {
		return toolResponse{RPCError: response.Error.Message}
	}
	require.NotNil(t, response.Result)
	out := toolResponse{IsError: response.Result.IsError}
	if len(response.Result.Content) > 0 {
		out.Text = response.Result.Content[0].Text
	}
	return out
}

// listTools returns the registered tool names with their descriptions.
func listTools(t *testing.T, s *server.MCPServer) map[string]string {
	t.Helper()

	resultBytes, err := json.Marshal(s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resultBytes, &response))

	tools := make(map[string]string, len(response.Result.Tools))
	for _, tool := range response.Result.Tools {
		tools[tool.Name] = tool.Description
	}
	return tools
}

// decodeText unmarshals a tool result's JSON text into v.
func decodeText(t *testing.T, resp toolResponse, v any) {
	t.Helper()
	require.Empty(t, resp.RPCError)
	require.NoError(t, json.Unmarshal([]byte(resp.Text), v))
}
