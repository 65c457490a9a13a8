package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/relayscout/pkg/apperrors"
)

// getTextContent extracts the text string from the first text content item.
func getTextContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewErrorResult(t *testing.T) {
	result := NewErrorResult("invalid_actor", "actor must be 64 hex characters")
	require.True(t, result.IsError)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(getTextContent(t, result)), &resp))
	assert.True(t, resp.Error)
	assert.Equal(t, "invalid_actor", resp.Code)
	assert.Equal(t, "actor must be 64 hex characters", resp.Message)
	assert.Nil(t, resp.Details)
}

func TestNewErrorResultWithDetails(t *testing.T) {
	result := NewErrorResultWithDetails("no_sources", "no relays registered", map[string]any{"relays": 0})

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(getTextContent(t, result)), &raw))
	assert.Equal(t, map[string]any{"relays": float64(0)}, raw["details"])
}

func TestNewServiceErrorResult(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"not found", fmt.Errorf("actor: %w", apperrors.ErrNotFound), "not_found"},
		{"session running", apperrors.ErrSessionRunning, "session_running"},
		{"no sources", apperrors.ErrNoSources, "no_sources"},
		{"invalid actor", apperrors.ErrInvalidActor, "invalid_actor"},
		{"invalid address", apperrors.ErrInvalidAddress, "invalid_address"},
		{"unreachable", apperrors.ErrSourceUnreachable, "source_unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, IsInputError(tt.err))

			result, err := NewServiceErrorResult(tt.err)
			require.NoError(t, err)
			require.True(t, result.IsError)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(getTextContent(t, result)), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}

	t.Run("server failure passes through", func(t *testing.T) {
		boom := errors.New("boom")
		assert.False(t, IsInputError(boom))
		assert.False(t, IsInputError(nil))

		result, err := NewServiceErrorResult(boom)
		assert.Nil(t, result)
		assert.Equal(t, boom, err)
	})
}
