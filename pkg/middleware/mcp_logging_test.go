package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func serveMCP(t *testing.T, logger *zap.Logger, reqBody, respBody string) *httptest.ResponseRecorder {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(respBody))
	})

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(reqBody))
	rec := httptest.NewRecorder()
	MCPRequestLogger(logger)(handler).ServeHTTP(rec, req)
	return rec
}

func TestMCPRequestLogger_Success(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	reqBody := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_discovery_status","arguments":{}}}`
	rec := serveMCP(t, zap.New(core), reqBody, `{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"ok"}]}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"text":"ok"`)
	require.Equal(t, 2, logs.Len())

	requestLog := logs.All()[0]
	assert.Equal(t, "MCP request", requestLog.Message)
	assert.Equal(t, "tools/call", requestLog.ContextMap()["method"])
	assert.Equal(t, "get_discovery_status", requestLog.ContextMap()["tool"])

	responseLog := logs.All()[1]
	assert.Equal(t, "MCP response success", responseLog.Message)
	assert.Equal(t, false, responseLog.ContextMap()["tool_error"])
	assert.NotNil(t, responseLog.ContextMap()["duration"])
}

func TestMCPRequestLogger_ErrorResponse(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	reqBody := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"start_discovery"}}`
	serveMCP(t, zap.New(core), reqBody, `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"no sources"}}`)

	require.Equal(t, 2, logs.Len())
	responseLog := logs.All()[1]
	assert.Equal(t, "MCP response error", responseLog.Message)
	assert.Equal(t, "start_discovery", responseLog.ContextMap()["tool"])
	assert.Equal(t, int64(-32603), responseLog.ContextMap()["error_code"])
	assert.Equal(t, "no sources", responseLog.ContextMap()["error_message"])
}

func TestMCPRequestLogger_ToolError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	reqBody := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"enrich_actor"}}`
	serveMCP(t, zap.New(core), reqBody, `{"jsonrpc":"2.0","id":1,"result":{"isError":true,"content":[]}}`)

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, true, logs.All()[1].ContextMap()["tool_error"])
}

func TestMCPRequestLogger_NilLogger(t *testing.T) {
	rec := serveMCP(t, nil, `{}`, `{"result":{}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"result":{}}`, rec.Body.String())
}

func TestSanitizeArguments(t *testing.T) {
	actor := strings.Repeat("ab", 32)
	long := strings.Repeat("x", 300)

	got := sanitizeArguments(map[string]any{
		"actor":     actor,
		"url":       "wss://user:pw@relay.example/?token=abc",
		"api_token": "s3cr3t",
		"address":   long,
		"limit":     float64(5),
	})

	assert.Equal(t, "abababab...abababab", got["actor"])
	assert.Equal(t, "wss://[REDACTED]@relay.example/?token=[REDACTED]", got["url"])
	assert.Equal(t, "[REDACTED]", got["api_token"])
	assert.Equal(t, long[:maxArgumentLength]+"...", got["address"])
	assert.Equal(t, float64(5), got["limit"])
	assert.Nil(t, sanitizeArguments(nil))
}
