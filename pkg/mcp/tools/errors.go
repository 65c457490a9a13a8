package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/relayscout/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// Returned as a successful tool result so the client sees the details
// instead of a bare protocol error.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for actionable errors (bad input, unknown actor, a session that is
// already running). System failures should still return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// serviceErrorCodes maps domain errors to tool error codes.
var serviceErrorCodes = []struct {
	err  error
	code string
}{
	{apperrors.ErrNotFound, "not_found"},
	{apperrors.ErrConflict, "already_exists"},
	{apperrors.ErrSessionRunning, "session_running"},
	{apperrors.ErrNoSources, "no_sources"},
	{apperrors.ErrInvalidSourceURL, "invalid_url"},
	{apperrors.ErrInvalidActor, "invalid_actor"},
	{apperrors.ErrInvalidAddress, "invalid_address"},
	{apperrors.ErrSourceUnreachable, "source_unreachable"},
}

// IsInputError reports whether err was caused by the caller's input or the
// current session state rather than a server failure.
func IsInputError(err error) bool {
	return inputErrorCode(err) != ""
}

func inputErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range serviceErrorCodes {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return ""
}

// NewServiceErrorResult converts a service error into a tool result. Input
// errors become structured error results; anything else is returned as a Go
// error for the transport to report.
func NewServiceErrorResult(err error) (*mcp.CallToolResult, error) {
	if code := inputErrorCode(err); code != "" {
		return NewErrorResult(code, err.Error()), nil
	}
	return nil, err
}
