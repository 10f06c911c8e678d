package mcp

import (
	"encoding/json"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewTextResult creates a CallToolResult with text content
func NewTextResult(text string) *mcp_sdk.CallToolResult {
	return &mcp_sdk.CallToolResult{
		Content: []mcp_sdk.Content{
			&mcp_sdk.TextContent{Text: text},
		},
	}
}

// NewErrorResult creates a CallToolResult indicating an error
func NewErrorResult(msg string) *mcp_sdk.CallToolResult {
	return &mcp_sdk.CallToolResult{
		IsError: true,
		Content: []mcp_sdk.Content{
			&mcp_sdk.TextContent{Text: msg},
		},
	}
}

// NewJSONResult renders v as a JSON text result. A command result of
// null is rendered as the text "null".
func NewJSONResult(v any) *mcp_sdk.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return NewErrorResult(err.Error())
	}
	return NewTextResult(string(data))
}

// toResult renders a handler outcome as tool content. Errors become an
// error result rather than a protocol error.
func toResult(result any, err error) *mcp_sdk.CallToolResult {
	if err != nil {
		return NewErrorResult(err.Error())
	}
	if ctr, ok := result.(*mcp_sdk.CallToolResult); ok {
		return ctr
	}
	return NewJSONResult(result)
}
