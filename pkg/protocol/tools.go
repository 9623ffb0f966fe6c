package protocol

import (
	"encoding/json"
)

// Tool represents a tool in the MCP protocol
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Clone returns a deep copy of the tool descriptor
func (t Tool) Clone() Tool {
	c := t
	if t.InputSchema != nil {
		c.InputSchema = append(json.RawMessage(nil), t.InputSchema...)
	}
	return c
}

// ListToolsResult defines the response for listing tools
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams defines parameters for calling a tool
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// ContentTypeText marks a plain text content item
const ContentTypeText = "text"

// Content is one item of a tool result
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult defines the response for tool calls
type CallToolResult struct {
	Content []Content `json:"content"`
}

// TextResult wraps free text as a single text content item
func TextResult(text string) *CallToolResult {
	return &CallToolResult{
		Content: []Content{{Type: ContentTypeText, Text: text}},
	}
}
