// Package mcp implements a Model Context Protocol client over the
// streamable HTTP transport: JSON-RPC envelopes posted to a single
// endpoint, responses delivered as server-sent event records, and the
// session identity carried in the Mcp-Session-Id header.
package mcp

import (
	"encoding/json"
	"fmt"
)

// JSONRPCVersion is the JSON-RPC version used by the protocol.
const JSONRPCVersion = "2.0"

// ProtocolVersion is the protocol revision this client speaks.
const ProtocolVersion = "2025-03-26"

// SessionHeader carries the session identifier assigned by the server
// at handshake time. It travels out-of-band, never in the JSON body.
const SessionHeader = "Mcp-Session-Id"

// Methods used by this client.
const (
	MethodInitialize               = "initialize"
	MethodNotificationsInitialized = "notifications/initialized"
	MethodToolsList                = "tools/list"
	MethodToolsCall                = "tools/call"
	MethodClose                    = "close"
)

// Message is a JSON-RPC envelope. A request has both ID and Method,
// a notification has Method only, and a response has ID with either
// Result or Error set.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsNotification reports whether the message is a one-way notification.
func (m *Message) IsNotification() bool {
	return m.ID == "" && m.Method != ""
}

// IsResponse reports whether the message is a response to a request.
func (m *Message) IsResponse() bool {
	return m.ID != "" && m.Method == ""
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// Info identifies a protocol peer.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities declares optional client features.
// This client does not advertise any.
type ClientCapabilities struct{}

// ServerCapabilities declares the feature set advertised by the server.
type ServerCapabilities struct {
	Tools   *ToolsCapability   `json:"tools,omitempty"`
	Logging *LoggingCapability `json:"logging,omitempty"`
}

// ToolsCapability is present when the server exposes tools.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// LoggingCapability is present when the server emits log notifications.
type LoggingCapability struct{}

// InitializeParams is the payload of the initialize request.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Info               `json:"clientInfo"`
}

// InitializeResult is the body of the initialize response.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Info               `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// Tool describes a callable remote operation: a unique name, a
// human-readable description, and a JSON Schema for its arguments.
// Descriptors are immutable once fetched.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListToolsResult is the body of a tools/list response.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams is the payload of a tools/call request.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Content is one item of a tool result. Only text content is
// consumed by this client; other types are passed through verbatim.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// NewTextContent returns a text content item.
func NewTextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// CallToolResult is the body of a tools/call response. IsError marks
// a tool-level failure: the call completed on the wire, but the tool
// itself reports an error in its content.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}
