package mcp

import (
	"encoding/json"
	"fmt"
)

const (
	jsonRPCVersion         = "2.0"
	defaultProtocolVersion = "2025-06-18"
	serverName             = "task-planner-mcp-server"
	serverVersion          = "1.0.0"
)

// JSON-RPC error codes. CodeUnauthorized is server defined.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32001
)

const authRequiredMessage = "Authentication required: Please provide a valid API key in Authorization header"

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports a request that expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc %d: %s", e.Code, e.Message)
}

func newError(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func result(id json.RawMessage, value interface{}) *Response {
	return &Response{JSONRPC: jsonRPCVersion, Result: value, ID: nullable(id)}
}

func failure(id json.RawMessage, err *Error) *Response {
	return &Response{JSONRPC: jsonRPCVersion, Error: err, ID: nullable(id)}
}

func nullable(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

type InitializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
}

type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ServerCapabilities struct {
	Tools     struct{} `json:"tools"`
	Prompts   struct{} `json:"prompts"`
	Resources struct{} `json:"resources"`
	Logging   struct{} `json:"logging"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type CallToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textResult(text string) *CallToolResult {
	return &CallToolResult{Content: []ToolContent{{Type: "text", Text: text}}}
}
