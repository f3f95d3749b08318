// Package mcp serves the task tools to programmatic clients over JSON-RPC,
// authenticated by API key. Mutations go through the same task service as
// the browser API, so open tabs see them through the same broadcasts.
package mcp

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"taskplanner/internal/model"
	"taskplanner/internal/service"
)

const credentialContextKey = "mcpCredential"

type methodHandler func(ctx context.Context, cred *model.Credential, req *Request) (interface{}, *Error)

type Server struct {
	tasks   *service.TaskService
	apiKeys *service.APIKeyService
	now     func() time.Time

	methods map[string]methodHandler
	tools   map[string]toolEntry
	order   []string
}

func NewServer(tasks *service.TaskService, apiKeys *service.APIKeyService) *Server {
	s := &Server{
		tasks:   tasks,
		apiKeys: apiKeys,
		now:     time.Now,
	}
	s.methods = map[string]methodHandler{
		"initialize": s.initialize,
		"tools/list": s.listTools,
		"tools/call": s.callTool,
	}
	s.registerTools()
	return s
}

// Authenticate resolves the API key before anything else reads the body.
func (s *Server) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			abortUnauthorized(c)
			return
		}

		cred, apiErr := s.apiKeys.Validate(c.Request.Context(), strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
		if apiErr != nil {
			abortUnauthorized(c)
			return
		}

		c.Set(credentialContextKey, cred)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, failure(nil, &Error{Code: CodeUnauthorized, Message: authRequiredMessage}))
}

func credential(c *gin.Context) *model.Credential {
	value, ok := c.Get(credentialContextKey)
	if !ok {
		return nil
	}
	cred, _ := value.(*model.Credential)
	return cred
}

// HandlePost answers one JSON-RPC request. Protocol errors travel in the
// envelope with status 200; notifications get 202 and no body.
func (s *Server) HandlePost(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusOK, failure(nil, newError(CodeParseError, "Parse error")))
		return
	}

	resp := s.Handle(c.Request.Context(), credential(c), body)
	if resp == nil {
		c.Status(http.StatusAccepted)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Handle dispatches a raw request body on behalf of cred. It returns nil
// for notifications.
func (s *Server) Handle(ctx context.Context, cred *model.Credential, body []byte) *Response {
	if cred == nil {
		return failure(nil, &Error{Code: CodeUnauthorized, Message: authRequiredMessage})
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return failure(nil, newError(CodeParseError, "Parse error"))
	}
	if req.Method == "" {
		return failure(req.ID, newError(CodeInvalidRequest, "Invalid request: method is required"))
	}
	if req.JSONRPC != jsonRPCVersion {
		return failure(req.ID, newError(CodeInvalidRequest, "Invalid request: jsonrpc must be %q", jsonRPCVersion))
	}

	if req.IsNotification() || strings.HasPrefix(req.Method, "notifications/") {
		return nil
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		return failure(req.ID, newError(CodeMethodNotFound, "Method %s not found", req.Method))
	}

	log.Printf("mcp: %s (user %s)", req.Method, cred.UserID)
	value, rpcErr := handler(ctx, cred, &req)
	if rpcErr != nil {
		return failure(req.ID, rpcErr)
	}
	return result(req.ID, value)
}

// HandleStream opens the server-to-client event stream of the streamable
// HTTP transport. It sends the connection event and ends.
func (s *Server) HandleStream(c *gin.Context) {
	if !strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		c.String(http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Expose-Headers", "Mcp-Session-Id")
	c.SSEvent("connection", gin.H{
		"type":      "connection",
		"timestamp": s.now().UTC().Format(isoLayout),
		"sessionId": uuid.NewString(),
	})
	c.Writer.Flush()
}

func (s *Server) initialize(_ context.Context, _ *model.Credential, req *Request) (interface{}, *Error) {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, newError(CodeInvalidParams, "Invalid params")
		}
	}
	if params.ProtocolVersion == "" {
		params.ProtocolVersion = defaultProtocolVersion
	}

	return InitializeResult{
		ProtocolVersion: params.ProtocolVersion,
		ServerInfo:      ServerInfo{Name: serverName, Version: serverVersion},
	}, nil
}

func (s *Server) listTools(_ context.Context, _ *model.Credential, _ *Request) (interface{}, *Error) {
	tools := make([]Tool, 0, len(s.order))
	for _, name := range s.order {
		tools = append(tools, s.tools[name].def)
	}
	return ListToolsResult{Tools: tools}, nil
}

func (s *Server) callTool(ctx context.Context, cred *model.Credential, req *Request) (interface{}, *Error) {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, newError(CodeInvalidParams, "Invalid params")
	}

	tool, ok := s.tools[params.Name]
	if !ok {
		return nil, newError(CodeInvalidParams, "Tool %s not found", params.Name)
	}
	if !cred.Permissions.Allows(tool.permission) {
		return nil, newError(CodeInternalError, "API key lacks %s permission", tool.permission)
	}

	args := params.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	out, err := tool.run(ctx, cred.UserID, args)
	if err != nil {
		log.Printf("mcp: tool %s failed: %v", params.Name, err)
		return nil, toolError(err)
	}
	return out, nil
}
