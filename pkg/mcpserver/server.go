// Package mcpserver implements the tool provider half of the streamable
// HTTP protocol: a POST endpoint for JSON-RPC requests answered as SSE
// data records, and a GET endpoint holding the notification stream.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/billagent/pkg/mcp"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/billagent", "mcpserver")

// MethodToolsListChanged notifies connected clients that the tool set
// changed and should be rediscovered.
const MethodToolsListChanged = "notifications/tools/list_changed"

const notifyBuffer = 8

// JSON-RPC error codes.
const (
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

type toolEntry struct {
	tool    mcp.Tool
	handler func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error)
}

type session struct {
	id          string
	initialized bool
	notify      chan mcp.Message
}

// Server is a single-endpoint tool provider. Register tools with
// Register before serving; the tool set may also change at runtime,
// followed by NotifyToolsChanged.
type Server struct {
	info         mcp.Info
	instructions string

	mu       sync.RWMutex
	tools    *orderedmap.OrderedMap[string, *toolEntry]
	sessions map[string]*session
}

// Option configures a Server.
type Option func(*Server)

// WithInstructions sets the instructions text returned at handshake.
func WithInstructions(text string) Option {
	return func(s *Server) {
		s.instructions = text
	}
}

// New creates a tool provider server.
func New(info mcp.Info, opts ...Option) *Server {
	s := &Server{
		info:     info,
		tools:    orderedmap.New[string, *toolEntry](),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) addTool(tool mcp.Tool, handler func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools.Set(strings.ToLower(tool.Name), &toolEntry{tool: tool, handler: handler})
}

// Tools returns the registered tool descriptors in registration order.
func (s *Server) Tools() []mcp.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]mcp.Tool, 0, s.tools.Len())
	for pair := s.tools.Oldest(); pair != nil; pair = pair.Next() {
		list = append(list, pair.Value.tool)
	}
	return list
}

// NotifyToolsChanged pushes a list_changed notification to every
// connected session. Sessions with a full notification buffer are
// skipped.
func (s *Server) NotifyToolsChanged() {
	msg := mcp.Message{
		JSONRPC: mcp.JSONRPCVersion,
		Method:  MethodToolsListChanged,
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		select {
		case sess.notify <- msg:
		default:
			logger.KV(xlog.WARNING,
				"status", "notification_dropped",
				"session", sess.id,
			)
		}
	}
}

// ServeHTTP handles both halves of the protocol on one endpoint:
// POST carries JSON-RPC requests, GET holds the notification stream.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleStream(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	msg, err := mcp.DecodeMessage(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if msg.IsNotification() {
		s.handleNotification(w, r, msg)
		return
	}

	if msg.Method == mcp.MethodInitialize {
		s.handleInitialize(w, r, msg)
		return
	}

	sess := s.findSession(r)
	if sess == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	// Tool traffic requires an acknowledged handshake; close does not.
	if msg.Method == mcp.MethodToolsList || msg.Method == mcp.MethodToolsCall {
		s.mu.RLock()
		initialized := sess.initialized
		s.mu.RUnlock()
		if !initialized {
			s.writeError(w, r, msg.ID, codeInvalidRequest, "session not initialized")
			return
		}
	}

	switch msg.Method {
	case mcp.MethodToolsList:
		s.writeResult(w, r, msg.ID, mcp.ListToolsResult{Tools: s.Tools()})
	case mcp.MethodToolsCall:
		s.handleToolsCall(w, r, msg)
	case mcp.MethodClose:
		s.removeSession(sess.id)
		s.writeResult(w, r, msg.ID, struct{}{})
	default:
		s.writeError(w, r, msg.ID, codeMethodNotFound, "method not found: "+msg.Method)
	}
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, msg mcp.Message) {
	var params mcp.InitializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			s.writeError(w, r, msg.ID, codeInvalidParams, "invalid initialize params")
			return
		}
	}
	if params.ProtocolVersion != mcp.ProtocolVersion {
		logger.ContextKV(r.Context(), xlog.WARNING,
			"status", "protocol_version_mismatch",
			"client", params.ProtocolVersion,
		)
	}

	sess := &session{
		id:     uuid.New().String(),
		notify: make(chan mcp.Message, notifyBuffer),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	logger.ContextKV(r.Context(), xlog.DEBUG,
		"status", "session_created",
		"session", sess.id,
		"client", params.ClientInfo.Name,
	)

	// The session identifier travels in a header, set before the
	// stream is flushed.
	w.Header().Set(mcp.SessionHeader, sess.id)
	s.writeResult(w, r, msg.ID, mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Tools: &mcp.ToolsCapability{ListChanged: true},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	})
}

func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request, msg mcp.Message) {
	sess := s.findSession(r)
	if sess == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	if msg.Method == mcp.MethodNotificationsInitialized {
		s.mu.Lock()
		sess.initialized = true
		s.mu.Unlock()
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, msg mcp.Message) {
	var params mcp.CallToolParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.writeError(w, r, msg.ID, codeInvalidParams, "invalid tools/call params")
		return
	}

	s.mu.RLock()
	entry, ok := s.tools.Get(strings.ToLower(params.Name))
	s.mu.RUnlock()
	if !ok {
		s.writeError(w, r, msg.ID, codeInvalidParams, "tool not found: "+params.Name)
		return
	}

	result, err := entry.handler(r.Context(), params.Arguments)
	if err != nil {
		// Handler failures are tool results, not protocol errors.
		logger.ContextKV(r.Context(), xlog.WARNING,
			"status", "tool_failed",
			"tool", params.Name,
			"err", err.Error(),
		)
		result = &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(err.Error())},
			IsError: true,
		}
	}
	s.writeResult(w, r, msg.ID, result)
}

// handleStream holds the GET notification stream open until the client
// disconnects or the session is closed.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess := s.findSession(r)
	if sess == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	upgraded, err := sse.Upgrade(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// Push the response headers out so the client sees the stream as
	// established before the first notification arrives.
	if err := upgraded.Flush(); err != nil {
		return
	}

	logger.ContextKV(r.Context(), xlog.DEBUG,
		"status", "notification_stream_opened",
		"session", sess.id,
	)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-sess.notify:
			if !ok {
				return
			}
			if err := sendEvent(upgraded, msg); err != nil {
				logger.KV(xlog.DEBUG,
					"status", "notification_send_failed",
					"session", sess.id,
					"err", err.Error(),
				)
				return
			}
		}
	}
}

func (s *Server) findSession(r *http.Request) *session {
	id := r.Header.Get(mcp.SessionHeader)
	if id == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		close(sess.notify)
		delete(s.sessions, id)
	}
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, id string, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeMessage(w, r, mcp.Message{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      id,
		Result:  raw,
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, id string, code int, message string) {
	s.writeMessage(w, r, mcp.Message{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      id,
		Error:   &mcp.Error{Code: code, Message: message},
	})
}

// writeMessage answers a POST request with a short-lived event stream
// carrying a single data record.
func (s *Server) writeMessage(w http.ResponseWriter, r *http.Request, msg mcp.Message) {
	upgraded, err := sse.Upgrade(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := sendEvent(upgraded, msg); err != nil {
		logger.KV(xlog.WARNING, "status", "write_failed", "err", err.Error())
	}
}

func sendEvent(sess *sse.Session, msg mcp.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return errors.WithStack(err)
	}
	ev := &sse.Message{}
	ev.AppendData(string(raw))
	if err := sess.Send(ev); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(sess.Flush())
}
