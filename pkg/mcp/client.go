package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var (
	defaultRequestTimeout = 30 * time.Second
	defaultCloseTimeout   = 5 * time.Second
)

// Session is the established connection context between the client and
// the tool provider. The ID is assigned by the server at handshake time
// and is immutable; it is presented on every subsequent request and on
// the streaming connection.
type Session struct {
	ID              string
	ProtocolVersion string
	Capabilities    ServerCapabilities
	ServerInfo      Info
}

// NotificationHandler receives server-pushed notifications, both those
// interleaved in request response streams and those arriving on the
// standalone listener connection.
type NotificationHandler func(msg Message)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for all connections.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

// WithNotificationHandler sets the handler for server-pushed
// notifications. Without one, notifications are logged and dropped.
func WithNotificationHandler(h NotificationHandler) ClientOption {
	return func(c *Client) {
		c.notify = h
	}
}

// Client is a synchronous MCP session client. It owns the protocol
// handshake, the session identity, and request/response correlation.
// A Client must be created with NewClient and connected with Connect
// before any other call; it establishes exactly one session for its
// lifetime and is closed with Close.
type Client struct {
	endpoint       string
	info           Info
	httpClient     *http.Client
	requestTimeout time.Duration
	notify         NotificationHandler

	mu      sync.Mutex
	session *Session
	closed  bool

	listenCancel context.CancelFunc
	listenDone   chan struct{}
}

// NewClient creates a client for the tool provider at endpoint.
func NewClient(endpoint string, info Info, options ...ClientOption) *Client {
	c := &Client{
		endpoint:       endpoint,
		info:           info,
		httpClient:     http.DefaultClient,
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Connect performs the two-phase handshake: it sends the initialize
// request, captures the session identifier from the Mcp-Session-Id
// response header, and acknowledges with the initialized notification.
// A missing session identifier is fatal for this client instance;
// Connect fails fast and must not be retried on the same Client.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.WithStack(ErrClosed)
	}
	if c.session != nil {
		c.mu.Unlock()
		return nil, errors.New("mcp: already connected")
	}
	c.mu.Unlock()

	id := uuid.New().String()
	body, err := EncodeRequest(MethodInitialize, InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCapabilities{},
		ClientInfo:      c.info,
	}, id)
	if err != nil {
		return nil, errors.WithMessage(ErrHandshake, err.Error())
	}

	resp, err := c.post(ctx, body, "")
	if err != nil {
		return nil, errors.WithMessagef(ErrHandshake, "initialize request: %s", err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.WithMessagef(ErrHandshake, "unexpected status code: %d", resp.StatusCode)
	}

	// The session identifier travels in a header, not in the body.
	sessionID := resp.Header.Get(SessionHeader)
	if sessionID == "" {
		return nil, errors.WithMessage(ErrHandshake, "server returned no session identifier")
	}

	msg, err := c.awaitResponse(resp.Body, id)
	if err != nil {
		return nil, errors.WithMessagef(ErrHandshake, "initialize response: %s", err.Error())
	}
	if msg.Error != nil {
		return nil, errors.WithMessagef(ErrHandshake, "initialize error: %s", msg.Error.Error())
	}

	var result InitializeResult
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		return nil, errors.WithMessagef(ErrHandshake, "failed to unmarshal initialize result: %s", err.Error())
	}
	if result.ProtocolVersion != ProtocolVersion {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "protocol_version_mismatch",
			"client", ProtocolVersion,
			"server", result.ProtocolVersion,
		)
	}

	sess := &Session{
		ID:              sessionID,
		ProtocolVersion: result.ProtocolVersion,
		Capabilities:    result.Capabilities,
		ServerInfo:      result.ServerInfo,
	}

	// The acknowledgement must precede any other request.
	notif, err := EncodeNotification(MethodNotificationsInitialized, nil)
	if err != nil {
		return nil, errors.WithMessage(ErrHandshake, err.Error())
	}
	ackResp, err := c.post(ctx, notif, sessionID)
	if err != nil {
		return nil, errors.WithMessagef(ErrHandshake, "initialized notification: %s", err.Error())
	}
	_, _ = io.Copy(io.Discard, ackResp.Body)
	_ = ackResp.Body.Close()
	if ackResp.StatusCode < http.StatusOK || ackResp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.WithMessagef(ErrHandshake, "initialized notification: unexpected status code: %d", ackResp.StatusCode)
	}

	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "session_established",
		"server", sess.ServerInfo.Name,
	)
	return sess, nil
}

// Session returns the established session, or nil before Connect.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Request sends a request and blocks until the response with the
// matching correlation id arrives or the request timeout elapses.
// On timeout the caller may retry idempotent list methods, but must
// not retry tools/call: the side effect may already have occurred.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	sessionID, err := c.sessionID()
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	body, err := EncodeRequest(method, params, id)
	if err != nil {
		return nil, &RequestError{Kind: ErrorKindDecode, Method: method, Err: err}
	}

	rctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.post(rctx, body, sessionID)
	if err != nil {
		return nil, c.requestError(rctx, method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &RequestError{
			Kind:   ErrorKindTransport,
			Method: method,
			Err:    errors.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	msg, err := c.awaitResponse(resp.Body, id)
	if err != nil {
		return nil, c.requestError(rctx, method, err)
	}
	if msg.Error != nil {
		return nil, &RequestError{Kind: ErrorKindTransport, Method: method, Err: msg.Error}
	}
	return msg.Result, nil
}

// ListTools fetches the advertised tool descriptors.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	res, err := c.Request(ctx, MethodToolsList, struct{}{})
	if err != nil {
		return nil, err
	}
	var result ListToolsResult
	if err := json.Unmarshal(res, &result); err != nil {
		return nil, &RequestError{Kind: ErrorKindDecode, Method: MethodToolsList, Err: err}
	}
	return result.Tools, nil
}

// CallTool invokes a remote tool by name.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*CallToolResult, error) {
	res, err := c.Request(ctx, MethodToolsCall, CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	var result CallToolResult
	if err := json.Unmarshal(res, &result); err != nil {
		return nil, &RequestError{Kind: ErrorKindDecode, Method: MethodToolsCall, Err: err}
	}
	return &result, nil
}

// Close sends a best-effort close request, stops the listener, and
// prevents further requests. In-flight requests are left to complete
// or time out on their own; they are never aborted.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sess := c.session
	cancel := c.listenCancel
	done := c.listenDone
	c.mu.Unlock()

	if sess != nil {
		ctx, cancelReq := context.WithTimeout(context.Background(), defaultCloseTimeout)
		defer cancelReq()

		body, err := EncodeRequest(MethodClose, nil, uuid.New().String())
		if err == nil {
			resp, err := c.post(ctx, body, sess.ID)
			if err != nil {
				logger.KV(xlog.DEBUG, "status", "close_request_failed", "err", err.Error())
			} else {
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
			}
		}
	}

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(listenerGracePeriod):
			logger.KV(xlog.WARNING, "status", "listener_did_not_stop_in_time")
		}
	}
	return nil
}

func (c *Client) sessionID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", errors.WithStack(ErrClosed)
	}
	if c.session == nil {
		return "", errors.WithStack(ErrNotConnected)
	}
	return c.session.ID, nil
}

func (c *Client) post(ctx context.Context, body []byte, sessionID string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	return c.httpClient.Do(req)
}

// awaitResponse scans the SSE records of body for the response whose
// id matches. Interleaved notifications are forwarded; responses with
// an unknown correlation id are discarded with a warning.
func (c *Client) awaitResponse(body io.Reader, id string) (Message, error) {
	for msg := range decodeEventStream(body) {
		if msg.IsNotification() {
			c.handleNotification(msg)
			continue
		}
		if msg.ID != id {
			logger.KV(xlog.WARNING,
				"status", "unmatched_response_discarded",
				"id", msg.ID,
			)
			continue
		}
		return msg, nil
	}
	return Message{}, errors.New("stream ended without matching response")
}

func (c *Client) handleNotification(msg Message) {
	if c.notify != nil {
		c.notify(msg)
		return
	}
	logger.KV(xlog.DEBUG, "status", "notification", "method", msg.Method)
}

func (c *Client) requestError(ctx context.Context, method string, err error) *RequestError {
	kind := ErrorKindTransport
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = ErrorKindTimeout
	}
	return &RequestError{Kind: kind, Method: method, Err: err}
}
