package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testInfo = Info{Name: "billagent-test", Version: "0.1.0"}

// fakeProvider is an in-process streamable HTTP tool provider.
type fakeProvider struct {
	t         *testing.T
	sessionID string

	// omitSessionHeader simulates a server that never assigns a session.
	omitSessionHeader bool
	// rejectAck fails the initialized acknowledgement.
	rejectAck bool
	// callDelay stalls tools/call responses.
	callDelay time.Duration
	// interleave emits a notification and an unrelated response ahead
	// of the matching tools/call response.
	interleave bool

	mu             sync.Mutex
	methods        []string
	sessionHeaders []string
	streamOpened   bool
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		p.serveStream(w, r)
		return
	}

	var msg Message
	require.NoError(p.t, json.NewDecoder(r.Body).Decode(&msg))

	p.mu.Lock()
	p.methods = append(p.methods, msg.Method)
	p.sessionHeaders = append(p.sessionHeaders, r.Header.Get(SessionHeader))
	p.mu.Unlock()

	switch msg.Method {
	case MethodInitialize:
		if !p.omitSessionHeader {
			w.Header().Set(SessionHeader, p.sessionID)
		}
		p.respond(w, msg.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
			ServerInfo:      Info{Name: "fake-provider", Version: "1.0.0"},
		})
	case MethodNotificationsInitialized:
		if p.rejectAck {
			http.Error(w, "session expired", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	case MethodToolsList:
		p.respond(w, msg.ID, ListToolsResult{
			Tools: []Tool{
				{Name: "get_invoice", Description: "Get an invoice", InputSchema: json.RawMessage(`{"type":"object"}`)},
				{Name: "list_customers", Description: "List customers", InputSchema: json.RawMessage(`{"type":"object"}`)},
			},
		})
	case MethodToolsCall:
		if p.callDelay > 0 {
			select {
			case <-time.After(p.callDelay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "text/event-stream")
		if p.interleave {
			p.writeEvent(w, Message{
				JSONRPC: JSONRPCVersion,
				Method:  "notifications/message",
				Params:  json.RawMessage(`{"level":"info","data":"working"}`),
			})
			p.writeEvent(w, Message{
				JSONRPC: JSONRPCVersion,
				ID:      "stale-id",
				Result:  json.RawMessage(`{}`),
			})
		}
		var params CallToolParams
		require.NoError(p.t, json.Unmarshal(msg.Params, &params))
		result, _ := json.Marshal(CallToolResult{
			Content: []Content{NewTextContent(fmt.Sprintf("result of %s", params.Name))},
		})
		p.writeEvent(w, Message{JSONRPC: JSONRPCVersion, ID: msg.ID, Result: result})
	case MethodClose:
		w.WriteHeader(http.StatusOK)
	default:
		p.t.Errorf("unexpected method: %s", msg.Method)
	}
}

func (p *fakeProvider) serveStream(w http.ResponseWriter, r *http.Request) {
	assert.Equal(p.t, p.sessionID, r.Header.Get(SessionHeader))
	p.mu.Lock()
	p.streamOpened = true
	p.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	p.writeEvent(w, Message{
		JSONRPC: JSONRPCVersion,
		Method:  "notifications/tools/list_changed",
	})
	<-r.Context().Done()
}

func (p *fakeProvider) respond(w http.ResponseWriter, id string, result any) {
	bs, err := json.Marshal(result)
	require.NoError(p.t, err)
	w.Header().Set("Content-Type", "text/event-stream")
	p.writeEvent(w, Message{JSONRPC: JSONRPCVersion, ID: id, Result: bs})
}

func (p *fakeProvider) writeEvent(w http.ResponseWriter, msg Message) {
	bs, err := json.Marshal(msg)
	require.NoError(p.t, err)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", bs)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (p *fakeProvider) sessionHeaderSet() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	set := map[string]bool{}
	// Skip the initialize request, which carries no session yet.
	for i, m := range p.methods {
		if m == MethodInitialize {
			continue
		}
		set[p.sessionHeaders[i]] = true
	}
	return set
}

func newTestClient(t *testing.T, p *fakeProvider, options ...ClientOption) (*Client, *Session) {
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, testInfo, options...)
	sess, err := client.Connect(context.Background())
	require.NoError(t, err)
	return client, sess
}

func TestClient_Connect(t *testing.T) {
	p := &fakeProvider{t: t, sessionID: "sess-abc"}
	client, sess := newTestClient(t, p)
	defer func() { _ = client.Close() }()

	assert.Equal(t, "sess-abc", sess.ID)
	assert.Equal(t, ProtocolVersion, sess.ProtocolVersion)
	assert.Equal(t, "fake-provider", sess.ServerInfo.Name)
	require.NotNil(t, sess.Capabilities.Tools)
	assert.Equal(t, []string{MethodInitialize, MethodNotificationsInitialized}, p.methods)
}

func TestClient_Connect_NoSessionHeader(t *testing.T) {
	p := &fakeProvider{t: t, sessionID: "sess-abc", omitSessionHeader: true}
	srv := httptest.NewServer(p)
	defer srv.Close()

	client := NewClient(srv.URL, testInfo)
	_, err := client.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandshake)
	// The failed handshake must not have acknowledged.
	assert.Equal(t, []string{MethodInitialize}, p.methods)
}

func TestClient_Connect_AckRejected(t *testing.T) {
	p := &fakeProvider{t: t, sessionID: "sess-abc", rejectAck: true}
	srv := httptest.NewServer(p)
	defer srv.Close()

	// The handshake is not complete until the server accepts the
	// initialized acknowledgement.
	client := NewClient(srv.URL, testInfo)
	_, err := client.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandshake)
	assert.Contains(t, err.Error(), "404")
	assert.Nil(t, client.Session())
}

func TestClient_NotConnected(t *testing.T) {
	client := NewClient("http://localhost:0", testInfo)
	_, err := client.ListTools(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_ListTools(t *testing.T) {
	p := &fakeProvider{t: t, sessionID: "sess-abc"}
	client, _ := newTestClient(t, p)
	defer func() { _ = client.Close() }()

	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "get_invoice", tools[0].Name)
	assert.Equal(t, "list_customers", tools[1].Name)
}

func TestClient_CallTool(t *testing.T) {
	p := &fakeProvider{t: t, sessionID: "sess-abc", interleave: true}

	var notifications []string
	client, _ := newTestClient(t, p, WithNotificationHandler(func(msg Message) {
		notifications = append(notifications, msg.Method)
	}))
	defer func() { _ = client.Close() }()

	res, err := client.CallTool(context.Background(), "get_invoice", json.RawMessage(`{"invoice_id":"inv-1"}`))
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "result of get_invoice", res.Content[0].Text)
	assert.False(t, res.IsError)

	// The interleaved notification was forwarded and the response with
	// the stale correlation id was discarded.
	assert.Equal(t, []string{"notifications/message"}, notifications)
}

func TestClient_SessionHeaderOnEveryRequest(t *testing.T) {
	p := &fakeProvider{t: t, sessionID: "sess-abc"}
	client, _ := newTestClient(t, p)

	_, err := client.ListTools(context.Background())
	require.NoError(t, err)
	_, err = client.CallTool(context.Background(), "get_invoice", nil)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	assert.Equal(t, map[string]bool{"sess-abc": true}, p.sessionHeaderSet())
}

func TestClient_RequestTimeout(t *testing.T) {
	p := &fakeProvider{t: t, sessionID: "sess-abc", callDelay: time.Second}
	client, _ := newTestClient(t, p, WithRequestTimeout(50*time.Millisecond))
	defer func() { _ = client.Close() }()

	started := time.Now()
	_, err := client.CallTool(context.Background(), "get_invoice", nil)
	require.Error(t, err)
	assert.True(t, IsTimeout(err), "expected timeout, got: %v", err)
	assert.Less(t, time.Since(started), time.Second)
}

func TestClient_Close(t *testing.T) {
	p := &fakeProvider{t: t, sessionID: "sess-abc"}
	client, _ := newTestClient(t, p)

	require.NoError(t, client.Close())
	// Close is idempotent.
	require.NoError(t, client.Close())

	_, err := client.ListTools(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Contains(t, p.methods, MethodClose)
}

func TestClient_Listener(t *testing.T) {
	p := &fakeProvider{t: t, sessionID: "sess-abc"}

	notified := make(chan string, 8)
	client, _ := newTestClient(t, p, WithNotificationHandler(func(msg Message) {
		notified <- msg.Method
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, client.StartListener(ctx))

	select {
	case method := <-notified:
		assert.Equal(t, "notifications/tools/list_changed", method)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}

	// Double start is rejected.
	err := client.StartListener(ctx)
	require.Error(t, err)

	require.NoError(t, client.Close())
	select {
	case <-client.listenDone:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestClient_Listener_RequiresConnect(t *testing.T) {
	client := NewClient("http://localhost:0", testInfo)
	err := client.StartListener(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}
