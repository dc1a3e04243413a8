package mcp

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

// listenerGracePeriod bounds how long Close waits for the listener
// goroutine to drain after its context is cancelled.
const listenerGracePeriod = 3 * time.Second

// StartListener opens the standalone streaming connection for
// server-pushed notifications. It must be called after Connect and at
// most once per client. The listener runs until ctx is cancelled or
// the client is closed; a dropped connection is logged and ends the
// listener without affecting the session or in-flight requests.
func (c *Client) StartListener(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.WithStack(ErrClosed)
	}
	if c.session == nil {
		c.mu.Unlock()
		return errors.WithStack(ErrNotConnected)
	}
	if c.listenDone != nil {
		c.mu.Unlock()
		return errors.New("mcp: listener already started")
	}
	sessionID := c.session.ID

	lctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.listenCancel = cancel
	c.listenDone = done
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(lctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		cancel()
		close(done)
		return errors.Wrap(err, "failed to create listener request")
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(SessionHeader, sessionID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		close(done)
		return errors.Wrap(err, "failed to open notification stream")
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		close(done)
		return errors.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	go func() {
		defer close(done)
		defer func() { _ = resp.Body.Close() }()

		for msg := range decodeEventStream(resp.Body) {
			if msg.IsNotification() {
				c.handleNotification(msg)
				continue
			}
			logger.KV(xlog.WARNING,
				"status", "unexpected_message_on_notification_stream",
				"id", msg.ID,
			)
		}
		if lctx.Err() == nil {
			logger.KV(xlog.DEBUG, "status", "notification_stream_ended")
		}
	}()
	return nil
}
