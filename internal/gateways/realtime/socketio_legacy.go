package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"

	gosocketio "github.com/graarh/golang-socketio"
	"github.com/graarh/golang-socketio/transport"
	"go.uber.org/zap"
)

// LegacySocketIODialer connects to a Socket.IO 2.x server (Engine.IO 3).
// Those servers take credentials from the handshake query, so the token is
// passed there.
type LegacySocketIODialer struct {
	URL    string
	logger *zap.SugaredLogger
}

func NewLegacySocketIODialer(rawURL string, logger *zap.Logger) *LegacySocketIODialer {
	return &LegacySocketIODialer{URL: rawURL, logger: logger.Sugar()}
}

func (d *LegacySocketIODialer) Dial(ctx context.Context, token string, h Handlers) (Conn, error) {
	endpoint, err := socketURL(d.URL, "/socket.io/", url.Values{
		"EIO":       {"3"},
		"transport": {"websocket"},
		"token":     {token},
	})
	if err != nil {
		return nil, err
	}

	type dialed struct {
		client *gosocketio.Client
		err    error
	}
	ch := make(chan dialed, 1)
	go func() {
		c, err := gosocketio.Dial(endpoint, transport.GetDefaultWebsocketTransport())
		ch <- dialed{client: c, err: err}
	}()

	var client *gosocketio.Client
	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				r.client.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("failed to dial socket.io 2: %w", r.err)
		}
		client = r.client
	}

	conn := &legacyConn{client: client}
	if err := client.On(EventNewMessage, func(_ *gosocketio.Channel, data json.RawMessage) {
		h.OnMessage(data)
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", EventNewMessage, err)
	}
	if err := client.On(gosocketio.OnDisconnection, func(_ *gosocketio.Channel) {
		if !conn.closed.Load() {
			h.OnDisconnect(ErrServerDisconnect)
		}
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to disconnects: %w", err)
	}
	if err := client.On(gosocketio.OnError, func(_ *gosocketio.Channel) {
		d.logger.Warnw("Socket.IO error event")
	}); err != nil {
		d.logger.Debugw("Socket.IO error handler not registered", "error", err)
	}
	return conn, nil
}

type legacyConn struct {
	client *gosocketio.Client
	closed atomic.Bool
}

func (c *legacyConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.client.Close()
	return nil
}
