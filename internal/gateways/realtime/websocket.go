package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Frame is the envelope of a WebSocket push event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WebSocketDialer connects to a plain WebSocket endpoint that sends Frames.
// The token travels both as a query parameter and as a bearer header.
type WebSocketDialer struct {
	URL    string
	Dialer *websocket.Dialer
	logger *zap.SugaredLogger
}

func NewWebSocketDialer(rawURL string, logger *zap.Logger) *WebSocketDialer {
	return &WebSocketDialer{
		URL: rawURL,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger.Sugar(),
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, token string, h Handlers) (Conn, error) {
	endpoint, err := socketURL(d.URL, "/ws", url.Values{"token": {token}})
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, resp, err := d.Dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial websocket: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial websocket: %w", err)
	}

	conn := &wsConn{ws: ws}
	go conn.readLoop(h, d.logger)
	return conn, nil
}

type wsConn struct {
	ws     *websocket.Conn
	closed atomic.Bool
}

func (c *wsConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout"), deadline)
	return c.ws.Close()
}

func (c *wsConn) readLoop(h Handlers, logger *zap.SugaredLogger) {
	for {
		var f Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if c.closed.Load() {
				return
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				logger.Warnw("Skipping malformed websocket frame", "error", err)
				continue
			}
			c.ws.Close()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = fmt.Errorf("%w: %v", ErrServerDisconnect, err)
			}
			h.OnDisconnect(err)
			return
		}

		switch f.Event {
		case EventNewMessage:
			h.OnMessage(f.Data)
		default:
			logger.Debugw("Ignoring websocket event", "event", f.Event)
		}
	}
}

// socketURL turns an http(s) base into a ws(s) endpoint. A base without a
// path gets defaultPath.
func socketURL(base, defaultPath string, query url.Values) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("failed to parse socket url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("failed to parse socket url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("failed to parse socket url: missing host in %q", base)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = defaultPath
	}

	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
