package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrConnectRejected is returned when the server refuses the namespace
// CONNECT, usually because the token is invalid.
var ErrConnectRejected = errors.New("socket.io connect rejected")

// Engine.IO 4 packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
)

// Socket.IO 5 packet types, carried inside an Engine.IO message.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioConnectError = '4'
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 5 * time.Second
)

// SocketIODialer speaks Socket.IO 4 over a websocket transport. The token is
// sent as the auth payload of the namespace CONNECT packet.
type SocketIODialer struct {
	URL       string
	Namespace string
	Dialer    *websocket.Dialer
	logger    *zap.SugaredLogger
}

func NewSocketIODialer(rawURL string, logger *zap.Logger) *SocketIODialer {
	return &SocketIODialer{
		URL:       rawURL,
		Namespace: "/",
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		logger: logger.Sugar(),
	}
}

type engineOpen struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

func (d *SocketIODialer) Dial(ctx context.Context, token string, h Handlers) (Conn, error) {
	endpoint, err := socketURL(d.URL, "/socket.io/", url.Values{
		"EIO":       {"4"},
		"transport": {"websocket"},
	})
	if err != nil {
		return nil, err
	}

	ws, resp, err := d.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial socket.io: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial socket.io: %w", err)
	}

	conn := &sioConn{ws: ws, namespace: d.Namespace}
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	open, err := conn.handshake(ctx, token)
	stop()
	if err != nil {
		ws.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	d.logger.Debugw("Socket.IO session opened", "sid", open.SID, "ping_interval_ms", open.PingInterval)

	go conn.readLoop(h, open, d.logger)
	return conn, nil
}

type sioConn struct {
	ws        *websocket.Conn
	namespace string
	writeMu   sync.Mutex
	closed    atomic.Bool
}

func (c *sioConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	_ = c.write(string(eioMessage) + string(sioDisconnect) + c.nsPrefix())
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout"), deadline)
	return c.ws.Close()
}

func (c *sioConn) write(packet string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(packet))
}

// nsPrefix is the namespace segment of a packet; the root namespace has none.
func (c *sioConn) nsPrefix() string {
	if c.namespace == "" || c.namespace == "/" {
		return ""
	}
	return c.namespace + ","
}

// handshake reads the Engine.IO open packet and joins the namespace with
// the token as auth payload.
func (c *sioConn) handshake(ctx context.Context, token string) (engineOpen, error) {
	var open engineOpen
	deadline := time.Now().Add(defaultHandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.ws.SetReadDeadline(deadline)
	defer c.ws.SetReadDeadline(time.Time{})

	packet, err := c.read()
	if err != nil {
		return open, fmt.Errorf("failed to read socket.io open packet: %w", err)
	}
	if len(packet) == 0 || packet[0] != eioOpen {
		return open, fmt.Errorf("failed to open socket.io session: unexpected packet %q", truncate(packet))
	}
	if err := json.Unmarshal([]byte(packet[1:]), &open); err != nil {
		return open, fmt.Errorf("failed to decode socket.io open packet: %w", err)
	}

	auth, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return open, err
	}
	if err := c.write(string(eioMessage) + string(sioConnect) + c.nsPrefix() + string(auth)); err != nil {
		return open, fmt.Errorf("failed to send socket.io connect: %w", err)
	}

	for {
		packet, err := c.read()
		if err != nil {
			return open, fmt.Errorf("failed to read socket.io connect reply: %w", err)
		}
		switch {
		case packet == string(eioPing):
			if err := c.write(string(eioPong)); err != nil {
				return open, err
			}
		case len(packet) >= 2 && packet[0] == eioMessage && packet[1] == sioConnect:
			return open, nil
		case len(packet) >= 2 && packet[0] == eioMessage && packet[1] == sioConnectError:
			return open, fmt.Errorf("%w: %s", ErrConnectRejected, connectErrorMessage(c.trimNamespace(packet[2:])))
		case len(packet) >= 2 && packet[0] == eioMessage && packet[1] == sioDisconnect,
			len(packet) >= 1 && packet[0] == eioClose:
			return open, ErrConnectRejected
		}
	}
}

func (c *sioConn) read() (string, error) {
	_, data, err := c.ws.ReadMessage()
	return string(data), err
}

func (c *sioConn) readLoop(h Handlers, open engineOpen, logger *zap.SugaredLogger) {
	// The server pings every pingInterval; silence beyond interval+timeout
	// means the connection is gone.
	idle := time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond
	if idle <= 0 {
		idle = 45 * time.Second
	}

	for {
		c.ws.SetReadDeadline(time.Now().Add(idle))
		packet, err := c.read()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.ws.Close()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = fmt.Errorf("%w: %v", ErrServerDisconnect, err)
			}
			h.OnDisconnect(err)
			return
		}
		if packet == "" {
			continue
		}

		switch packet[0] {
		case eioPing:
			if err := c.write(string(eioPong)); err != nil {
				logger.Debugw("Failed to answer socket.io ping", "error", err)
			}
		case eioClose:
			c.drop(h, ErrServerDisconnect)
			return
		case eioMessage:
			if len(packet) < 2 {
				continue
			}
			switch packet[1] {
			case sioEvent:
				c.dispatch(h, packet[2:], logger)
			case sioDisconnect:
				c.drop(h, ErrServerDisconnect)
				return
			}
		}
	}
}

func (c *sioConn) drop(h Handlers, err error) {
	c.ws.Close()
	if !c.closed.Load() {
		h.OnDisconnect(err)
	}
}

// dispatch decodes `[ns,][ackId]["event", data...]`.
func (c *sioConn) dispatch(h Handlers, body string, logger *zap.SugaredLogger) {
	body = strings.TrimLeft(c.trimNamespace(body), "0123456789")

	var args []json.RawMessage
	if err := json.Unmarshal([]byte(body), &args); err != nil || len(args) == 0 {
		logger.Warnw("Skipping malformed socket.io event", "packet", truncate(body))
		return
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		logger.Warnw("Skipping socket.io event without a name", "packet", truncate(body))
		return
	}

	switch {
	case name == EventNewMessage && len(args) > 1:
		h.OnMessage(args[1])
	default:
		logger.Debugw("Ignoring socket.io event", "event", name)
	}
}

func (c *sioConn) trimNamespace(body string) string {
	if strings.HasPrefix(body, "/") {
		if i := strings.IndexByte(body, ','); i >= 0 {
			return body[i+1:]
		}
		return ""
	}
	return body
}

func connectErrorMessage(body string) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return body
}

func truncate(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}
