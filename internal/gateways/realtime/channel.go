package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"client/internal/app/message"
	"client/internal/app/session"
	"client/internal/utils"

	"go.uber.org/zap"
)

// EventNewMessage is the push event carrying a message payload.
const EventNewMessage = "newMessage"

var ErrServerDisconnect = errors.New("server closed the connection")

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Publisher interface {
	Publish(event string, data interface{})
}

// Handlers are the callbacks a Dialer invokes for one connection. A Dialer
// must not call OnDisconnect after Close was called on the connection.
type Handlers struct {
	OnMessage    func(data json.RawMessage)
	OnDisconnect func(err error)
}

type Conn interface {
	Close() error
}

// A Dialer opens a push connection authenticated with token.
type Dialer interface {
	Dial(ctx context.Context, token string, h Handlers) (Conn, error)
}

type StateChange struct {
	State State `json:"state"`
}

// Channel keeps one push connection per session and forwards its messages
// to the event bus. It reconnects after the server drops the connection and
// stays down after the session ends.
type Channel struct {
	dialer Dialer
	events Publisher
	delay  time.Duration
	logger *zap.SugaredLogger

	mu     sync.Mutex
	state  State
	conn   Conn
	cancel context.CancelFunc
	done   chan struct{}
}

func NewChannel(dialer Dialer, events Publisher, reconnectDelay time.Duration, logger *zap.Logger) *Channel {
	if reconnectDelay <= 0 {
		reconnectDelay = 3 * time.Second
	}
	return &Channel{
		dialer: dialer,
		events: events,
		delay:  reconnectDelay,
		logger: logger.Sugar(),
	}
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionStarted connects with the session's token, replacing any previous
// connection.
func (c *Channel) SessionStarted(_ context.Context, sess session.Session) {
	c.stop()
	if sess.Token == "" {
		c.logger.Warnw("Realtime channel not started: session has no token", "user_id", sess.UserID)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(ctx, sess, done)
}

// SessionEnded closes the connection without reconnecting.
func (c *Channel) SessionEnded(context.Context) {
	c.stop()
}

func (c *Channel) stop() {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel, c.done, c.conn = nil, nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Debugw("Realtime connection closed with error", "error", err)
		}
	}
	<-done
	c.setState(Disconnected)
	c.logger.Infow("Realtime channel stopped")
}

func (c *Channel) run(ctx context.Context, sess session.Session, done chan struct{}) {
	defer close(done)

	for attempt := 1; ; attempt++ {
		c.setState(Connecting)
		dropped := make(chan error, 1)
		conn, err := c.dialer.Dial(ctx, sess.Token, Handlers{
			OnMessage: func(data json.RawMessage) {
				c.handleMessage(sess.UserID, data)
			},
			OnDisconnect: func(err error) {
				select {
				case dropped <- err:
				default:
				}
			},
		})

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warnw("Realtime connection failed",
				"user_id", sess.UserID,
				"attempt", attempt,
				"retry_in", c.delay.String(),
				"error", err,
			)
		} else {
			c.mu.Lock()
			if ctx.Err() != nil {
				c.mu.Unlock()
				conn.Close()
				return
			}
			c.conn = conn
			c.mu.Unlock()
			c.setState(Connected)
			c.logger.Infow("Realtime channel connected", "user_id", sess.UserID, "attempt", attempt)
			attempt = 0

			select {
			case <-ctx.Done():
				return
			case err := <-dropped:
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
				c.logger.Warnw("Realtime channel disconnected by server",
					"user_id", sess.UserID,
					"retry_in", c.delay.String(),
					"error", err,
				)
			}
		}

		c.setState(Disconnected)
		t := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// handleMessage tags the message with the session it arrived on, so a push
// still queued on the bus after logout can be told apart.
func (c *Channel) handleMessage(userID string, data json.RawMessage) {
	m, err := message.DecodeMessage(data)
	if err != nil {
		c.logger.Warnw("Ignoring malformed push message", "error", err)
		return
	}
	c.logger.Debugw("Push message received", "message_id", m.ID, "sender_id", m.SenderID)
	c.publish(utils.EventNewMessage, message.Push{UserID: userID, Message: m})
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed {
		c.publish(utils.EventRealtimeState, StateChange{State: s})
	}
}

func (c *Channel) publish(event string, data interface{}) {
	if c.events != nil {
		c.events.Publish(event, data)
	}
}
