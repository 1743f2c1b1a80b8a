package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"client/internal/app/message"
	"client/internal/app/session"
	"client/internal/utils"

	"go.uber.org/zap/zaptest"
)

type testconn struct {
	closed atomic.Bool
}

func (c *testconn) Close() error {
	c.closed.Store(true)
	return nil
}

type testdialer struct {
	T    *testing.T
	dial func(t *testing.T, n int, token string) error

	mu       sync.Mutex
	tokens   []string
	conns    []*testconn
	handlers []Handlers
}

func (d *testdialer) Dial(_ context.Context, token string, h Handlers) (Conn, error) {
	d.mu.Lock()
	d.tokens = append(d.tokens, token)
	n := len(d.tokens)
	d.mu.Unlock()

	if d.dial != nil {
		if err := d.dial(d.T, n, token); err != nil {
			return nil, err
		}
	}
	c := &testconn{}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
	return c, nil
}

func (d *testdialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

func (d *testdialer) open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.conns {
		if !c.closed.Load() {
			n++
		}
	}
	return n
}

func (d *testdialer) last() Handlers {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handlers[len(d.handlers)-1]
}

type testpublisher struct {
	mu     sync.Mutex
	events []utils.Event
}

func (p *testpublisher) Publish(event string, data interface{}) {
	p.mu.Lock()
	p.events = append(p.events, utils.Event{Event: event, Data: data})
	p.mu.Unlock()
}

func (p *testpublisher) messages() []message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []message.Message
	for _, e := range p.events {
		if e.Event == utils.EventNewMessage {
			out = append(out, e.Data.(message.Push).Message)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

var alice = session.Session{UserID: "42", Token: "tok-42"}

func TestChannel_ReconnectsAfterServerDrop(t *testing.T) {
	d := &testdialer{T: t}
	ch := NewChannel(d, &testpublisher{}, 5*time.Millisecond, zaptest.NewLogger(t))

	ch.SessionStarted(context.Background(), alice)
	waitFor(t, "first connection", func() bool { return ch.State() == Connected })

	d.last().OnDisconnect(ErrServerDisconnect)
	waitFor(t, "reconnect", func() bool { return d.dials() == 2 && ch.State() == Connected })

	if d.open() != 1 {
		t.Errorf("open connections = %d, want 1", d.open())
	}
	for i, tok := range d.tokens {
		if tok != "tok-42" {
			t.Errorf("dial %d token = %q", i, tok)
		}
	}

	ch.SessionEnded(context.Background())
	if ch.State() != Disconnected || d.open() != 0 {
		t.Fatalf("after SessionEnded: state %s, open %d", ch.State(), d.open())
	}

	time.Sleep(30 * time.Millisecond)
	if d.dials() != 2 {
		t.Errorf("dials = %d after logout, want no reconnect", d.dials())
	}
}

func TestChannel_RetriesFailedDials(t *testing.T) {
	d := &testdialer{T: t, dial: func(t *testing.T, n int, token string) error {
		if n < 3 {
			return errors.New("connection refused")
		}
		return nil
	}}
	ch := NewChannel(d, nil, time.Millisecond, zaptest.NewLogger(t))

	ch.SessionStarted(context.Background(), alice)
	waitFor(t, "connection after failures", func() bool { return ch.State() == Connected })
	if d.dials() != 3 {
		t.Errorf("dials = %d, want 3", d.dials())
	}
	ch.SessionEnded(context.Background())
}

func TestChannel_NoTokenNoConnection(t *testing.T) {
	d := &testdialer{T: t}
	ch := NewChannel(d, nil, time.Millisecond, zaptest.NewLogger(t))

	ch.SessionStarted(context.Background(), session.Session{UserID: "42"})
	time.Sleep(10 * time.Millisecond)
	if d.dials() != 0 {
		t.Errorf("dials = %d without a token", d.dials())
	}
	ch.SessionEnded(context.Background())
}

func TestChannel_NewSessionReplacesConnection(t *testing.T) {
	d := &testdialer{T: t}
	ch := NewChannel(d, nil, time.Millisecond, zaptest.NewLogger(t))

	ch.SessionStarted(context.Background(), alice)
	waitFor(t, "first connection", func() bool { return ch.State() == Connected })
	ch.SessionStarted(context.Background(), session.Session{UserID: "7", Token: "tok-7"})
	waitFor(t, "second connection", func() bool { return d.dials() == 2 && ch.State() == Connected })

	if d.open() != 1 {
		t.Errorf("open connections = %d, want 1", d.open())
	}
	if d.tokens[1] != "tok-7" {
		t.Errorf("second token = %q", d.tokens[1])
	}
	ch.SessionEnded(context.Background())
}

func TestChannel_PublishesMessages(t *testing.T) {
	d := &testdialer{T: t}
	events := &testpublisher{}
	ch := NewChannel(d, events, time.Millisecond, zaptest.NewLogger(t))

	ch.SessionStarted(context.Background(), alice)
	waitFor(t, "connection", func() bool { return ch.State() == Connected })

	h := d.last()
	h.OnMessage(json.RawMessage(`{"_id":"9","senderId":"bot","text":"hi","createdAt":"2024-05-01T10:00:00"}`))
	h.OnMessage(json.RawMessage(`{"text":"no id"}`))
	h.OnMessage(json.RawMessage(`not json`))

	got := events.messages()
	if len(got) != 1 || got[0].ID != "9" || !got[0].FromAgent() {
		t.Fatalf("published messages = %+v", got)
	}
	events.mu.Lock()
	for _, e := range events.events {
		if p, ok := e.Data.(message.Push); ok && p.UserID != alice.UserID {
			t.Errorf("push tagged with user %q, want %q", p.UserID, alice.UserID)
		}
	}
	events.mu.Unlock()
	ch.SessionEnded(context.Background())
}

func TestChannel_SessionEndedWithoutStart(t *testing.T) {
	ch := NewChannel(&testdialer{T: t}, nil, time.Millisecond, zaptest.NewLogger(t))
	ch.SessionEnded(context.Background())
	if ch.State() != Disconnected {
		t.Errorf("State() = %s", ch.State())
	}
}
