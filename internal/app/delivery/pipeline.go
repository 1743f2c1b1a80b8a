package delivery

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"client/internal/app/capture"
	"client/internal/app/message"
	"client/internal/app/session"
	"client/internal/providers/remote"
	"client/internal/utils"

	"go.uber.org/zap"
)

// A Sink receives delivered messages; timeline.Store implements it.
type Sink interface {
	AppendOptimistic(draft message.Message) string
	Resolve(localID string, msgs []message.Message) int
	Discard(localID string)
	Refetch(ctx context.Context) error
	BeginSend() func()
}

type SessionSource interface {
	Current() (*session.Session, bool)
}

type Publisher interface {
	Publish(event string, data interface{})
}

type Options struct {
	Prefix       string
	MaxRetries   int
	RetryDelay   time.Duration
	RefetchDelay time.Duration
	// Optimistic shows the user's message before the server confirms it.
	Optimistic bool
}

// Result is the outcome of one Send. Exactly one of OK or Failure is set.
type Result struct {
	OK       bool              `json:"ok"`
	Messages []message.Message `json:"messages,omitempty"`
	Attempts int               `json:"attempts"`
	Failure  Class             `json:"failure,omitempty"`
	Notice   string            `json:"notice,omitempty"`
	Err      error             `json:"-"`
}

type RetryProgress struct {
	Attempt int `json:"attempt"`
	Max     int `json:"max"`
}

type Failure struct {
	Class   Class  `json:"class"`
	Message string `json:"message"`
}

// Pipeline submits bundles to the remote service and retries recoverable
// failures with a flat delay.
type Pipeline struct {
	client   *remote.Client
	sessions SessionSource
	sink     Sink
	events   Publisher
	opts     Options
	logger   *zap.SugaredLogger

	// retries is the retry count of the send in progress, 0 when idle.
	retries atomic.Int32
	sleep   func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	refetches sync.WaitGroup
	bgCtx     context.Context
	bgCancel  context.CancelFunc
}

func NewPipeline(client *remote.Client, sessions SessionSource, sink Sink, events Publisher, opts Options, logger *zap.Logger) *Pipeline {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		client:   client,
		sessions: sessions,
		sink:     sink,
		events:   events,
		opts:     opts,
		logger:   logger.Sugar(),
		sleep:    sleepCtx,
		bgCtx:    ctx,
		bgCancel: cancel,
	}
}

func (p *Pipeline) RetryCount() int {
	return int(p.retries.Load())
}

func (p *Pipeline) MaxAttempts() int {
	return 1 + p.opts.MaxRetries
}

// Send delivers b and appends the reply to the sink. It never panics on
// delivery failures; the outcome is always described by the Result.
func (p *Pipeline) Send(ctx context.Context, b capture.Bundle) Result {
	sess, ok := p.sessions.Current()
	if !ok {
		return p.fail(Result{Attempts: 1}, "", &Error{Class: Unauthenticated, Err: ErrNoSession})
	}

	pl, err := encode(b)
	if err != nil {
		return p.fail(Result{Attempts: 1}, "", &Error{Class: RejectedRequest, Err: err})
	}

	done := p.sink.BeginSend()
	defer done()

	localID := ""
	if p.opts.Optimistic {
		localID = p.sink.AppendOptimistic(draftFor(b, sess.UserID))
	}

	req := remote.Request{
		Method:      http.MethodPost,
		Path:        p.opts.Prefix + "/messages/send/" + url.PathEscape(sess.UserID),
		ContentType: pl.contentType,
		Body:        pl.body,
		Timeout:     remote.SendTimeout,
	}

	maxAttempts := p.MaxAttempts()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		data, err := p.client.Do(ctx, req)
		if err == nil {
			return p.succeed(ctx, attempt, localID, data)
		}

		lastErr = err
		class := Classify(err)
		if !class.Retryable() || attempt == maxAttempts || ctx.Err() != nil {
			return p.fail(Result{Attempts: attempt}, localID, &Error{Class: class, Err: err})
		}

		p.retries.Store(int32(attempt))
		p.logger.Warnw("Send failed, retrying",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"failure_class", class.String(),
			"delay", p.opts.RetryDelay.String(),
			"error", err,
		)
		p.publish(utils.EventDeliveryRetry, RetryProgress{Attempt: attempt + 1, Max: maxAttempts})

		if err := p.sleep(ctx, p.opts.RetryDelay); err != nil {
			return p.fail(Result{Attempts: attempt}, localID, &Error{Class: class, Err: lastErr})
		}
	}
	// Unreachable while maxAttempts >= 1.
	return p.fail(Result{Attempts: maxAttempts}, localID, &Error{Class: Classify(lastErr), Err: lastErr})
}

func (p *Pipeline) succeed(ctx context.Context, attempts int, localID string, data []byte) Result {
	p.retries.Store(0)

	msgs, err := message.DecodeMessages(data)
	if err != nil {
		// The server accepted the message; the refetch will show it.
		p.logger.Warnw("Send succeeded with an unreadable reply", "error", err)
		msgs = nil
	}
	p.sink.Resolve(localID, msgs)
	p.scheduleRefetch()

	p.logger.Infow("Message delivered", "attempts", attempts, "reply_count", len(msgs))
	return Result{OK: true, Messages: msgs, Attempts: attempts}
}

func (p *Pipeline) fail(res Result, localID string, err *Error) Result {
	p.retries.Store(0)
	if localID != "" {
		p.sink.Discard(localID)
	}

	res.OK = false
	res.Failure = err.Class
	res.Err = err
	res.Notice = Notice(err.Class, err.Err)

	p.logger.Errorw("Send failed",
		"attempts", res.Attempts,
		"failure_class", err.Class.String(),
		"error", err.Err,
	)
	p.publish(utils.EventDeliveryFailed, Failure{Class: err.Class, Message: res.Notice})
	return res
}

// scheduleRefetch reloads the timeline shortly after a successful send.
func (p *Pipeline) scheduleRefetch() {
	p.mu.Lock()
	ctx := p.bgCtx
	p.refetches.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.refetches.Done()
		if err := p.sleep(ctx, p.opts.RefetchDelay); err != nil {
			return
		}
		if err := p.sink.Refetch(ctx); err != nil {
			p.logger.Warnw("Confirmatory refetch failed", "error", err)
		}
	}()
}

// Wait blocks until scheduled refetches have finished.
func (p *Pipeline) Wait() {
	p.refetches.Wait()
}

// Reset clears the retry counter and abandons pending refetches.
func (p *Pipeline) Reset() {
	p.retries.Store(0)
	p.mu.Lock()
	p.bgCancel()
	p.bgCtx, p.bgCancel = context.WithCancel(context.Background())
	p.mu.Unlock()
}

func (p *Pipeline) SessionStarted(context.Context, session.Session) {
	p.retries.Store(0)
}

func (p *Pipeline) SessionEnded(context.Context) {
	p.Reset()
}

func (p *Pipeline) publish(event string, data interface{}) {
	if p.events != nil {
		p.events.Publish(event, data)
	}
}

func draftFor(b capture.Bundle, userID string) message.Message {
	m := message.Message{SenderID: userID, Text: b.Content()}
	if wa, ok := b.(capture.WithAttachments); ok {
		if wa.Image != nil {
			m.ImageURL = "pending:" + wa.Image.Name
		}
		if wa.Audio != nil {
			m.AudioURL = "pending:" + wa.Audio.Name
		}
	}
	return m
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
