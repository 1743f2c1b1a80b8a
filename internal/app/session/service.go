package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"client/internal/providers/remote"
	"client/internal/utils"

	"go.uber.org/zap"
)

var ErrNoSession = errors.New("not authenticated")

type Publisher interface {
	Publish(event string, data interface{})
}

type Service interface {
	Login(ctx context.Context, email, password string) (*Session, error)
	Restore(ctx context.Context, token string) (*Session, error)
	Logout(ctx context.Context) error
	Close(ctx context.Context)
	Current() (*Session, bool)
	Token() string
	AddHook(h Hook)
}

type service struct {
	client *remote.Client
	prefix string
	events Publisher
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	current *Session
	hooks   []Hook
	// lifecycle serializes start and end so hooks never interleave.
	lifecycle sync.Mutex
}

func NewService(client *remote.Client, prefix string, events Publisher, logger *zap.Logger) Service {
	return &service{
		client: client,
		prefix: prefix,
		events: events,
		logger: logger.Sugar(),
	}
}

func (s *service) AddHook(h Hook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, h)
	s.mu.Unlock()
}

func (s *service) Current() (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, false
	}
	cp := *s.current
	return &cp, true
}

func (s *service) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

func (s *service) Login(ctx context.Context, email, password string) (*Session, error) {
	data, err := s.client.PostJSON(ctx, s.prefix+"/auth/login", LoginRequest{Email: email, Password: password}, remote.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	return s.start(ctx, data, "")
}

// Restore validates an existing token and starts a session with it.
func (s *service) Restore(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	data, err := s.client.Do(ctx, remote.Request{
		Method: http.MethodGet,
		Path:   s.prefix + "/auth/check",
		Token:  token,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check auth: %w", err)
	}
	return s.start(ctx, data, token)
}

func (s *service) start(ctx context.Context, data []byte, token string) (*Session, error) {
	var u authUser
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to decode auth user: %w", err)
	}
	if u.Token == "" {
		u.Token = token
	}
	if u.ID == "" || u.Token == "" {
		return nil, fmt.Errorf("failed to start session: incomplete auth response")
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if _, ok := s.Current(); ok {
		s.endLocked(ctx)
	}

	sess := Session{
		UserID:    u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Token:     u.Token,
		StartedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.current = &sess
	hooks := append([]Hook(nil), s.hooks...)
	s.mu.Unlock()

	s.logger.Infow("Session started", "user_id", sess.UserID, "username", sess.Username)
	for _, h := range hooks {
		h.SessionStarted(ctx, sess)
	}
	s.publish(&sess)
	return &sess, nil
}

// Logout ends the session locally even if the remote call fails.
func (s *service) Logout(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if _, ok := s.Current(); !ok {
		return ErrNoSession
	}

	_, err := s.client.Do(ctx, remote.Request{Method: http.MethodPost, Path: s.prefix + "/auth/logout"})
	if err != nil {
		s.logger.Warnw("Remote logout failed", "error", err)
	}
	s.endLocked(ctx)
	return nil
}

// Close ends the session locally and keeps the token valid on the server,
// so a later Restore can resume it.
func (s *service) Close(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if _, ok := s.Current(); ok {
		s.endLocked(ctx)
	}
}

func (s *service) endLocked(ctx context.Context) {
	s.mu.Lock()
	userID := ""
	if s.current != nil {
		userID = s.current.UserID
	}
	s.current = nil
	hooks := append([]Hook(nil), s.hooks...)
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i].SessionEnded(ctx)
	}
	s.logger.Infow("Session ended", "user_id", userID)
	s.publish(nil)
}

func (s *service) publish(sess *Session) {
	if s.events != nil {
		s.events.Publish(utils.EventSessionChanged, sess)
	}
}
