package session

import (
	"context"
	"time"
)

// Session is the authenticated identity the engine acts for.
type Session struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username,omitempty"`
	Email     string    `json:"email,omitempty"`
	Token     string    `json:"-"`
	StartedAt time.Time `json:"startedAt"`
}

// A Hook owns session-scoped state. SessionStarted runs after login or
// restore; SessionEnded runs on logout, in reverse registration order.
type Hook interface {
	SessionStarted(ctx context.Context, s Session)
	SessionEnded(ctx context.Context)
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RestoreRequest struct {
	Token string `json:"token" binding:"required"`
}

type authUser struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Token    string `json:"token"`
}
