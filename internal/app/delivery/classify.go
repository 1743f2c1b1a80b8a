package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"client/internal/providers/remote"
)

var ErrNoSession = errors.New("no authenticated session")

// Class is the failure classification of a delivery attempt.
type Class int

const (
	None Class = iota
	Timeout
	NetworkUnreachable
	ServerFault
	RejectedRequest
	Unauthenticated
)

var classNames = map[Class]string{
	None:               "None",
	Timeout:            "Timeout",
	NetworkUnreachable: "NetworkUnreachable",
	ServerFault:        "ServerFault",
	RejectedRequest:    "RejectedRequest",
	Unauthenticated:    "Unauthenticated",
}

func (c Class) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Retryable reports whether another attempt may succeed.
func (c Class) Retryable() bool {
	switch c {
	case Timeout, NetworkUnreachable, ServerFault:
		return true
	}
	return false
}

// Error is a classified delivery failure.
type Error struct {
	Class Class
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify maps a transport error to a failure class. Errors that carry no
// response are connectivity failures unless a deadline expired.
func Classify(err error) Class {
	if err == nil {
		return None
	}

	var de *Error
	if errors.As(err, &de) {
		return de.Class
	}
	if errors.Is(err, ErrNoSession) {
		return Unauthenticated
	}

	var se *remote.StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusUnauthorized:
			return Unauthenticated
		case se.Code == http.StatusRequestTimeout || se.Code == http.StatusGatewayTimeout:
			return Timeout
		case se.Code >= 500:
			return ServerFault
		default:
			return RejectedRequest
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Timeout
	}
	return NetworkUnreachable
}

// Notice is the user-facing text for a terminal failure.
func Notice(c Class, err error) string {
	switch c {
	case Timeout:
		return "The server took too long to respond. Please try again."
	case NetworkUnreachable:
		return "Could not reach the server. Check your connection and try again."
	case ServerFault:
		return "The server could not process your message. Please try again later."
	case Unauthenticated:
		return "Your session has expired. Please log in again."
	case RejectedRequest:
		var se *remote.StatusError
		if errors.As(err, &se) && se.Message != "" {
			return "Message rejected: " + se.Message
		}
		return "Message rejected by the server."
	}
	return "Failed to send message."
}
