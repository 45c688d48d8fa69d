package session

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// LoginService performs the credential exchange against the backend.
// AuthClient is the HTTP implementation; tests substitute mocks.
type LoginService interface {
	Login(ctx context.Context, creds Credentials) (*LoginResult, error)
}

// ChannelBridge is the slice of the session channel the Store drives:
// connect on login, disconnect on logout. The channel package provides
// the full implementation.
type ChannelBridge interface {
	Connect(ctx context.Context, userID string) error
	Disconnect()
}

// Config holds the client options shared by the session core packages.
type Config interface {
	GetBaseURL() string
	GetChannelURL() string
	GetSignInRoute() string
}

// DefaultLogger returns the fallback printf logger used when no Logger is
// configured. Subpackages use it for their own defaults.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
