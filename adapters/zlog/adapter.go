// Package zlog adapts rs/zerolog to the session.Logger interface for
// applications that already run structured logging.
package zlog

import (
	session "github.com/campuskit/go-session"
	"github.com/rs/zerolog"
)

// Adapter wraps a zerolog.Logger as a session.Logger.
type Adapter struct {
	log zerolog.Logger
}

var _ session.Logger = (*Adapter)(nil)

// New creates an Adapter over the given zerolog logger.
func New(log zerolog.Logger) *Adapter {
	return &Adapter{log: log}
}

func (a *Adapter) Debug(format string, args ...any) {
	a.log.Debug().Msgf(format, args...)
}

func (a *Adapter) Info(format string, args ...any) {
	a.log.Info().Msgf(format, args...)
}

func (a *Adapter) Warn(format string, args ...any) {
	a.log.Warn().Msgf(format, args...)
}

func (a *Adapter) Error(format string, args ...any) {
	a.log.Error().Msgf(format, args...)
}
