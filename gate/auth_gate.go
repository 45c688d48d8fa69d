package gate

import (
	"context"

	session "github.com/campuskit/go-session"
)

// AuthenticationGate passes authenticated sessions and redirects everyone
// else to sign-in, recording the originally-requested path.
type AuthenticationGate struct {
	store       *session.Store
	signInRoute string
	logger      session.Logger
}

var _ Gate = (*AuthenticationGate)(nil)

// AuthGateOption customizes the authentication gate.
type AuthGateOption func(*AuthenticationGate)

// WithAuthGateLogger overrides the fallback logger.
func WithAuthGateLogger(logger session.Logger) AuthGateOption {
	return func(g *AuthenticationGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewAuthenticationGate creates the gate against the session store.
func NewAuthenticationGate(store *session.Store, cfg session.Config, opts ...AuthGateOption) *AuthenticationGate {
	g := &AuthenticationGate{
		store:       store,
		signInRoute: cfg.GetSignInRoute(),
		logger:      session.DefaultLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

func (g *AuthenticationGate) Allow(_ context.Context, route string) Decision {
	if g.store.IsAuthenticated() {
		return Granted()
	}

	g.logger.Info("unauthenticated access to %s, redirecting to sign-in", route)
	return SignInRedirect(g.signInRoute, route)
}
