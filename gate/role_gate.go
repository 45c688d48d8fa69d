package gate

import (
	"context"
	"time"

	session "github.com/campuskit/go-session"
)

// RoleWaitBound is the fixed time the role gate waits for the primary role
// to resolve after a cold start before it fails closed.
const RoleWaitBound = 5 * time.Second

// RoleGate waits (bounded) for the primary role and passes only when it is
// in the route's allowed list. A slow or missing role resolution never
// grants access; once the bound elapses the gate denies and a late
// resolution is discarded.
type RoleGate struct {
	store       *session.Store
	allowed     []session.Role
	wait        time.Duration
	signInRoute string
	logger      session.Logger
}

var _ Gate = (*RoleGate)(nil)

// RoleGateOption customizes the role gate.
type RoleGateOption func(*RoleGate)

// WithRoleGateLogger overrides the fallback logger.
func WithRoleGateLogger(logger session.Logger) RoleGateOption {
	return func(g *RoleGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithRoleWaitBound overrides the wait bound. Tests use this; production
// gates keep the fixed bound.
func WithRoleWaitBound(bound time.Duration) RoleGateOption {
	return func(g *RoleGate) {
		if bound > 0 {
			g.wait = bound
		}
	}
}

// NewRoleGate creates a gate allowing only the given roles.
func NewRoleGate(store *session.Store, cfg session.Config, allowed []session.Role, opts ...RoleGateOption) *RoleGate {
	g := &RoleGate{
		store:       store,
		allowed:     append([]session.Role(nil), allowed...),
		wait:        RoleWaitBound,
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

func (g *RoleGate) Allow(ctx context.Context, route string) Decision {
	role, ok := g.store.AwaitPrimaryRole(ctx, g.wait)
	if !ok {
		g.logger.Warn("no role resolved within %s for %s, denying", g.wait, route)
		return SignInRedirect(g.signInRoute, route)
	}

	for _, allowed := range g.allowed {
		if role == allowed {
			return Granted()
		}
	}

	g.logger.Info("role %s not allowed on %s, redirecting to sign-in", role, route)
	return SignInRedirect(g.signInRoute, route)
}
