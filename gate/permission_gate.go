package gate

import (
	"context"

	session "github.com/campuskit/go-session"
)

// PermissionGate is a coarse placeholder until fine-grained permission
// checking lands: it passes when a user is present with at least one role
// and denies otherwise.
type PermissionGate struct {
	store       *session.Store
	signInRoute string
	logger      session.Logger
}

var _ Gate = (*PermissionGate)(nil)

// NewPermissionGate creates the placeholder permission gate.
func NewPermissionGate(store *session.Store, cfg session.Config) *PermissionGate {
	return &PermissionGate{
		store:       store,
		signInRoute: cfg.GetSignInRoute(),
		logger:      session.DefaultLogger(),
	}
}

func (g *PermissionGate) Allow(_ context.Context, route string) Decision {
	user, ok := g.store.CurrentUser()
	if !ok || len(user.Roles) == 0 {
		g.logger.Info("no permissible user for %s, redirecting to sign-in", route)
		return SignInRedirect(g.signInRoute, route)
	}
	return Granted()
}
