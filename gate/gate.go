// Package gate evaluates pre-navigation checks against the session store.
// Gates never fail with errors: a denial is a redirect decision, silent
// from the caller's perspective. The role gate is fail-closed; a role that
// does not resolve within its bound denies access.
package gate

import (
	"context"
	"net/url"
)

// RedirectURLParam carries the originally-requested path on sign-in
// redirects so a successful login can return the user to it.
const RedirectURLParam = "redirectUrl"

// Decision is the outcome of a gate evaluation.
type Decision struct {
	Granted    bool
	RedirectTo string
}

// Gate is a pre-navigation check for a route transition. The route is the
// originally-requested path.
type Gate interface {
	Allow(ctx context.Context, route string) Decision
}

// Navigator performs the client-side navigation a denial asks for.
type Navigator interface {
	NavigateTo(path string)
}

// NavigatorFunc adapts a function into a Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) NavigateTo(path string) {
	if f != nil {
		f(path)
	}
}

// Granted allows the transition.
func Granted() Decision {
	return Decision{Granted: true}
}

// Redirect denies the transition and points at the fallback route.
func Redirect(to string) Decision {
	return Decision{RedirectTo: to}
}

// SignInRedirect builds the sign-in redirect carrying the original
// destination in the redirect query parameter.
func SignInRedirect(signInRoute, requested string) Decision {
	if requested == "" {
		return Redirect(signInRoute)
	}
	return Redirect(signInRoute + "?" + RedirectURLParam + "=" + url.QueryEscape(requested))
}

// Apply executes a decision against a navigator and reports whether the
// transition may proceed.
func Apply(nav Navigator, decision Decision) bool {
	if decision.Granted {
		return true
	}
	if nav != nil && decision.RedirectTo != "" {
		nav.NavigateTo(decision.RedirectTo)
	}
	return false
}

// Compose chains gates for one protected route; the first denial wins.
func Compose(gates ...Gate) Gate {
	return composite(gates)
}

type composite []Gate

func (c composite) Allow(ctx context.Context, route string) Decision {
	for _, g := range c {
		if g == nil {
			continue
		}
		if decision := g.Allow(ctx, route); !decision.Granted {
			return decision
		}
	}
	return Granted()
}
