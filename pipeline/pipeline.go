// Package pipeline applies the ordered request augmentation stages to every
// outgoing request. The stage order is a declared invariant, not a
// registration-order accident: identity, tenant, traffic accounting, then
// failure translation, built in one place by New. Stages never swallow
// errors; they annotate, report, and pass the response through unchanged.
package pipeline

import (
	"net/http"

	session "github.com/campuskit/go-session"
)

// Dispatch forwards a request to the next stage (or the base transport).
type Dispatch func(*http.Request) (*http.Response, error)

// Stage is one ordered step applied to every request/response pair.
type Stage interface {
	Name() string
	Execute(req *http.Request, next Dispatch) (*http.Response, error)
}

// Chain is an http.RoundTripper that runs the declared stage sequence
// around a base transport.
type Chain struct {
	stages []Stage
	base   http.RoundTripper
}

var _ http.RoundTripper = (*Chain)(nil)

// Option customizes the canonical chain built by New.
type Option func(*options)

type options struct {
	base           http.RoundTripper
	logger         session.Logger
	counter        *InFlightCounter
	notifier       Notifier
	onUnauthorized func(*http.Request)
	exempt         []string
}

// WithBaseTransport overrides the transport at the end of the chain.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		if rt != nil {
			o.base = rt
		}
	}
}

// WithLogger overrides the fallback logger for every stage.
func WithLogger(logger session.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCounter wires a shared in-flight counter, letting several chains
// drive one busy indicator.
func WithCounter(counter *InFlightCounter) Option {
	return func(o *options) {
		if counter != nil {
			o.counter = counter
		}
	}
}

// WithNotifier wires the user-facing error reporter.
func WithNotifier(notifier Notifier) Option {
	return func(o *options) {
		if notifier != nil {
			o.notifier = notifier
		}
	}
}

// WithUnauthorizedHandler wires the forced-logout path taken on a 401.
func WithUnauthorizedHandler(handler func(*http.Request)) Option {
	return func(o *options) {
		if handler != nil {
			o.onUnauthorized = handler
		}
	}
}

// WithAccountingExempt replaces the endpoints excluded from traffic
// accounting (defaults to the presence and unread-count polls).
func WithAccountingExempt(paths ...string) Option {
	return func(o *options) {
		o.exempt = paths
	}
}

// New builds the canonical chain in its fixed order: the identity and
// tenant stages run before dispatch, the accounting and failure stages
// wrap it.
func New(tokens *session.TokenStore, opts ...Option) *Chain {
	o := &options{
		base:   http.DefaultTransport,
		logger: session.DefaultLogger(),
		exempt: defaultAccountingExempt(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.counter == nil {
		o.counter = NewInFlightCounter(nil)
	}

	return &Chain{
		base: o.base,
		stages: []Stage{
			NewIdentityStage(tokens, o.logger),
			NewTenantStage(tokens, o.logger),
			NewAccountingStage(o.counter, o.exempt),
			NewFailureStage(o.onUnauthorized, o.notifier, o.logger),
		},
	}
}

// NewChain assembles an explicit stage list over a base transport. New is
// the canonical order; this exists for tests and bespoke chains.
func NewChain(base http.RoundTripper, stages ...Stage) *Chain {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Chain{base: base, stages: stages}
}

// RoundTrip runs the request through every stage in declared order.
func (c *Chain) RoundTrip(req *http.Request) (*http.Response, error) {
	dispatch := c.base.RoundTrip
	for i := len(c.stages) - 1; i >= 0; i-- {
		stage := c.stages[i]
		next := dispatch
		dispatch = func(r *http.Request) (*http.Response, error) {
			return stage.Execute(r, next)
		}
	}
	return dispatch(req)
}

// StageNames exposes the declared order for inspection and tests.
func (c *Chain) StageNames() []string {
	names := make([]string, 0, len(c.stages))
	for _, s := range c.stages {
		names = append(names, s.Name())
	}
	return names
}

// Client wraps the chain in an http.Client ready for use by API clients.
func (c *Chain) Client() *http.Client {
	return &http.Client{Transport: c}
}
