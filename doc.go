// Package session provides the client-side session and authorization core
// for multi-tenant school-management applications: token persistence, claims
// decoding, a transition-driven session store, and the collaborators that
// keep outgoing requests and the live channel aligned with the current
// identity.
//
// Token store:
//   - TokenStore persists the signed token, the tenant id, and an optional
//     cached user snapshot behind a small Storage interface. Decoding never
//     fails loudly; a malformed token is reported as "no session" so callers
//     can fall back to the unauthenticated path.
//
// Session store:
//   - Store is the single owner of session state. State is mutated only
//     through the named transitions (Login, Logout, CheckAuthStatus,
//     ClearError); everything else reads derived selectors. Observers take
//     explicit Subscription handles and close them deterministically.
//   - AwaitPrimaryRole is the bounded-wait primitive used by route gates: it
//     takes the first role that becomes available and denies once the
//     deadline elapses, discarding late resolutions.
//
// Collaborating packages:
//   - pipeline applies the ordered request augmentation stages (identity,
//     tenant, traffic accounting, failure translation) to every outgoing
//     request.
//   - gate evaluates authentication and role checks before navigation.
//   - channel binds the reconnecting duplex channel to the authenticated
//     identity.
package session
