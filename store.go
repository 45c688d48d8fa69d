package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the session shape. IsAuthenticated implies a present, valid
// token; Error is cleared by any successful transition.
type State struct {
	User            *User
	Token           string
	IsAuthenticated bool
	Loading         bool
	Error           string
}

// Store is the single source of truth for the client identity. State is
// mutated only through the named transitions; every other component reads
// selectors or subscribes for state changes.
type Store struct {
	mu     sync.Mutex
	state  State
	tokens *TokenStore
	api    LoginService
	bridge ChannelBridge
	logger Logger
	now    func() time.Time
	subs   map[string]chan State
}

// StoreOption customizes Store construction.
type StoreOption func(*Store)

// WithStoreLogger overrides the fallback logger.
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreBridge wires the session channel bridge, connected on login and
// disconnected on logout.
func WithStoreBridge(bridge ChannelBridge) StoreOption {
	return func(s *Store) {
		if bridge != nil {
			s.bridge = bridge
		}
	}
}

// WithStoreClock injects a custom clock (useful for tests).
func WithStoreClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewStore creates a session Store over the token store and login service.
func NewStore(tokens *TokenStore, api LoginService, opts ...StoreOption) *Store {
	s := &Store{
		tokens: tokens,
		api:    api,
		bridge: noopBridge{},
		logger: defLogger{},
		now:    time.Now,
		subs:   map[string]chan State{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Login runs the credential exchange. Attempts are serialized: a second
// call while one is in flight returns ErrLoginInFlight and leaves the
// session untouched.
func (s *Store) Login(ctx context.Context, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		s.applyLoginFailure(err.Error())
		return err
	}

	s.mu.Lock()
	if s.state.Loading {
		s.mu.Unlock()
		return ErrLoginInFlight
	}
	s.state.Loading = true
	s.state.Error = ""
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snapshot)

	result, err := s.api.Login(ctx, creds)
	if err != nil {
		s.applyLoginFailure(err.Error())
		return err
	}

	claims, ok := DecodeToken(result.Token)
	if !ok {
		// An undecodable token from the server is treated as no session,
		// never surfaced as an error state.
		s.logger.Warn("login returned an undecodable token, resetting session")
		if err := s.tokens.Clear(ctx); err != nil {
			s.logger.Warn("storage clear failed: %v", err)
		}
		s.applyReset()
		return ErrTokenMalformed
	}

	return s.applyLoginSuccess(ctx, result, claims)
}

// Logout disconnects the session channel, clears persisted state, and
// resets the session to its initial empty value.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	s.state.Loading = true
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snapshot)

	s.bridge.Disconnect()
	if err := s.tokens.Clear(ctx); err != nil {
		s.logger.Warn("storage clear failed during logout: %v", err)
	}
	s.applyReset()
}

// ForceLogout is the 401 path: it logs the session out at most once even
// when several concurrent responses observe a 401.
func (s *Store) ForceLogout(ctx context.Context) {
	s.mu.Lock()
	if !s.state.IsAuthenticated {
		s.mu.Unlock()
		return
	}
	// Claim the flag under the lock so concurrent 401s log out once.
	s.state.IsAuthenticated = false
	s.mu.Unlock()

	s.logger.Info("forced logout after unauthorized response")
	s.Logout(ctx)
}

// CheckAuthStatus rehydrates the session from whatever the token store
// currently holds. Idempotent; its only side effect beyond the read is
// clearing storage when the stored token is missing, malformed, or expired.
func (s *Store) CheckAuthStatus(ctx context.Context) {
	claims, ok := s.tokens.Decode(ctx)
	if !ok || claims.ExpiredAt(s.now()) {
		if err := s.tokens.Clear(ctx); err != nil {
			s.logger.Warn("storage clear failed during auth check: %v", err)
		}
		s.applyReset()
		return
	}

	raw, _ := s.tokens.Read(ctx)

	// Prefer the cached snapshot over the claims-derived user; the snapshot
	// carries profile fields the token does not.
	user, found := s.tokens.CachedUser(ctx)
	if !found {
		user = UserFromClaims(claims)
	}

	s.applyAuthUser(user, raw)
}

// ClearError clears the error field and nothing else.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.state.Error = ""
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snapshot)
}

// CurrentState returns a copy of the session state.
func (s *Store) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// IsAuthenticated reports whether a valid session is active.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsAuthenticated
}

// CurrentUser returns the session user, when one is present.
func (s *Store) CurrentUser() (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.User == nil {
		return nil, false
	}
	return s.state.User.clone(), true
}

// PrimaryRole returns the first entry of the user's role sequence.
func (s *Store) PrimaryRole() (Role, bool) {
	user, ok := s.CurrentUser()
	if !ok {
		return "", false
	}
	return user.PrimaryRole()
}

// HasRole checks the user's role sequence for a specific role.
func (s *Store) HasRole(role Role) bool {
	user, ok := s.CurrentUser()
	if !ok {
		return false
	}
	return user.HasRole(role)
}

// TenantID returns the tenant of the session user.
func (s *Store) TenantID() (string, bool) {
	user, ok := s.CurrentUser()
	if !ok || user.TenantID == "" {
		return "", false
	}
	return user.TenantID, true
}

// Subscription is an explicit handle on the store's state stream. The
// owner that opened it closes it.
type Subscription struct {
	id    string
	ch    chan State
	store *Store
	once  sync.Once
}

// States returns the state stream. The current state is delivered first.
func (sub *Subscription) States() <-chan State {
	return sub.ch
}

// Close detaches the subscription. Idempotent.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.store.mu.Lock()
		delete(sub.store.subs, sub.id)
		sub.store.mu.Unlock()
	})
}

// Subscribe registers a state observer. The current state is pushed
// immediately so late subscribers do not miss the resting value.
func (s *Store) Subscribe() *Subscription {
	sub := &Subscription{
		id:    uuid.NewString(),
		ch:    make(chan State, 16),
		store: s,
	}
	s.mu.Lock()
	s.subs[sub.id] = sub.ch
	current := s.snapshotLocked()
	s.mu.Unlock()
	sub.ch <- current
	return sub
}

// AwaitPrimaryRole waits until a primary role becomes available, taking the
// first value, and denies once the bound elapses. Late resolutions are
// discarded with the subscription. This is the fail-closed primitive the
// role gate builds on.
func (s *Store) AwaitPrimaryRole(ctx context.Context, timeout time.Duration) (Role, bool) {
	sub := s.Subscribe()
	defer sub.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case state := <-sub.States():
			if state.User != nil {
				if role, ok := state.User.PrimaryRole(); ok {
					return role, true
				}
			}
		case <-timer.C:
			return "", false
		case <-ctx.Done():
			return "", false
		}
	}
}

// applyLoginSuccess persists the token and tenant context, installs the
// authenticated state, and connects the session channel.
func (s *Store) applyLoginSuccess(ctx context.Context, result *LoginResult, claims *Claims) error {
	if err := s.tokens.Save(ctx, result.Token); err != nil {
		s.applyLoginFailure("unable to persist session")
		return err
	}

	tenantID := result.TenantID
	if tenantID == "" {
		tenantID = claims.TenantID
	}
	if tenantID != "" {
		if err := s.tokens.SaveTenantID(ctx, tenantID); err != nil {
			s.logger.Warn("tenant id persist failed: %v", err)
		}
	}

	user := result.User
	if user == nil {
		user = UserFromClaims(claims)
		if result.Username != "" {
			user.Username = result.Username
		}
	}
	if len(user.Roles) == 0 {
		user.Roles = claims.RoleList()
	}
	if user.TenantID == "" {
		user.TenantID = tenantID
	}

	if err := s.tokens.SaveUser(ctx, user); err != nil {
		s.logger.Warn("user snapshot persist failed: %v", err)
	}

	s.mu.Lock()
	s.state = State{
		User:            user.clone(),
		Token:           result.Token,
		IsAuthenticated: true,
		Loading:         false,
		Error:           "",
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snapshot)

	if err := s.bridge.Connect(ctx, user.ID); err != nil {
		// Channel trouble never takes the session down.
		s.logger.Warn("session channel connect failed: %v", err)
	}

	return nil
}

func (s *Store) applyLoginFailure(message string) {
	s.mu.Lock()
	s.state.Loading = false
	s.state.Error = message
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snapshot)
}

// applyAuthUser installs a rehydrated identity without touching storage.
func (s *Store) applyAuthUser(user *User, token string) {
	s.mu.Lock()
	s.state = State{
		User:            user.clone(),
		Token:           token,
		IsAuthenticated: true,
		Loading:         false,
		Error:           "",
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snapshot)
}

// applyReset is the logoutSuccess transition: back to the initial value.
func (s *Store) applyReset() {
	s.mu.Lock()
	s.state = State{}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snapshot)
}

func (s *Store) snapshotLocked() State {
	snapshot := s.state
	snapshot.User = s.state.User.clone()
	return snapshot
}

func (s *Store) publish(state State) {
	s.mu.Lock()
	channels := make([]chan State, 0, len(s.subs))
	for _, ch := range s.subs {
		channels = append(channels, ch)
	}
	s.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- state:
		default:
			s.logger.Debug("dropping state update for slow subscriber")
		}
	}
}

type noopBridge struct{}

func (noopBridge) Connect(context.Context, string) error { return nil }
func (noopBridge) Disconnect()                           {}
