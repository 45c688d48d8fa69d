package session

import (
	"context"
	"encoding/json"
	"time"
)

// Persisted client state keys. Cleared together on logout.
const (
	storageKeyToken  = "auth.token"
	storageKeyTenant = "auth.tenant_id"
	storageKeyUser   = "auth.user"
)

// RefreshWindow is the fixed lookahead within which a still-valid token is
// reported as due for refresh.
const RefreshWindow = time.Hour

// TokenStore persists and interprets the signed session token and the
// tenant context. It never performs network calls; decode failures are
// swallowed and reported as "no valid session".
type TokenStore struct {
	storage Storage
	logger  Logger
	now     func() time.Time
}

// TokenStoreOption customizes TokenStore construction.
type TokenStoreOption func(*TokenStore)

// WithTokenStoreLogger overrides the fallback logger.
func WithTokenStoreLogger(logger Logger) TokenStoreOption {
	return func(ts *TokenStore) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// WithTokenStoreClock injects a custom clock (useful for tests).
func WithTokenStoreClock(clock func() time.Time) TokenStoreOption {
	return func(ts *TokenStore) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// NewTokenStore creates a TokenStore over the given Storage.
func NewTokenStore(storage Storage, opts ...TokenStoreOption) *TokenStore {
	ts := &TokenStore{
		storage: storage,
		logger:  defLogger{},
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts
}

// Save writes the raw token, overwriting any previous value.
func (ts *TokenStore) Save(ctx context.Context, token string) error {
	return ts.storage.Set(ctx, storageKeyToken, token)
}

// Read returns the raw stored token without validating it.
func (ts *TokenStore) Read(ctx context.Context) (string, bool) {
	raw, ok, err := ts.storage.Get(ctx, storageKeyToken)
	if err != nil {
		ts.logger.Warn("token read failed: %v", err)
		return "", false
	}
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}

// Decode parses the stored token into claims. Malformed input yields
// (nil, false), never an error.
func (ts *TokenStore) Decode(ctx context.Context) (*Claims, bool) {
	raw, ok := ts.Read(ctx)
	if !ok {
		return nil, false
	}
	return DecodeToken(raw)
}

// IsExpired is true when there is no token, the token cannot be decoded,
// or its expiry is not in the future.
func (ts *TokenStore) IsExpired(ctx context.Context) bool {
	claims, ok := ts.Decode(ctx)
	if !ok {
		return true
	}
	return claims.ExpiredAt(ts.now())
}

// ShouldRefresh is true when the token is still valid but its expiry falls
// within the fixed refresh window.
func (ts *TokenStore) ShouldRefresh(ctx context.Context) bool {
	claims, ok := ts.Decode(ctx)
	if !ok {
		return false
	}
	now := ts.now()
	if claims.ExpiredAt(now) {
		return false
	}
	return claims.Expires().Sub(now) <= RefreshWindow
}

// Clear removes the token, the tenant id, and the cached user snapshot.
func (ts *TokenStore) Clear(ctx context.Context) error {
	return ts.storage.Delete(ctx, storageKeyToken, storageKeyTenant, storageKeyUser)
}

// SaveTenantID persists the tenant id independently of the token so that
// tenant-scoped endpoints can be called before a token exists.
func (ts *TokenStore) SaveTenantID(ctx context.Context, tenantID string) error {
	return ts.storage.Set(ctx, storageKeyTenant, tenantID)
}

// TenantID returns the persisted tenant id.
func (ts *TokenStore) TenantID(ctx context.Context) (string, bool) {
	val, ok, err := ts.storage.Get(ctx, storageKeyTenant)
	if err != nil {
		ts.logger.Warn("tenant id read failed: %v", err)
		return "", false
	}
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

// SaveUser caches the user snapshot alongside the token.
func (ts *TokenStore) SaveUser(ctx context.Context, user *User) error {
	if user == nil {
		return ts.storage.Delete(ctx, storageKeyUser)
	}
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return ts.storage.Set(ctx, storageKeyUser, string(data))
}

// CachedUser returns the cached user snapshot, when one is present and
// parsable. A corrupt snapshot is treated as absent.
func (ts *TokenStore) CachedUser(ctx context.Context) (*User, bool) {
	raw, ok, err := ts.storage.Get(ctx, storageKeyUser)
	if err != nil || !ok || raw == "" {
		return nil, false
	}
	user := &User{}
	if err := json.Unmarshal([]byte(raw), user); err != nil {
		ts.logger.Warn("cached user snapshot unreadable, ignoring")
		return nil, false
	}
	return user, true
}
