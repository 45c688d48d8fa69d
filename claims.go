package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the strict schema for the decoded token payload: subject,
// ordered roles, tenant id, and the registered iat/exp fields. Payloads
// missing any required field are rejected during decode instead of being
// accepted as arbitrary shapes.
type Claims struct {
	jwt.RegisteredClaims
	Roles    []string `json:"roles,omitempty"`
	TenantID string   `json:"tenantId,omitempty"`
}

// UserID returns the subject claim, the user id.
func (c *Claims) UserID() string {
	return c.RegisteredClaims.Subject
}

// RoleList converts the raw role strings into typed roles. Unknown role
// strings are preserved as-is; gates compare against the fixed set.
func (c *Claims) RoleList() []Role {
	roles := make([]Role, 0, len(c.Roles))
	for _, r := range c.Roles {
		roles = append(roles, Role(r))
	}
	return roles
}

// PrimaryRole returns the first entry of the role sequence.
func (c *Claims) PrimaryRole() (Role, bool) {
	return primaryRole(c.RoleList())
}

// Expires returns the expiration time
func (c *Claims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// Issued returns the issued at time
func (c *Claims) Issued() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// ExpiredAt reports whether the claims are expired relative to now.
func (c *Claims) ExpiredAt(now time.Time) bool {
	exp := c.Expires()
	if exp.IsZero() {
		return true
	}
	return !exp.After(now)
}

// complete enforces the required fields: subject, a non-empty role
// sequence, and an expiry.
func (c *Claims) complete() bool {
	if c.RegisteredClaims.Subject == "" {
		return false
	}
	if len(c.Roles) == 0 {
		return false
	}
	return c.RegisteredClaims.ExpiresAt != nil
}

// DecodeToken parses a raw token without cryptographic validation; the
// client consumes externally-issued tokens and the server is the one
// verifying signatures. Malformed input or an incomplete payload yields
// (nil, false), never an error.
func DecodeToken(raw string) (*Claims, bool) {
	if raw == "" {
		return nil, false
	}

	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, false
	}

	if !claims.complete() {
		return nil, false
	}

	return claims, true
}
