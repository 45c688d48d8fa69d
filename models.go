package session

import (
	validation "github.com/go-ozzo/ozzo-validation"
)

// User is the client-held snapshot of the authenticated identity. It is
// owned by the Store and only replaced inside a named transition.
type User struct {
	ID        string `json:"id,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Roles     []Role `json:"roles,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
}

// PrimaryRole returns the first entry of the user's role sequence.
func (u *User) PrimaryRole() (Role, bool) {
	if u == nil {
		return "", false
	}
	return primaryRole(u.Roles)
}

// HasRole checks if the user carries a specific role anywhere in the sequence.
func (u *User) HasRole(role Role) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Roles = append([]Role(nil), u.Roles...)
	return &cp
}

// UserFromClaims synthesizes a User from decoded token claims. Used by the
// startup-rehydration path when no richer snapshot is cached.
func UserFromClaims(claims *Claims) *User {
	if claims == nil {
		return nil
	}
	return &User{
		ID:       claims.UserID(),
		Username: claims.UserID(),
		Roles:    claims.RoleList(),
		TenantID: claims.TenantID,
	}
}

// Credentials is the login payload.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate enforces the payload contract before any network call is made.
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password, validation.Required),
	)
}

// LoginResult is the login endpoint's response shape.
type LoginResult struct {
	Token       string   `json:"token"`
	TokenType   string   `json:"tokenType,omitempty"`
	Username    string   `json:"username,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	TenantID    string   `json:"tenantId,omitempty"`
	User        *User    `json:"user,omitempty"`
}

// RegisterPayload is the registration payload forwarded to the public
// register endpoint.
type RegisterPayload struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	TenantID  string `json:"tenantId,omitempty"`
}

// Validate enforces the registration payload contract. The tenant context
// travels in the tenant header, not the payload, so TenantID stays optional.
func (p RegisterPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Username, validation.Required),
		validation.Field(&p.Password, validation.Required),
		validation.Field(&p.Email, validation.Required),
	)
}
