package domain

import "time"

// Role determines what an API client may do
type Role string

const (
	// RoleAdmin may trigger syncs, read events and manage accounts
	RoleAdmin Role = "admin"
	// RoleService may trigger syncs and read accounts and operations
	RoleService Role = "service"
)

// TokenTTL is how long issued API tokens stay valid.
const TokenTTL = time.Hour

// APICredential is a configured machine client allowed to call the API.
// The secret is stored as a bcrypt hash.
type APICredential struct {
	ClientID   string
	SecretHash string
	Role       Role
}

// TokenClaims is the payload carried inside an issued API token.
type TokenClaims struct {
	ClientID  string `json:"client_id"`
	Role      Role   `json:"role"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Expired reports whether the claims are past their expiry at now.
func (c *TokenClaims) Expired(now time.Time) bool {
	return now.Unix() >= c.ExpiresAt
}

// AuthContext is the authenticated caller attached to a request.
type AuthContext struct {
	ClientID string
	Role     Role
}

// IsAdmin reports whether the caller holds the admin role.
func (a *AuthContext) IsAdmin() bool {
	return a.Role == RoleAdmin
}
