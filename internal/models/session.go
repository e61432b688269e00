package models

import "time"

// SessionCredential is the stateless proof of authentication issued after
// a successful login. Validity is determined entirely by its signature and
// expiry; no store is consulted.
type SessionCredential struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
