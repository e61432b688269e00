package models

import "time"

// SecondFactorMode selects the second authentication step configured for
// a user: none, an authenticator-app TOTP, or an emailed one-time code.
type SecondFactorMode string

const (
	SecondFactorNone  SecondFactorMode = "none"
	SecondFactorTOTP  SecondFactorMode = "totp"
	SecondFactorEmail SecondFactorMode = "email"
)

// Valid reports whether m is one of the known modes.
func (m SecondFactorMode) Valid() bool {
	switch m {
	case SecondFactorNone, SecondFactorTOTP, SecondFactorEmail:
		return true
	}
	return false
}

// Credential is a user's authentication record. It is written by
// user-management flows and read-only inside the login core.
type Credential struct {
	UserBucket       int              `db:"user_bucket"`
	UserID           string           `db:"user_id"`
	Email            string           `db:"email"`
	EmailHash        string           `db:"email_hash"`
	PasswordHash     string           `db:"password_hash"`
	Role             string           `db:"role"`
	SecondFactorMode SecondFactorMode `db:"second_factor_mode"`

	// TOTP secret at rest, envelope encrypted. Empty unless the user has
	// the totp mode enabled.
	TOTPSecretEncrypted string `db:"totp_secret_encrypted"`
	TOTPSecretDEK       string `db:"totp_secret_dek"`
	TOTPSecretKeyID     string `db:"totp_secret_key_id"`

	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt *time.Time `db:"updated_at"`
	LastLogin *time.Time `db:"last_login"`
}

// UserView is the caller-facing slice of a credential record, returned
// with a freshly issued session.
type UserView struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// View strips everything a login response must not leak.
func (c *Credential) View() *UserView {
	return &UserView{
		UserID: c.UserID,
		Email:  c.Email,
		Role:   c.Role,
	}
}
