package login

import (
	"context"
	"errors"
	"fmt"

	"campus-auth-service/internal/hashing"
	"campus-auth-service/internal/models"
	"campus-auth-service/internal/util"
)

var (
	// ErrInvalidCredentials covers both unknown identifier and wrong
	// password. The two cases must stay indistinguishable to the caller
	// so login responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidOrExpiredCode covers wrong, reused, and expired codes,
	// also merged into one observable failure.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")

	// ErrNoPendingLogin means no challenge is outstanding for the given
	// pending user. Surfaced to callers as a generic failure.
	ErrNoPendingLogin = errors.New("no pending login")
)

// ErrNotFound is returned by a CredentialStore when no record exists for
// the identifier.
var ErrNotFound = errors.New("credential not found")

// CredentialStore is the external user-store collaborator. The login core
// only reads from it.
type CredentialStore interface {
	GetByIdentifier(ctx context.Context, identifier string) (*models.Credential, error)
	GetByID(ctx context.Context, userID string) (*models.Credential, error)
}

// SecretDecrypter recovers the plaintext TOTP secret from a credential
// record's envelope-encrypted fields.
type SecretDecrypter interface {
	DecryptTOTPSecret(ctx context.Context, cred *models.Credential) (string, error)
}

// Verifier checks identifier + password against the credential store and
// reports the user's configured second-factor mode.
type Verifier struct {
	creds  CredentialStore
	hasher *hashing.Hasher
}

func NewVerifier(creds CredentialStore, hasher *hashing.Hasher) *Verifier {
	return &Verifier{creds: creds, hasher: hasher}
}

// Verify returns the credential record on success. Both failure paths
// return the same ErrInvalidCredentials, and the unknown-identifier path
// burns a dummy hash comparison so timing stays flat.
func (v *Verifier) Verify(ctx context.Context, identifier, password string) (*models.Credential, error) {
	identifier = util.NormalizeIdentifier(identifier)

	cred, err := v.creds.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			v.hasher.DummyVerify(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("credential lookup failed: %w", err)
	}

	ok, err := v.hasher.Verify(password, cred.PasswordHash)
	if err != nil {
		util.Error("Stored password hash is malformed",
			util.String("user_id", cred.UserID),
			util.ErrorField(err))
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	return cred, nil
}
