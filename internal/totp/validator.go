// Package totp wraps the RFC 6238 time-based one-time-password check used
// for the authenticator-app second factor.
package totp

import (
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var ErrInvalidSecret = errors.New("invalid totp secret")

const (
	// Period is the TOTP time step in seconds.
	Period = 30

	// Skew is the number of adjacent steps accepted on either side of the
	// current one. Two steps buys ±60s of clock drift without widening the
	// replay window much further.
	Skew = 2
)

// Validator performs the stateless code check. It deliberately has no
// single-use semantics: the secret is durable, and a code remains valid
// anywhere inside the skew window. Single use is the email-code store's
// concern, not this one's.
type Validator struct {
	opts totp.ValidateOpts
}

func NewValidator() *Validator {
	return &Validator{
		opts: totp.ValidateOpts{
			Period:    Period,
			Skew:      Skew,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		},
	}
}

// Validate reports whether code matches secret at any step within the
// skew window around now.
func (v *Validator) Validate(secret, code string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, now, v.opts)
	return err == nil && ok
}

// GenerateCode computes the expected code for secret at the given time.
// Used by tests and by provisioning flows that display a first code.
func (v *Validator) GenerateCode(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, at, v.opts)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return code, nil
}

// ProvisionedSecret is a freshly generated shared secret plus the
// otpauth:// URI an authenticator app enrolls from. Persisting it against
// a user's credential record is the user-management flow's job.
type ProvisionedSecret struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// GenerateSecret creates a new base32 shared secret for the given account.
func GenerateSecret(issuer, accountName string) (*ProvisionedSecret, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp secret: %w", err)
	}

	return &ProvisionedSecret{
		Secret: key.Secret(),
		URL:    key.URL(),
	}, nil
}
