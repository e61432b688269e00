// Package otp implements the short-lived, single-use store for emailed
// one-time codes. Entries are keyed by user, superseded unconditionally on
// Put, and removed on the first successful Consume. Expiry is enforced
// lazily at read time; there are no per-entry timers.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Store is the put/consume contract shared by the in-process and Redis
// implementations, so a deployment can swap in a networked store without
// touching the login flow.
type Store interface {
	// Put records a code for userID, unconditionally replacing any
	// existing entry. The superseded code is invalid immediately, even
	// if it had not expired.
	Put(ctx context.Context, userID, code string, expiresAt time.Time) error

	// Consume atomically checks existence, expiry, and equality.
	// A correct, unexpired code removes the entry and returns true.
	// A wrong code against a still-valid entry leaves it in place so the
	// user may retry. An expired entry is removed regardless of match.
	Consume(ctx context.Context, userID, code string) (bool, error)
}

const (
	codeMin  = 100000
	codeSpan = 900000
)

// GenerateCode returns a uniformly random 6-digit code in
// [100000, 999999]. A leading zero is impossible by construction.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}
