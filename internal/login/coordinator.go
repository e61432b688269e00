package login

import (
	"context"
	"sync"

	"campus-auth-service/internal/otp"
	"campus-auth-service/internal/secondfactor"
	"campus-auth-service/internal/session"
	"campus-auth-service/internal/totp"
	"campus-auth-service/internal/util"
)

// Coordinator maps the stateless request/response surface onto per-attempt
// state machines. Attempts waiting on a second factor are keyed by the
// pending user id; a new Submit for the same user replaces the prior
// attempt outright.
type Coordinator struct {
	verifier   *Verifier
	challenges *secondfactor.Issuer
	totp       *totp.Validator
	otps       otp.Store
	sessions   *session.Issuer
	secrets    SecretDecrypter

	mu      sync.Mutex
	pending map[string]*Machine
}

func NewCoordinator(
	verifier *Verifier,
	challenges *secondfactor.Issuer,
	totpValidator *totp.Validator,
	otpStore otp.Store,
	sessions *session.Issuer,
	secrets SecretDecrypter,
) *Coordinator {
	return &Coordinator{
		verifier:   verifier,
		challenges: challenges,
		totp:       totpValidator,
		otps:       otpStore,
		sessions:   sessions,
		secrets:    secrets,
		pending:    make(map[string]*Machine),
	}
}

func (c *Coordinator) newMachine() *Machine {
	return NewMachine(c.verifier, c.challenges, c.totp, c.otps, c.sessions, c.secrets)
}

// Submit starts a fresh login attempt. If a second factor is required the
// attempt is parked under its pending user id until the code arrives.
func (c *Coordinator) Submit(ctx context.Context, identifier, password string) (*Result, error) {
	m := c.newMachine()

	res, err := m.Submit(ctx, identifier, password)
	if err != nil {
		return nil, err
	}

	if res.SecondFactorRequired {
		c.mu.Lock()
		if _, exists := c.pending[res.PendingUserID]; exists {
			util.Debug("Pending login replaced by new attempt",
				util.String("user_id", res.PendingUserID))
		}
		c.pending[res.PendingUserID] = m
		c.mu.Unlock()
	}

	return res, nil
}

// SubmitCode completes a pending attempt. An unknown pending user id gets
// the same generic failure as a bad code.
func (c *Coordinator) SubmitCode(ctx context.Context, pendingUserID, code string) (*Result, error) {
	m := c.lookup(pendingUserID)
	if m == nil {
		return nil, ErrInvalidOrExpiredCode
	}

	res, err := m.SubmitCode(ctx, code)
	if err != nil {
		// Attempt stays pending on a wrong code so the user may retry.
		return nil, err
	}

	c.remove(pendingUserID)
	return res, nil
}

// Resend re-issues the email challenge for a pending attempt.
func (c *Coordinator) Resend(ctx context.Context, pendingUserID string) (*secondfactor.ChallengeDescriptor, error) {
	m := c.lookup(pendingUserID)
	if m == nil {
		return nil, ErrNoPendingLogin
	}
	return m.Resend(ctx)
}

// Cancel abandons a pending attempt. The outstanding email code is not
// deleted; it expires on its own schedule.
func (c *Coordinator) Cancel(pendingUserID string) error {
	m := c.lookup(pendingUserID)
	if m == nil {
		return ErrNoPendingLogin
	}

	m.Cancel()
	c.remove(pendingUserID)
	return nil
}

// PendingMode exposes the second-factor mode of a pending attempt, or ""
// when none exists.
func (c *Coordinator) PendingMode(pendingUserID string) string {
	m := c.lookup(pendingUserID)
	if m == nil {
		return ""
	}
	return string(m.PendingMode())
}

func (c *Coordinator) lookup(pendingUserID string) *Machine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[pendingUserID]
}

func (c *Coordinator) remove(pendingUserID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, pendingUserID)
}
