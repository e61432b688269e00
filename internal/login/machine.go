package login

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"campus-auth-service/internal/models"
	"campus-auth-service/internal/otp"
	"campus-auth-service/internal/secondfactor"
	"campus-auth-service/internal/session"
	"campus-auth-service/internal/totp"
	"campus-auth-service/internal/util"
)

// State of one interactive login attempt.
type State string

const (
	StateIdle                   State = "idle"
	StateAuthenticated          State = "authenticated"
	StateFailed                 State = "failed"
	StateSecondFactorChallenged State = "second_factor_challenged"
	StateSecondFactorFailed     State = "second_factor_failed"
)

var ErrInvalidTransition = errors.New("operation not valid in current state")

// attempt is the transient context kept between the credential step and
// the challenge step. Discarded on success, cancel, or replacement.
type attempt struct {
	userID     string
	email      string
	role       string
	mode       models.SecondFactorMode
	totpSecret string
	user       *models.UserView
}

// Result of a Submit or SubmitCode transition.
type Result struct {
	SecondFactorRequired bool                             `json:"second_factor_required"`
	PendingUserID        string                           `json:"pending_user_id,omitempty"`
	Challenge            *secondfactor.ChallengeDescriptor `json:"challenge,omitempty"`
	Session              *models.SessionCredential        `json:"session,omitempty"`
	User                 *models.UserView                 `json:"user,omitempty"`
}

// Machine drives one login attempt through its states. It is independent
// of any transport; the coordinator maps HTTP exchanges onto it.
type Machine struct {
	verifier   *Verifier
	challenges *secondfactor.Issuer
	totp       *totp.Validator
	otps       otp.Store
	sessions   *session.Issuer
	secrets    SecretDecrypter

	mu      sync.Mutex
	state   State
	attempt *attempt

	now func() time.Time
}

func NewMachine(
	verifier *Verifier,
	challenges *secondfactor.Issuer,
	totpValidator *totp.Validator,
	otpStore otp.Store,
	sessions *session.Issuer,
	secrets SecretDecrypter,
) *Machine {
	return &Machine{
		verifier:   verifier,
		challenges: challenges,
		totp:       totpValidator,
		otps:       otpStore,
		sessions:   sessions,
		secrets:    secrets,
		state:      StateIdle,
		now:        time.Now,
	}
}

// State returns the current state. For tests and diagnostics.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Submit runs the credential step. On success with no second factor it
// authenticates immediately; with one configured it issues the challenge
// and parks in SecondFactorChallenged.
func (m *Machine) Submit(ctx context.Context, identifier, password string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return nil, fmt.Errorf("%w: submit from %s", ErrInvalidTransition, m.state)
	}

	cred, err := m.verifier.Verify(ctx, identifier, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			m.state = StateFailed
		}
		return nil, err
	}

	switch cred.SecondFactorMode {
	case models.SecondFactorNone:
		sess, err := m.sessions.Issue(cred.UserID, cred.Role)
		if err != nil {
			return nil, err
		}
		m.state = StateAuthenticated
		return &Result{Session: sess, User: cred.View()}, nil

	case models.SecondFactorTOTP, models.SecondFactorEmail:
		a := &attempt{
			userID: cred.UserID,
			email:  cred.Email,
			role:   cred.Role,
			mode:   cred.SecondFactorMode,
			user:   cred.View(),
		}

		if cred.SecondFactorMode == models.SecondFactorTOTP {
			secret, err := m.secrets.DecryptTOTPSecret(ctx, cred)
			if err != nil {
				return nil, fmt.Errorf("failed to recover totp secret: %w", err)
			}
			a.totpSecret = secret
		}

		desc, err := m.challenges.IssueChallenge(ctx, cred.UserID, cred.Email, cred.SecondFactorMode)
		if err != nil {
			return nil, err
		}

		m.attempt = a
		m.state = StateSecondFactorChallenged

		return &Result{
			SecondFactorRequired: true,
			PendingUserID:        cred.UserID,
			Challenge:            desc,
		}, nil

	default:
		return nil, fmt.Errorf("credential record has unknown second-factor mode %q", cred.SecondFactorMode)
	}
}

// SubmitCode runs the challenge step. Failure keeps the attempt context so
// the user can retry without re-entering credentials.
func (m *Machine) SubmitCode(ctx context.Context, code string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateSecondFactorChallenged && m.state != StateSecondFactorFailed {
		return nil, fmt.Errorf("%w: submit code from %s", ErrInvalidTransition, m.state)
	}

	code = util.SanitizeCode(code)
	a := m.attempt

	var ok bool
	switch a.mode {
	case models.SecondFactorEmail:
		var err error
		ok, err = m.otps.Consume(ctx, a.userID, code)
		if err != nil {
			return nil, err
		}
	case models.SecondFactorTOTP:
		ok = m.totp.Validate(a.totpSecret, code, m.now())
	}

	if !ok {
		m.state = StateSecondFactorFailed
		return nil, ErrInvalidOrExpiredCode
	}

	sess, err := m.sessions.Issue(a.userID, a.role)
	if err != nil {
		return nil, err
	}

	m.state = StateAuthenticated
	m.attempt = nil

	return &Result{Session: sess, User: a.user}, nil
}

// Resend re-issues the email challenge. It is an error for the totp mode,
// where there is nothing to resend.
func (m *Machine) Resend(ctx context.Context) (*secondfactor.ChallengeDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateSecondFactorChallenged && m.state != StateSecondFactorFailed {
		return nil, fmt.Errorf("%w: resend from %s", ErrInvalidTransition, m.state)
	}

	a := m.attempt
	desc, err := m.challenges.Resend(ctx, a.userID, a.email, a.mode)
	if err != nil {
		return nil, err
	}

	// A fresh code supersedes the old one; clear any failed-code state.
	m.state = StateSecondFactorChallenged
	return desc, nil
}

// Cancel abandons the attempt and returns to Idle. The outstanding email
// code, if any, is left to expire on its own schedule.
func (m *Machine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateIdle
	m.attempt = nil
}

// PendingMode reports the second-factor mode of the current attempt, or
// empty if none is in flight.
func (m *Machine) PendingMode() models.SecondFactorMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempt == nil {
		return ""
	}
	return m.attempt.mode
}
