// Package secondfactor decides which second authentication step a user
// must complete and produces the corresponding challenge.
package secondfactor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campus-auth-service/internal/email"
	"campus-auth-service/internal/models"
	"campus-auth-service/internal/otp"
	"campus-auth-service/internal/util"
)

var (
	ErrUnsupportedResend = errors.New("resend is not supported for this factor")
	ErrUnknownMode       = errors.New("unknown second-factor mode")
)

// ChallengeDescriptor tells the caller what to do next. For the email
// factor it carries where the code went (masked) and when it lapses; for
// totp there is nothing to deliver, the authenticator app has the secret.
type ChallengeDescriptor struct {
	Mode        models.SecondFactorMode `json:"mode"`
	Destination string                  `json:"destination,omitempty"`
	ExpiresAt   time.Time               `json:"expires_at,omitempty"`
}

// Issuer produces second-factor challenges. The email path generates a
// fresh code, stores it (superseding any outstanding one), and mails it.
type Issuer struct {
	store   otp.Store
	mailer  email.Mailer
	codeTTL time.Duration

	now func() time.Time
}

func NewIssuer(store otp.Store, mailer email.Mailer, codeTTL time.Duration) *Issuer {
	return &Issuer{
		store:   store,
		mailer:  mailer,
		codeTTL: codeTTL,
		now:     time.Now,
	}
}

// IssueChallenge starts the second-factor step for a verified user.
func (i *Issuer) IssueChallenge(ctx context.Context, userID, emailAddr string, mode models.SecondFactorMode) (*ChallengeDescriptor, error) {
	switch mode {
	case models.SecondFactorTOTP:
		// Nothing stored, nothing sent.
		return &ChallengeDescriptor{Mode: models.SecondFactorTOTP}, nil

	case models.SecondFactorEmail:
		return i.issueEmailCode(ctx, userID, emailAddr)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// Resend re-issues the email challenge. It generates a fresh code with a
// fresh expiry and supersedes the previous one; it cannot be used to
// extend the life of an existing code. Resend for totp is an error, there
// is nothing to resend.
func (i *Issuer) Resend(ctx context.Context, userID, emailAddr string, mode models.SecondFactorMode) (*ChallengeDescriptor, error) {
	if mode != models.SecondFactorEmail {
		return nil, ErrUnsupportedResend
	}
	return i.issueEmailCode(ctx, userID, emailAddr)
}

func (i *Issuer) issueEmailCode(ctx context.Context, userID, emailAddr string) (*ChallengeDescriptor, error) {
	code, err := otp.GenerateCode()
	if err != nil {
		return nil, err
	}

	expiresAt := i.now().Add(i.codeTTL)
	if err := i.store.Put(ctx, userID, code, expiresAt); err != nil {
		return nil, err
	}

	if err := i.mailer.SendLoginCode(ctx, emailAddr, code, expiresAt); err != nil {
		// The stored code is unusable if the user never sees it; it will
		// lapse on its own schedule.
		return nil, err
	}

	util.Info("Email challenge issued",
		util.String("user_id", userID),
		util.Time("expires_at", expiresAt),
	)

	return &ChallengeDescriptor{
		Mode:        models.SecondFactorEmail,
		Destination: MaskEmail(emailAddr),
		ExpiresAt:   expiresAt,
	}, nil
}

// MaskEmail hides most of the local part: "jdoe@school.edu" -> "j***@school.edu".
func MaskEmail(addr string) string {
	at := strings.Index(addr, "@")
	if at <= 0 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}
