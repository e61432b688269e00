package secondfactor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"campus-auth-service/internal/models"
	"campus-auth-service/internal/otp"
)

// recordingMailer captures sent codes instead of delivering them.
type recordingMailer struct {
	to    []string
	codes []string
}

func (m *recordingMailer) SendLoginCode(ctx context.Context, to, code string, expiresAt time.Time) error {
	m.to = append(m.to, to)
	m.codes = append(m.codes, code)
	return nil
}

func newTestIssuer() (*Issuer, *otp.MemoryStore, *recordingMailer) {
	store := otp.NewMemoryStore()
	mailer := &recordingMailer{}
	return NewIssuer(store, mailer, 5*time.Minute), store, mailer
}

func TestIssuer_EmailChallenge(t *testing.T) {
	ctx := context.Background()
	issuer, store, mailer := newTestIssuer()

	start := time.Date(2031, 3, 1, 9, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return start }

	desc, err := issuer.IssueChallenge(ctx, "user-1", "jdoe@school.edu", models.SecondFactorEmail)
	require.NoError(t, err)
	require.Equal(t, models.SecondFactorEmail, desc.Mode)
	require.Equal(t, "j***@school.edu", desc.Destination)
	require.Equal(t, start.Add(5*time.Minute), desc.ExpiresAt)

	// The mailed code is the stored code.
	require.Len(t, mailer.codes, 1)
	require.Equal(t, []string{"jdoe@school.edu"}, mailer.to)

	ok, err := store.Consume(ctx, "user-1", mailer.codes[0])
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIssuer_TOTPChallengeHasNoDelivery(t *testing.T) {
	ctx := context.Background()
	issuer, store, mailer := newTestIssuer()

	desc, err := issuer.IssueChallenge(ctx, "user-1", "jdoe@school.edu", models.SecondFactorTOTP)
	require.NoError(t, err)
	require.Equal(t, models.SecondFactorTOTP, desc.Mode)
	require.Empty(t, desc.Destination)
	require.Empty(t, mailer.codes)
	require.Equal(t, 0, store.Len())
}

func TestIssuer_UnknownMode(t *testing.T) {
	issuer, _, _ := newTestIssuer()

	_, err := issuer.IssueChallenge(context.Background(), "user-1", "jdoe@school.edu", "sms")
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestIssuer_ResendSupersedes(t *testing.T) {
	ctx := context.Background()
	issuer, store, mailer := newTestIssuer()

	_, err := issuer.IssueChallenge(ctx, "user-1", "jdoe@school.edu", models.SecondFactorEmail)
	require.NoError(t, err)

	_, err = issuer.Resend(ctx, "user-1", "jdoe@school.edu", models.SecondFactorEmail)
	require.NoError(t, err)
	require.Len(t, mailer.codes, 2)

	first, second := mailer.codes[0], mailer.codes[1]

	// The first code is dead even if the two draws happened to collide;
	// checking the second covers that case.
	if first != second {
		ok, err := store.Consume(ctx, "user-1", first)
		require.NoError(t, err)
		require.False(t, ok)
	}

	ok, err := store.Consume(ctx, "user-1", second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIssuer_ResendRefreshesExpiry(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := newTestIssuer()

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	current := start
	issuer.now = func() time.Time { return current }

	_, err := issuer.IssueChallenge(ctx, "user-1", "jdoe@school.edu", models.SecondFactorEmail)
	require.NoError(t, err)

	current = start.Add(4 * time.Minute)
	desc, err := issuer.Resend(ctx, "user-1", "jdoe@school.edu", models.SecondFactorEmail)
	require.NoError(t, err)
	require.Equal(t, current.Add(5*time.Minute), desc.ExpiresAt)
}

func TestIssuer_ResendUnsupportedForTOTP(t *testing.T) {
	issuer, _, _ := newTestIssuer()

	_, err := issuer.Resend(context.Background(), "user-1", "jdoe@school.edu", models.SecondFactorTOTP)
	require.ErrorIs(t, err, ErrUnsupportedResend)

	_, err = issuer.Resend(context.Background(), "user-1", "jdoe@school.edu", models.SecondFactorNone)
	require.ErrorIs(t, err, ErrUnsupportedResend)
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"jdoe@school.edu":  "j***@school.edu",
		"a@school.edu":     "a***@school.edu",
		"no-at-sign":       "***",
		"@leading.at":      "***",
		"principal@k12.us": "p***@k12.us",
	}
	for in, want := range cases {
		require.Equal(t, want, MaskEmail(in), "input=%q", in)
	}
}
