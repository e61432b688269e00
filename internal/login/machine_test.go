package login

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"campus-auth-service/internal/config"
	"campus-auth-service/internal/hashing"
	"campus-auth-service/internal/models"
	"campus-auth-service/internal/otp"
	"campus-auth-service/internal/secondfactor"
	"campus-auth-service/internal/session"
	"campus-auth-service/internal/totp"
)

// fakeCredentialStore serves credential records from memory.
type fakeCredentialStore struct {
	byEmail map[string]*models.Credential
	byID    map[string]*models.Credential
}

func (s *fakeCredentialStore) GetByIdentifier(ctx context.Context, identifier string) (*models.Credential, error) {
	cred, ok := s.byEmail[identifier]
	if !ok {
		return nil, ErrNotFound
	}
	return cred, nil
}

func (s *fakeCredentialStore) GetByID(ctx context.Context, userID string) (*models.Credential, error) {
	cred, ok := s.byID[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return cred, nil
}

// fakeDecrypter hands back secrets from a map keyed by user id, standing in
// for the envelope-decryption manager.
type fakeDecrypter struct {
	secrets map[string]string
}

func (d *fakeDecrypter) DecryptTOTPSecret(ctx context.Context, cred *models.Credential) (string, error) {
	return d.secrets[cred.UserID], nil
}

// recordingMailer captures sent codes instead of delivering them.
type recordingMailer struct {
	codes []string
}

func (m *recordingMailer) SendLoginCode(ctx context.Context, to, code string, expiresAt time.Time) error {
	m.codes = append(m.codes, code)
	return nil
}

func (m *recordingMailer) lastCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, m.codes)
	return m.codes[len(m.codes)-1]
}

// deadStore reports every code as unusable, standing in for a store whose
// entries have all lapsed.
type deadStore struct{}

func (deadStore) Put(ctx context.Context, userID, code string, expiresAt time.Time) error {
	return nil
}

func (deadStore) Consume(ctx context.Context, userID, code string) (bool, error) {
	return false, nil
}

type harness struct {
	creds     *fakeCredentialStore
	mailer    *recordingMailer
	store     otp.Store
	secrets   *fakeDecrypter
	verifier  *Verifier
	issuer    *secondfactor.Issuer
	validator *totp.Validator
	sessions  *session.Issuer
	hasher    *hashing.Hasher
}

func newHarness() *harness {
	h := &harness{
		creds:   &fakeCredentialStore{byEmail: map[string]*models.Credential{}, byID: map[string]*models.Credential{}},
		mailer:  &recordingMailer{},
		store:   otp.NewMemoryStore(),
		secrets: &fakeDecrypter{secrets: map[string]string{}},
		hasher: hashing.NewHasher(&config.Config{
			Hashing: config.HashingConfig{Argon2MemoryCost: 1024, Argon2TimeCost: 1, Argon2Parallelism: 1},
		}),
	}
	h.verifier = NewVerifier(h.creds, h.hasher)
	h.issuer = secondfactor.NewIssuer(h.store, h.mailer, 5*time.Minute)
	h.validator = totp.NewValidator()
	h.sessions = session.NewIssuer("test-signing-key-32-bytes-long!!", time.Hour)
	return h
}

func (h *harness) addUser(t *testing.T, userID, emailAddr, password, role string, mode models.SecondFactorMode) {
	t.Helper()
	hash, err := h.hasher.Hash(password)
	require.NoError(t, err)

	cred := &models.Credential{
		UserID:           userID,
		Email:            emailAddr,
		PasswordHash:     hash,
		Role:             role,
		SecondFactorMode: mode,
	}
	h.creds.byEmail[emailAddr] = cred
	h.creds.byID[userID] = cred
}

func (h *harness) machine() *Machine {
	return NewMachine(h.verifier, h.issuer, h.validator, h.store, h.sessions, h.secrets)
}

func TestMachine_NoSecondFactor(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.addUser(t, "user-1", "jdoe@school.edu", "hunter2hunter2", "teacher", models.SecondFactorNone)

	m := h.machine()
	res, err := m.Submit(ctx, "jdoe@school.edu", "hunter2hunter2")
	require.NoError(t, err)
	require.False(t, res.SecondFactorRequired)
	require.NotNil(t, res.Session)
	require.Equal(t, "user-1", res.Session.UserID)
	require.Equal(t, "teacher", res.User.Role)
	require.Equal(t, StateAuthenticated, m.State())
	require.Empty(t, h.mailer.codes)
}

func TestMachine_IdentifierNormalization(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.addUser(t, "user-1", "jdoe@school.edu", "hunter2hunter2", "teacher", models.SecondFactorNone)

	m := h.machine()
	res, err := m.Submit(ctx, "  JDoe@School.EDU ", "hunter2hunter2")
	require.NoError(t, err)
	require.NotNil(t, res.Session)
}

func TestMachine_WrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.addUser(t, "user-1", "jdoe@school.edu", "hunter2hunter2", "teacher", models.SecondFactorNone)

	m1 := h.machine()
	_, errWrongPass := m1.Submit(ctx, "jdoe@school.edu", "not-the-password")

	m2 := h.machine()
	_, errUnknown := m2.Submit(ctx, "nobody@school.edu", "not-the-password")

	require.ErrorIs(t, errWrongPass, ErrInvalidCredentials)
	require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	require.Equal(t, errWrongPass.Error(), errUnknown.Error())
	require.Equal(t, StateFailed, m1.State())
	require.Equal(t, StateFailed, m2.State())
}

func TestMachine_EmailCodeFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.addUser(t, "user-1", "jdoe@school.edu", "hunter2hunter2", "student", models.SecondFactorEmail)

	m := h.machine()
	res, err := m.Submit(ctx, "jdoe@school.edu", "hunter2hunter2")
	require.NoError(t, err)
	require.True(t, res.SecondFactorRequired)
	require.Nil(t, res.Session)
	require.Equal(t, "user-1", res.PendingUserID)
	require.Equal(t, models.SecondFactorEmail, res.Challenge.Mode)
	require.Equal(t, "j***@school.edu", res.Challenge.Destination)
	require.Equal(t, StateSecondFactorChallenged, m.State())

	res, err = m.SubmitCode(ctx, h.mailer.lastCode(t))
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	require.Equal(t, "user-1", res.User.UserID)
	require.Equal(t, StateAuthenticated, m.State())
}

func TestMachine_WrongCodeAllowsRetry(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.addUser(t, "user-1", "jdoe@school.edu", "hunter2hunter2", "student", models.SecondFactorEmail)

	m := h.machine()
	_, err := m.Submit(ctx, "jdoe@school.edu", "hunter2hunter2")
	require.NoError(t, err)

	code := h.mailer.lastCode(t)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	_, err = m.SubmitCode(ctx, wrong)
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
	require.Equal(t, StateSecondFactorFailed, m.State())

	// The real code still works after a failed try.
	res, err := m.SubmitCode(ctx, code)
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	require.Equal(t, StateAuthenticated, m.State())
}

func TestMachine_CodeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.addUser(t, "user-1", "jdoe@school.edu", "hunter2hunter2", "student", models.SecondFactorEmail)

	m := h.machine()
	_, err := m.Submit(ctx, "jdoe@school.edu", "hunter2hunter2")
	require.NoError(t, err)

	code := h.mailer.lastCode(t)
	_, err = m.SubmitCode(ctx, code)
	require.NoError(t, err)

	// A second attempt with the consumed code starts over and fails.
	m2 := h.machine()
	_, err = m2.Submit(ctx, "jdoe@school.edu", "hunter2hunter2")
	require.NoError(t, err)
	_, err = m2.SubmitCode(ctx, code)
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
}

func TestMachine_LapsedCodeRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.addUser(t, "user-1", "jdoe@school.edu", "hunter2hunter2", "student", models.SecondFactorEmail)

	// Swap in a store where every entry has already lapsed.
	h.store = deadStore{}
	h.issuer = secondfactor.NewIssuer(h.store, h.mailer, 5*time.Minute)

	m := h.machine()
	_, err := m.Submit(ctx, "jdoe@school.edu", "hunter2hunter2")
	require.NoError(t, err)

	_, err = m.SubmitCode(ctx, h.mailer.lastCode(t))
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
	require.Equal(t, StateSecondFactorFailed, m.State())
}

func TestMachine_TOTPFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.addUser(t, "user-1", "jdoe@school.edu", "hunter2hunter2", "admin", models.SecondFactorTOTP)

	provisioned, err := totp.GenerateSecret("Campus", "jdoe@school.edu")
	require.NoError(t, err)
	h.secrets.secrets["user-1"] = provisioned.Secret

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := h.machine()
	m.now = func() time.Time { return at }

	res, err := m.Submit(ctx, "jdoe@school.edu", "hunter2hunter2")
	require.NoError(t, err)
	require.True(t, res.SecondFactorRequired)
	require.Equal(t, models.SecondFactorTOTP, res.Challenge.Mode)
	require.Empty(t, res.Challenge.Destination)
	require.Empty(t, h.mailer.codes, "totp must not trigger mail")

	code, err := h.validator.GenerateCode(provisioned.Secret, at)
	require.NoError(t, err)

	res, err = m.SubmitCode(ctx, code)
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	require.Equal(t, StateAuthenticated, m.State())
}

func TestMachine_TOTPCodeOutsideSkewRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.addUser(t, "user-1", "jdoe@school.edu", "hunter2hunter2", "admin", models.SecondFactorTOTP)

	provisioned, err := totp.GenerateSecret("Campus", "jdoe@school.edu")
	require.NoError(t, err)
	h.secrets.secrets["user-1"] = provisioned.Secret

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := h.machine()
	m.now = func() time.Time { return at }

	_, err = m.Submit(ctx, "jdoe@school.edu", "hunter2hunter2")
	require.NoError(t, err)

	stale, err := h.validator.GenerateCode(provisioned.Secret, at.Add(-5*time.Minute))
	require.NoError(t, err)

	_, err = m.SubmitCode(ctx, stale)
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
}

func TestMachine_CodeInputSanitized(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.addUser(t, "user-1", "jdoe@school.edu", "hunter2hunter2", "student", models.SecondFactorEmail)

	m := h.machine()
	_, err := m.Submit(ctx, "jdoe@school.edu", "hunter2hunter2")
	require.NoError(t, err)

	code := h.mailer.lastCode(t)
	spaced := code[:3] + " " + code[3:]

	res, err := m.SubmitCode(ctx, spaced)
	require.NoError(t, err)
	require.NotNil(t, res.Session)
}

func TestMachine_ResendSupersedesOldCode(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.addUser(t, "user-1", "jdoe@school.edu", "hunter2hunter2", "student", models.SecondFactorEmail)

	m := h.machine()
	_, err := m.Submit(ctx, "jdoe@school.edu", "hunter2hunter2")
	require.NoError(t, err)
	first := h.mailer.lastCode(t)

	desc, err := m.Resend(ctx)
	require.NoError(t, err)
	require.Equal(t, models.SecondFactorEmail, desc.Mode)
	second := h.mailer.lastCode(t)

	if first != second {
		_, err = m.SubmitCode(ctx, first)
		require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
	}

	res, err := m.SubmitCode(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, res.Session)
}

func TestMachine_ResendClearsFailedState(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.addUser(t, "user-1", "jdoe@school.edu", "hunter2hunter2", "student", models.SecondFactorEmail)

	m := h.machine()
	_, err := m.Submit(ctx, "jdoe@school.edu", "hunter2hunter2")
	require.NoError(t, err)

	_, err = m.SubmitCode(ctx, "999999")
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
	require.Equal(t, StateSecondFactorFailed, m.State())

	_, err = m.Resend(ctx)
	require.NoError(t, err)
	require.Equal(t, StateSecondFactorChallenged, m.State())
}

func TestMachine_ResendUnsupportedForTOTP(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.addUser(t, "user-1", "jdoe@school.edu", "hunter2hunter2", "admin", models.SecondFactorTOTP)
	h.secrets.secrets["user-1"] = "JBSWY3DPEHPK3PXP"

	m := h.machine()
	_, err := m.Submit(ctx, "jdoe@school.edu", "hunter2hunter2")
	require.NoError(t, err)

	_, err = m.Resend(ctx)
	require.ErrorIs(t, err, secondfactor.ErrUnsupportedResend)
}

func TestMachine_CancelReturnsToIdle(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.addUser(t, "user-1", "jdoe@school.edu", "hunter2hunter2", "student", models.SecondFactorEmail)

	m := h.machine()
	_, err := m.Submit(ctx, "jdoe@school.edu", "hunter2hunter2")
	require.NoError(t, err)

	m.Cancel()
	require.Equal(t, StateIdle, m.State())
	require.Empty(t, m.PendingMode())

	// Code submission is no longer valid after cancel.
	_, err = m.SubmitCode(ctx, h.mailer.lastCode(t))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMachine_TransitionGuards(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.addUser(t, "user-1", "jdoe@school.edu", "hunter2hunter2", "teacher", models.SecondFactorNone)

	m := h.machine()

	_, err := m.SubmitCode(ctx, "123456")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = m.Resend(ctx)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// Submit after authentication is a stale-machine misuse.
	_, err = m.Submit(ctx, "jdoe@school.edu", "hunter2hunter2")
	require.NoError(t, err)
	_, err = m.Submit(ctx, "jdoe@school.edu", "hunter2hunter2")
	require.ErrorIs(t, err, ErrInvalidTransition)
}
