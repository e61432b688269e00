package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testKey = "test-signing-key-32-bytes-long!!"

func TestIssuer_IssueAndParse(t *testing.T) {
	i := NewIssuer(testKey, time.Hour)

	sess, err := i.Issue("user-1", "teacher")
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)
	require.Equal(t, "user-1", sess.UserID)
	require.Equal(t, "teacher", sess.Role)
	require.WithinDuration(t, sess.IssuedAt.Add(time.Hour), sess.ExpiresAt, time.Second)

	claims, err := i.Parse(sess.Token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "teacher", claims.Role)
	require.NotEmpty(t, claims.ID)
}

func TestIssuer_RejectsEmptyInput(t *testing.T) {
	i := NewIssuer(testKey, time.Hour)

	_, err := i.Issue("", "teacher")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = i.Issue("user-1", "")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestIssuer_ExpiredToken(t *testing.T) {
	i := NewIssuer(testKey, time.Hour)

	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	current := issuedAt
	i.now = func() time.Time { return current }

	sess, err := i.Issue("user-1", "admin")
	require.NoError(t, err)

	current = issuedAt.Add(30 * time.Minute)
	_, err = i.Parse(sess.Token)
	require.NoError(t, err)

	current = issuedAt.Add(2 * time.Hour)
	_, err = i.Parse(sess.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuer_TamperedToken(t *testing.T) {
	i := NewIssuer(testKey, time.Hour)

	sess, err := i.Issue("user-1", "student")
	require.NoError(t, err)

	parts := strings.Split(sess.Token, ".")
	require.Len(t, parts, 3)

	// Flip the signature.
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	_, err = i.Parse(tampered)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuer_WrongKey(t *testing.T) {
	a := NewIssuer(testKey, time.Hour)
	b := NewIssuer("another-signing-key-entirely!!!!", time.Hour)

	sess, err := a.Issue("user-1", "student")
	require.NoError(t, err)

	_, err = b.Parse(sess.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuer_UniqueTokenIDs(t *testing.T) {
	i := NewIssuer(testKey, time.Hour)

	s1, err := i.Issue("user-1", "student")
	require.NoError(t, err)
	s2, err := i.Issue("user-1", "student")
	require.NoError(t, err)

	c1, err := i.Parse(s1.Token)
	require.NoError(t, err)
	c2, err := i.Parse(s2.Token)
	require.NoError(t, err)
	require.NotEqual(t, c1.ID, c2.ID)
}
