package hashing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"campus-auth-service/internal/config"
)

func newTestHasher() *Hasher {
	// Small parameters keep the tests fast; the encoded form is identical.
	return NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	})
}

func TestHasher_HashAndVerify(t *testing.T) {
	h := newTestHasher()

	encoded, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := h.Verify("correct horse battery staple", encoded)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.Verify("wrong password", encoded)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHasher_SaltedHashesDiffer(t *testing.T) {
	h := newTestHasher()

	a, err := h.Hash("same password")
	require.NoError(t, err)
	b, err := h.Hash("same password")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestHasher_VerifyAcrossParamChange(t *testing.T) {
	// A hash produced under one parameter set still verifies with a hasher
	// configured differently, because parameters travel in the encoding.
	old := newTestHasher()
	encoded, err := old.Hash("s3cret")
	require.NoError(t, err)

	current := NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  2048,
			Argon2TimeCost:    2,
			Argon2Parallelism: 2,
		},
	})

	ok, err := current.Verify("s3cret", encoded)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHasher_MalformedHash(t *testing.T) {
	h := newTestHasher()

	cases := []string{
		"",
		"not-a-hash",
		"$argon2id$v=19$m=1024,t=1,p=1$only-four-parts",
		"$bcrypt$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$aGFzaA",
	}
	for _, encoded := range cases {
		_, err := h.Verify("whatever", encoded)
		require.Error(t, err, "encoded=%q", encoded)
	}
}

func TestHasher_DummyVerifyAlwaysFails(t *testing.T) {
	h := newTestHasher()
	require.False(t, h.DummyVerify(""))
	require.False(t, h.DummyVerify("decoy-password-for-constant-timing"))
}
