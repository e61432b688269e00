package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"campus-auth-service/internal/config"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidHash         = errors.New("invalid hash format")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher hashes and verifies passwords with Argon2id. Verification of an
// unknown identifier still burns a full hash computation (DummyVerify) so
// response timing does not reveal whether the account exists.
type Hasher struct {
	params Argon2Params

	// dummyHash is a throwaway encoded hash used by DummyVerify.
	dummyHash string
}

func NewHasher(cfg *config.Config) *Hasher {
	params := Argon2Params{
		Memory:      uint32(cfg.Hashing.Argon2MemoryCost),
		Iterations:  uint32(cfg.Hashing.Argon2TimeCost),
		Parallelism: uint8(cfg.Hashing.Argon2Parallelism),
		SaltLength:  16,
		KeyLength:   32,
	}

	h := &Hasher{params: params}

	dummy, err := h.Hash("decoy-password-for-constant-timing")
	if err != nil {
		panic("failed to precompute dummy hash: " + err.Error())
	}
	h.dummyHash = dummy

	return h
}

// Hash derives an Argon2id hash and returns it in the standard encoded
// form: $argon2id$v=19$m=...,t=...,p=...$<salt>$<hash>
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	return encoded, nil
}

// Verify reports whether password matches the encoded hash. The comparison
// is constant time. Parameters are taken from the encoded hash so records
// hashed under older settings keep verifying after a config change.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	params, salt, expected, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		salt,
		params.Iterations,
		params.Memory,
		params.Parallelism,
		uint32(len(expected)),
	)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// DummyVerify burns a full verification against a throwaway hash and
// always reports a mismatch.
func (h *Hasher) DummyVerify(password string) bool {
	_, _ = h.Verify(password, h.dummyHash)
	return false
}

func decodeHash(encodedHash string) (Argon2Params, []byte, []byte, error) {
	var params Argon2Params

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return params, nil, nil, ErrIncompatibleVersion
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return params, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, ErrInvalidHash
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params, nil, nil, ErrInvalidHash
	}

	params.SaltLength = uint32(len(salt))
	params.KeyLength = uint32(len(hash))

	return params, salt, hash, nil
}
