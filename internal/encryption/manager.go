// Package encryption protects TOTP secrets at rest with envelope
// encryption: a per-secret data key encrypts the value with AES-256-GCM,
// and the data key itself is wrapped by KMS (or a local master key when
// KMS is disabled).
package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"campus-auth-service/internal/config"
	"campus-auth-service/internal/models"
	"campus-auth-service/internal/util"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// EncryptedSecret carries the three strings persisted on the credential
// record.
type EncryptedSecret struct {
	Ciphertext   string
	EncryptedDEK string
	KeyID        string
}

type Manager struct {
	kmsClient *kms.Client
	config    *config.Config

	// localMaster wraps DEKs when KMS is disabled (dev / single box).
	localMaster []byte
	keyCache    sync.Map // encrypted DEK -> plaintext DEK
}

func NewManager(cfg *config.Config, kmsClient *kms.Client) *Manager {
	m := &Manager{
		kmsClient: kmsClient,
		config:    cfg,
	}

	if !cfg.KMS.Enabled {
		m.localMaster = make([]byte, 32)
		if _, err := rand.Read(m.localMaster); err != nil {
			util.Fatal("Failed to generate local master key", zap.Error(err))
		}
		util.Warn("KMS disabled - TOTP secrets wrapped with an ephemeral local key")
	}

	return m
}

// EncryptTOTPSecret seals a plaintext TOTP secret for storage.
func (m *Manager) EncryptTOTPSecret(ctx context.Context, secret string) (*EncryptedSecret, error) {
	dekPlain, dekWrapped, keyID, err := m.generateDataKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	ciphertext, err := sealGCM(dekPlain, []byte(secret))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	return &EncryptedSecret{
		Ciphertext:   base64.StdEncoding.EncodeToString(ciphertext),
		EncryptedDEK: base64.StdEncoding.EncodeToString(dekWrapped),
		KeyID:        keyID,
	}, nil
}

// DecryptTOTPSecret recovers the plaintext secret from a credential
// record. Satisfies the login core's SecretDecrypter.
func (m *Manager) DecryptTOTPSecret(ctx context.Context, cred *models.Credential) (string, error) {
	if cred.TOTPSecretEncrypted == "" {
		return "", fmt.Errorf("%w: credential has no totp secret", ErrDecryptionFailed)
	}

	dek, err := m.unwrapDataKey(ctx, cred.TOTPSecretDEK)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(cred.TOTPSecretEncrypted)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	plaintext, err := openGCM(dek, ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}

// ClearCache drops cached plaintext data keys.
func (m *Manager) ClearCache() {
	m.keyCache.Range(func(k, _ interface{}) bool {
		m.keyCache.Delete(k)
		return true
	})
}

func (m *Manager) generateDataKey(ctx context.Context) (plain, wrapped []byte, keyID string, err error) {
	if !m.config.KMS.Enabled {
		plain = make([]byte, 32)
		if _, err = rand.Read(plain); err != nil {
			return nil, nil, "", err
		}
		wrapped, err = sealGCM(m.localMaster, plain)
		if err != nil {
			return nil, nil, "", err
		}
		return plain, wrapped, "local-" + uuid.New().String(), nil
	}

	out, err := m.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(m.config.KMS.KeyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, nil, "", fmt.Errorf("kms generate data key: %w", err)
	}

	return out.Plaintext, out.CiphertextBlob, m.config.KMS.KeyID, nil
}

func (m *Manager) unwrapDataKey(ctx context.Context, encodedDEK string) ([]byte, error) {
	if cached, ok := m.keyCache.Load(encodedDEK); ok {
		return cached.([]byte), nil
	}

	wrapped, err := base64.StdEncoding.DecodeString(encodedDEK)
	if err != nil {
		return nil, err
	}

	var plain []byte
	if !m.config.KMS.Enabled {
		plain, err = openGCM(m.localMaster, wrapped)
		if err != nil {
			return nil, err
		}
	} else {
		out, err := m.kmsClient.Decrypt(ctx, &kms.DecryptInput{
			CiphertextBlob: wrapped,
		})
		if err != nil {
			return nil, fmt.Errorf("kms decrypt: %w", err)
		}
		plain = out.Plaintext
	}

	m.keyCache.Store(encodedDEK, plain)
	return plain, nil
}

func sealGCM(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func openGCM(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
