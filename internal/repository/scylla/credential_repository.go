package scylla

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"campus-auth-service/internal/bucketing"
	"campus-auth-service/internal/login"
	"campus-auth-service/internal/models"
	"campus-auth-service/internal/util"
)

// CredentialRepository is the user-store collaborator. The login core
// reads from it; user-management flows write through it.
type CredentialRepository interface {
	login.CredentialStore

	CreateCredential(ctx context.Context, cred *models.Credential) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
	UpdateSecondFactor(ctx context.Context, userID string, mode models.SecondFactorMode, secret *models.Credential) error
	HealthCheck(ctx context.Context) error
}

type credentialRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewCredentialRepository(client *ScyllaClient, buckets *bucketing.Manager) CredentialRepository {
	return &credentialRepository{
		client:  client,
		buckets: buckets,
	}
}

// EmailHash derives the lookup key for an identifier. Callers must pass a
// normalized identifier (util.NormalizeIdentifier).
func EmailHash(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return hex.EncodeToString(sum[:])
}

func (r *credentialRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.Credential, error) {
	var userID string
	var userBucket int

	q := r.client.Prepared.GetUserByEmailHash.Bind(EmailHash(identifier)).WithContext(ctx)
	if err := q.Scan(&userID, &userBucket); err != nil {
		if err == gocql.ErrNotFound {
			return nil, login.ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve identifier: %w", err)
	}

	return r.getByBucketAndID(ctx, userBucket, userID)
}

func (r *credentialRepository) GetByID(ctx context.Context, userID string) (*models.Credential, error) {
	return r.getByBucketAndID(ctx, r.buckets.UserBucket(userID), userID)
}

func (r *credentialRepository) getByBucketAndID(ctx context.Context, bucket int, userID string) (*models.Credential, error) {
	cred := &models.Credential{}

	q := r.client.Prepared.GetCredentialByID.Bind(bucket, userID).WithContext(ctx)
	err := q.Scan(
		&cred.UserBucket, &cred.UserID, &cred.Email, &cred.EmailHash,
		&cred.PasswordHash, &cred.Role, &cred.SecondFactorMode,
		&cred.TOTPSecretEncrypted, &cred.TOTPSecretDEK, &cred.TOTPSecretKeyID,
		&cred.CreatedAt, &cred.UpdatedAt, &cred.LastLogin,
	)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, login.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch credential: %w", err)
	}

	return cred, nil
}

func (r *credentialRepository) CreateCredential(ctx context.Context, cred *models.Credential) error {
	if cred.UserID == "" {
		cred.UserID = uuid.New().String()
	}
	cred.UserBucket = r.buckets.UserBucket(cred.UserID)
	cred.EmailHash = EmailHash(util.NormalizeIdentifier(cred.Email))

	now := time.Now().UTC()
	cred.CreatedAt = now
	cred.UpdatedAt = &now

	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.CreateCredential.Statement(),
		cred.UserBucket, cred.UserID, cred.Email, cred.EmailHash,
		cred.PasswordHash, cred.Role, string(cred.SecondFactorMode),
		cred.TOTPSecretEncrypted, cred.TOTPSecretDEK, cred.TOTPSecretKeyID,
		cred.CreatedAt, cred.UpdatedAt, cred.LastLogin)

	batch.Query(r.client.Prepared.CreateEmailToUser.Statement(),
		cred.EmailHash, cred.UserID, cred.UserBucket)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create credential",
			zap.String("user_id", cred.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create credential: %w", err)
	}

	util.Info("Credential created",
		zap.String("user_id", cred.UserID),
		zap.String("role", cred.Role),
		zap.Int("user_bucket", cred.UserBucket))

	return nil
}

func (r *credentialRepository) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	bucket := r.buckets.UserBucket(userID)

	q := r.client.Prepared.UpdateLastLogin.Bind(at, at, bucket, userID).WithContext(ctx)
	if err := q.Exec(); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// UpdateSecondFactor switches a user's second-factor mode. The secret
// argument supplies the encrypted TOTP fields for the totp mode and is
// ignored otherwise.
func (r *credentialRepository) UpdateSecondFactor(ctx context.Context, userID string, mode models.SecondFactorMode, secret *models.Credential) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid second-factor mode %q", mode)
	}

	var enc, dek, keyID string
	if mode == models.SecondFactorTOTP && secret != nil {
		enc = secret.TOTPSecretEncrypted
		dek = secret.TOTPSecretDEK
		keyID = secret.TOTPSecretKeyID
	}

	bucket := r.buckets.UserBucket(userID)
	now := time.Now().UTC()

	q := r.client.Prepared.UpdateSecondFactor.Bind(
		string(mode), enc, dek, keyID, now, bucket, userID).WithContext(ctx)
	if err := q.Exec(); err != nil {
		return fmt.Errorf("failed to update second factor: %w", err)
	}

	util.Info("Second factor updated",
		zap.String("user_id", userID),
		zap.String("mode", string(mode)))

	return nil
}

func (r *credentialRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}
