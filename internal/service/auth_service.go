package service

import (
	"context"
	"errors"
	"time"

	"campus-auth-service/internal/audit"
	"campus-auth-service/internal/encryption"
	"campus-auth-service/internal/login"
	"campus-auth-service/internal/models"
	"campus-auth-service/internal/repository/scylla"
	"campus-auth-service/internal/secondfactor"
	"campus-auth-service/internal/totp"
	"campus-auth-service/internal/util"
)

// AuthService fronts the login coordinator for the HTTP layer and handles
// the bookkeeping around it: audit events and last-login updates.
type AuthService struct {
	coordinator *login.Coordinator
	creds       scylla.CredentialRepository
	encryption  *encryption.Manager
	recorder    *audit.Recorder
	totpIssuer  string
}

func NewAuthService(
	coordinator *login.Coordinator,
	creds scylla.CredentialRepository,
	encryptionMgr *encryption.Manager,
	recorder *audit.Recorder,
	totpIssuer string,
) *AuthService {
	return &AuthService{
		coordinator: coordinator,
		creds:       creds,
		encryption:  encryptionMgr,
		recorder:    recorder,
		totpIssuer:  totpIssuer,
	}
}

// Login runs the credential step of the flow.
func (s *AuthService) Login(ctx context.Context, identifier, password, ipAddress string) (*login.Result, error) {
	res, err := s.coordinator.Submit(ctx, identifier, password)
	if err != nil {
		if errors.Is(err, login.ErrInvalidCredentials) {
			// No user id resolved on purpose: the audit row must not
			// reveal whether the identifier exists either.
			s.recorder.Record(ctx, "", models.EventLoginFailed, ipAddress, "credential check failed")
		}
		return nil, err
	}

	if res.SecondFactorRequired {
		s.recorder.Record(ctx, res.PendingUserID, models.EventChallengeIssued, ipAddress,
			string(res.Challenge.Mode))
		return res, nil
	}

	s.finishLogin(ctx, res, ipAddress)
	return res, nil
}

// VerifySecondFactor runs the challenge step of the flow.
func (s *AuthService) VerifySecondFactor(ctx context.Context, pendingUserID, code, ipAddress string) (*login.Result, error) {
	res, err := s.coordinator.SubmitCode(ctx, pendingUserID, code)
	if err != nil {
		if errors.Is(err, login.ErrInvalidOrExpiredCode) {
			s.recorder.Record(ctx, pendingUserID, models.EventCodeRejected, ipAddress, "")
		}
		return nil, err
	}

	s.finishLogin(ctx, res, ipAddress)
	return res, nil
}

// ResendCode re-issues the pending email challenge.
func (s *AuthService) ResendCode(ctx context.Context, pendingUserID, ipAddress string) (*secondfactor.ChallengeDescriptor, error) {
	desc, err := s.coordinator.Resend(ctx, pendingUserID)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, pendingUserID, models.EventChallengeResent, ipAddress, "")
	return desc, nil
}

// CancelLogin abandons the pending attempt.
func (s *AuthService) CancelLogin(ctx context.Context, pendingUserID, ipAddress string) error {
	if err := s.coordinator.Cancel(pendingUserID); err != nil {
		return err
	}

	s.recorder.Record(ctx, pendingUserID, models.EventLoginCanceled, ipAddress, "")
	return nil
}

// ProvisionTOTP generates a fresh TOTP secret for a user, persists the
// encrypted copy through the user store, and returns the plaintext secret
// and otpauth URI exactly once for enrollment.
func (s *AuthService) ProvisionTOTP(ctx context.Context, userID string) (*totp.ProvisionedSecret, error) {
	cred, err := s.creds.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	provisioned, err := totp.GenerateSecret(s.totpIssuer, cred.Email)
	if err != nil {
		return nil, err
	}

	sealed, err := s.encryption.EncryptTOTPSecret(ctx, provisioned.Secret)
	if err != nil {
		return nil, err
	}

	update := &models.Credential{
		TOTPSecretEncrypted: sealed.Ciphertext,
		TOTPSecretDEK:       sealed.EncryptedDEK,
		TOTPSecretKeyID:     sealed.KeyID,
	}
	if err := s.creds.UpdateSecondFactor(ctx, userID, models.SecondFactorTOTP, update); err != nil {
		return nil, err
	}

	util.Info("TOTP secret provisioned", util.String("user_id", userID))
	return provisioned, nil
}

// RecentLoginFailures exposes the audit trail for one user.
func (s *AuthService) RecentLoginFailures(ctx context.Context, userID string, window time.Duration) ([]*models.SecurityEvent, error) {
	return s.recorder.RecentFailures(ctx, userID, time.Now().Add(-window))
}

func (s *AuthService) finishLogin(ctx context.Context, res *login.Result, ipAddress string) {
	s.recorder.Record(ctx, res.User.UserID, models.EventLoginSucceeded, ipAddress, "")

	if err := s.creds.UpdateLastLogin(ctx, res.User.UserID, time.Now().UTC()); err != nil {
		util.Warn("Failed to update last login",
			util.String("user_id", res.User.UserID),
			util.ErrorField(err))
	}
}
