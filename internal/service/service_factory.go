package service

import (
	"campus-auth-service/internal/audit"
	"campus-auth-service/internal/email"
	"campus-auth-service/internal/encryption"
	"campus-auth-service/internal/hashing"
	"campus-auth-service/internal/login"
	"campus-auth-service/internal/otp"
	"campus-auth-service/internal/repository/scylla"
	"campus-auth-service/internal/secondfactor"
	"campus-auth-service/internal/session"
	"campus-auth-service/internal/totp"
	"time"
)

// ServiceFactory assembles the login core from its collaborators.
type ServiceFactory struct {
	authService *AuthService
	sessions    *session.Issuer
}

type Deps struct {
	Credentials   scylla.CredentialRepository
	Hasher        *hashing.Hasher
	Encryption    *encryption.Manager
	OTPStore      otp.Store
	Mailer        email.Mailer
	Recorder      *audit.Recorder
	SessionKey    string
	SessionTTL    time.Duration
	EmailCodeTTL  time.Duration
	TOTPIssuer    string
}

func NewServiceFactory(deps Deps) *ServiceFactory {
	verifier := login.NewVerifier(deps.Credentials, deps.Hasher)
	challenges := secondfactor.NewIssuer(deps.OTPStore, deps.Mailer, deps.EmailCodeTTL)
	totpValidator := totp.NewValidator()
	sessions := session.NewIssuer(deps.SessionKey, deps.SessionTTL)

	coordinator := login.NewCoordinator(
		verifier, challenges, totpValidator, deps.OTPStore, sessions, deps.Encryption)

	return &ServiceFactory{
		authService: NewAuthService(
			coordinator, deps.Credentials, deps.Encryption, deps.Recorder, deps.TOTPIssuer),
		sessions: sessions,
	}
}

func (f *ServiceFactory) AuthService() *AuthService {
	return f.authService
}

func (f *ServiceFactory) SessionIssuer() *session.Issuer {
	return f.sessions
}
