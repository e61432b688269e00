package email

import (
	"context"
	"time"

	"campus-auth-service/internal/util"
)

// Mailer delivers login codes. The SMTP implementation is used in
// production; LogMailer stands in for local development and tests.
type Mailer interface {
	SendLoginCode(ctx context.Context, to, code string, expiresAt time.Time) error
}

// LogMailer logs the code instead of sending it. Development only.
type LogMailer struct{}

func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

func (m *LogMailer) SendLoginCode(ctx context.Context, to, code string, expiresAt time.Time) error {
	util.Info("Login code (mail delivery disabled)",
		util.String("to", to),
		util.String("code", code),
		util.Time("expires_at", expiresAt),
	)
	return nil
}
