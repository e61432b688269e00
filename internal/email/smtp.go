package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"campus-auth-service/internal/config"
	"campus-auth-service/internal/util"
)

// SMTPMailer sends login codes over SMTP. Port 465 uses implicit TLS;
// other ports upgrade with STARTTLS when the server offers it.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

func NewSMTPMailer(cfg *config.Config) *SMTPMailer {
	return &SMTPMailer{cfg: cfg.SMTP}
}

func (m *SMTPMailer) SendLoginCode(ctx context.Context, to, code string, expiresAt time.Time) error {
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())
	subject := "Your sign-in code"
	body := fmt.Sprintf(
		"Your sign-in code is: %s\r\n\r\nIt expires in %d minutes. If you did not try to sign in, you can ignore this message.\r\n",
		code, minutes,
	)
	message := buildMessage(m.cfg.From, to, subject, body)

	done := make(chan error, 1)
	go func() {
		done <- m.send(to, message)
	}()

	select {
	case err := <-done:
		if err != nil {
			util.Error("Failed to send login code", util.String("to", to), util.ErrorField(err))
			return fmt.Errorf("failed to send login code: %w", err)
		}
		util.Debug("Login code sent", util.String("to", to))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *SMTPMailer) send(to, message string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	client, err := m.dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if m.cfg.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
				return err
			}
		}
	}

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(parseAddress(m.cfg.From)); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	writer, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := writer.Write([]byte(message)); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return client.Quit()
}

func (m *SMTPMailer) dial(addr string) (*smtp.Client, error) {
	if m.cfg.Port == 465 {
		conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.cfg.Host})
		if err != nil {
			return nil, err
		}
		return smtp.NewClient(conn, m.cfg.Host)
	}
	return smtp.Dial(addr)
}

func buildMessage(from, to, subject, body string) string {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

// parseAddress extracts the bare address from "Name <addr>" forms.
func parseAddress(from string) string {
	if start := strings.Index(from, "<"); start >= 0 {
		if end := strings.Index(from[start:], ">"); end > 0 {
			return from[start+1 : start+end]
		}
	}
	return strings.TrimSpace(from)
}
