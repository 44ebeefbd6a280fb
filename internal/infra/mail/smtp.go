package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/labstack/gommon/log"
)

const magicLinkSubject = "Sign in to SiteSafe"

// SMTPMailer sends sign-in links through a plain SMTP relay.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m *SMTPMailer) SendMagicLink(ctx context.Context, to, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := buildMessage(m.From, to, magicLinkSubject, magicLinkBody(link))
	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)

	var auth smtp.Auth
	if m.Username != "" && m.Password != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	if m.Port == 465 {
		return m.sendWithTLS(addr, auth, to, msg)
	}
	// SendMail upgrades with STARTTLS when the server offers it
	if err := smtp.SendMail(addr, auth, m.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send magic link: %w", err)
	}
	return nil
}

// sendWithTLS direct TLS (port 465)
func (m *SMTPMailer) sendWithTLS(addr string, auth smtp.Auth, to string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.Host})
	if err != nil {
		return fmt.Errorf("TLS dial failed: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		return fmt.Errorf("SMTP client failed: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth failed: %w", err)
		}
	}
	if err := client.Mail(m.From); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close failed: %w", err)
	}
	return client.Quit()
}

// LogMailer prints the link instead of sending it. Used when SMTP is not configured.
type LogMailer struct {
	Logger *log.Logger
}

func (m *LogMailer) SendMagicLink(_ context.Context, to, link string) error {
	l := m.Logger
	if l == nil {
		l = log.New("mail")
	}
	l.Infof("magic link for %s: %s", to, link)
	return nil
}

func magicLinkBody(link string) string {
	return "Click the link below to sign in to SiteSafe.\r\n\r\n" + link +
		"\r\n\r\nThe link expires in 24 hours and can be used once. " +
		"If you did not request it you can ignore this email.\r\n"
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
