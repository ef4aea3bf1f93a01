package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
)

var ErrNotConfigured = errors.New("mail is not configured")

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	FromName string
}

func (c Config) Configured() bool {
	return c.Host != "" && c.User != "" && c.Password != ""
}

type Message struct {
	To      string
	Subject string
	HTML    string
}

//go:generate moq -rm -out mailer_mock.go . Mailer

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type smtpMailer struct {
	cfg Config
}

// New returns a mailer that always fails with ErrNotConfigured unless host and
// credentials are set.
func New(cfg Config) Mailer {
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	if cfg.FromName == "" {
		cfg.FromName = "AquaSmart Research"
	}
	return &smtpMailer{cfg: cfg}
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Configured() {
		return ErrNotConfigured
	}

	body := Compose(m.cfg.FromName, m.cfg.User, msg, time.Now())
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)

	var err error
	if m.cfg.Port == 465 {
		err = m.sendImplicitTLS(ctx, addr, auth, msg.To, body)
	} else {
		err = smtp.SendMail(addr, auth, m.cfg.User, []string{msg.To}, body)
	}

	if err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
	}

	logger := logging.GetFromContext(ctx)
	logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail sent")

	return nil
}

// port 465 expects TLS from the first byte, which smtp.SendMail does not do
func (m *smtpMailer) sendImplicitTLS(ctx context.Context, addr string, auth smtp.Auth, to string, body []byte) error {
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if err = c.Auth(auth); err != nil {
		return err
	}
	if err = c.Mail(m.cfg.User); err != nil {
		return err
	}
	if err = c.Rcpt(to); err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err = w.Write(body); err != nil {
		return err
	}
	if err = w.Close(); err != nil {
		return err
	}

	return c.Quit()
}

func Compose(fromName, fromAddr string, msg Message, now time.Time) []byte {
	b := &bytes.Buffer{}

	header := func(k, v string) { fmt.Fprintf(b, "%s: %s\r\n", k, v) }

	header("From", fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", fromName), fromAddr))
	header("To", msg.To)
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="utf-8"`)
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.HTML, "\n", "\r\n"))

	return b.Bytes()
}
