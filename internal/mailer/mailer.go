package mailer

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/ammar1510/rideshare/internal/logger"
)

var log = logger.New("mailer")

type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// LogMailer writes e-mails to the log instead of sending them
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, e Email) error {
	log.Info("Mail to %s: %s", e.To, e.Subject)
	log.Debug("Mail body for %s:\n%s", e.To, e.HTML)
	return nil
}

type SMTPConfig struct {
	Addr     string // host:port
	Username string
	Password string
	From     string
}

// SMTPMailer sends HTML mail with PLAIN authentication
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	host := m.cfg.Addr
	if h, _, err := net.SplitHostPort(m.cfg.Addr); err == nil {
		host = h
	}
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, host)
	}
	if err := m.send(m.cfg.Addr, auth, m.cfg.From, []string{e.To}, message(m.cfg.From, e)); err != nil {
		return fmt.Errorf("send mail to %s: %w", e.To, err)
	}
	log.Info("Mail sent to %s: %s", e.To, e.Subject)
	return nil
}

func message(from string, e Email) []byte {
	return []byte(strings.Join([]string{
		"From: " + from,
		"To: " + e.To,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"Subject: " + e.Subject,
		"",
		e.HTML,
	}, "\r\n"))
}
