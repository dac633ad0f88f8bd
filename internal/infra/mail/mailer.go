package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/RASA-RCS/userauth-service/internal/core/port"
	"github.com/RASA-RCS/userauth-service/internal/infra/config"
	"github.com/RASA-RCS/userauth-service/internal/infra/logger"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer delivers messages through an authenticated SMTP relay.
type SMTPMailer struct {
	addr string
	from string
	auth smtp.Auth
	send sendFunc
}

// NewSMTPMailer builds a mailer for the configured relay.
func NewSMTPMailer(cfg config.MailSettings) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, fmt.Errorf("mail: host and port are required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("mail: from address is required")
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &SMTPMailer{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from: cfg.From,
		auth: auth,
		send: smtp.SendMail,
	}, nil
}

// Send implements port.Mailer. smtp.SendMail has no context support, so ctx is
// only checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, msg port.MailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("mail: recipient is required")
	}

	body, err := buildMIME(m.from, msg)
	if err != nil {
		return err
	}

	if err := m.send(m.addr, m.auth, m.from, []string{msg.To}, body); err != nil {
		return fmt.Errorf("mail: send to %s: %w", logger.MaskEmail(msg.To), err)
	}
	return nil
}

// LoggingMailer writes messages to the log instead of sending them (mail.driver=log).
type LoggingMailer struct {
	logger *zap.Logger
}

// NewLoggingMailer constructs a LoggingMailer.
func NewLoggingMailer(log *zap.Logger) *LoggingMailer {
	if log == nil {
		log = logger.L()
	}
	return &LoggingMailer{logger: log}
}

// Send implements port.Mailer.
func (m *LoggingMailer) Send(_ context.Context, msg port.MailMessage) error {
	m.logger.Info("mail suppressed by log driver",
		zap.String("to", logger.MaskEmail(msg.To)),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// New selects the mailer for cfg.Driver.
func New(cfg config.MailSettings, log *zap.Logger) (port.Mailer, error) {
	switch cfg.Driver {
	case "smtp":
		return NewSMTPMailer(cfg)
	case "log", "":
		return NewLoggingMailer(log), nil
	default:
		return nil, fmt.Errorf("mail: unknown driver %q", cfg.Driver)
	}
}

var (
	_ port.Mailer = (*SMTPMailer)(nil)
	_ port.Mailer = (*LoggingMailer)(nil)
)
