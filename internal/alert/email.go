// Package alert sends outbound email notifications for significant
// events. Without email configuration every send is a no-op.
package alert

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

const subjectPrefix = "[rangekeeper] "

// Notifier delivers subject/body notifications best-effort.
type Notifier interface {
	Send(subject, body string)
}

// Config holds the SMTP settings from the EMAIL_* environment.
type Config struct {
	Service  string
	User     string
	Password string
	To       string
}

// Enabled reports whether sending is configured.
func (c Config) Enabled() bool {
	return c.User != "" && c.Password != "" && c.To != ""
}

var serviceHosts = map[string]string{
	"gmail":   "smtp.gmail.com:587",
	"outlook": "smtp-mail.outlook.com:587",
	"yahoo":   "smtp.mail.yahoo.com:587",
}

// New returns an email notifier, or a no-op notifier when the config is
// incomplete.
func New(cfg Config, logger *zap.Logger) Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled() {
		logger.Info("email alerts disabled")
		return noopNotifier{}
	}

	host, ok := serviceHosts[strings.ToLower(cfg.Service)]
	if !ok {
		host = cfg.Service // allow a raw host:port
	}
	if host == "" {
		logger.Warn("unknown email service, alerts disabled", zap.String("service", cfg.Service))
		return noopNotifier{}
	}

	return &emailNotifier{cfg: cfg, host: host, logger: logger}
}

type emailNotifier struct {
	cfg    Config
	host   string
	logger *zap.Logger
}

// Send delivers the message. Failures are logged, never surfaced; an
// alert must not be able to abort the strategy.
func (n *emailNotifier) Send(subject, body string) {
	hostname := n.host
	if idx := strings.Index(hostname, ":"); idx >= 0 {
		hostname = hostname[:idx]
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s%s\r\n\r\n%s\r\n",
		n.cfg.User, n.cfg.To, subjectPrefix, subject, body)

	auth := smtp.PlainAuth("", n.cfg.User, n.cfg.Password, hostname)
	if err := smtp.SendMail(n.host, auth, n.cfg.User, []string{n.cfg.To}, []byte(msg)); err != nil {
		n.logger.Warn("alert email failed",
			zap.String("subject", subject),
			zap.Error(err),
		)
		return
	}
	n.logger.Debug("alert email sent", zap.String("subject", subject))
}

type noopNotifier struct{}

func (noopNotifier) Send(string, string) {}
