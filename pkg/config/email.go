package config

import (
	"github.com/tendant/simple-mfa/pkg/notification"
)

const (
	EmailTransportSMTP = "smtp"
	EmailTransportSES  = "ses"
	EmailTransportLog  = "log"
)

// EmailConfig selects and configures the outbound mail transport.
type EmailConfig struct {
	Transport string `env:"EMAIL_TRANSPORT" env-default:"log"`
	Host      string `env:"EMAIL_HOST" env-default:"localhost"`
	Port      uint16 `env:"EMAIL_PORT" env-default:"1025"`
	Username  string `env:"EMAIL_USERNAME"`
	Password  string `env:"EMAIL_PASSWORD"`
	From      string `env:"EMAIL_FROM" env-default:"noreply@example.com"`
	TLS       bool   `env:"EMAIL_TLS" env-default:"false"`
	AWSRegion string `env:"AWS_REGION" env-default:"us-east-1"`
}

// ToSMTPConfig converts the config to a notification.SMTPConfig
func (e EmailConfig) ToSMTPConfig() notification.SMTPConfig {
	return notification.SMTPConfig{
		Host:     e.Host,
		Port:     int(e.Port),
		Username: e.Username,
		Password: e.Password,
		From:     e.From,
		TLS:      e.TLS,
	}
}
