package relay

import (
	"bytes"
	"crypto/tls"
	"fmt"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/nananek/mail-check-ai/internal/db"
)

// Forwarder delivers a message to the upstream SMTP server of a relay
// configuration
type Forwarder interface {
	Forward(cfg *db.RelayConfig, from string, to []string, raw []byte) error
}

// SMTPForwarder forwards through the real network
type SMTPForwarder struct{}

// Forward connects per the config's TLS mode, authenticates with the
// upstream credentials and sends the message unchanged
func (SMTPForwarder) Forward(cfg *db.RelayConfig, from string, to []string, raw []byte) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var c *smtp.Client
	var err error
	switch {
	case cfg.UseSSL:
		c, err = smtp.DialTLS(addr, &tls.Config{ServerName: cfg.Host})
	case cfg.UseTLS:
		c, err = smtp.DialStartTLS(addr, &tls.Config{ServerName: cfg.Host})
	default:
		c, err = smtp.Dial(addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect upstream %s: %w", addr, err)
	}
	defer c.Close()

	if cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", cfg.Username, cfg.Password)); err != nil {
			return fmt.Errorf("upstream auth failed: %w", err)
		}
	}

	if err := c.SendMail(from, to, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("upstream send failed: %w", err)
	}
	return c.Quit()
}
