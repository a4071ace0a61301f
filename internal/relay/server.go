// Package relay runs the local SMTP submission server. Outgoing mail is
// analyzed and threaded like incoming mail, then forwarded to the
// authenticated user's upstream SMTP server. Local processing is
// best-effort; only a forwarding failure is reported to the client.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"

	"github.com/nananek/mail-check-ai/internal/db"
	"github.com/nananek/mail-check-ai/internal/parser"
	"github.com/nananek/mail-check-ai/internal/pipeline"
)

// processTimeout bounds local processing of one submitted message
const processTimeout = 2 * time.Minute

// errForwardFailed asks the client to retry later; the message was not
// delivered upstream
var errForwardFailed = &smtp.SMTPError{
	Code:         451,
	EnhancedCode: smtp.EnhancedCode{4, 4, 1},
	Message:      "Upstream delivery failed, try again later",
}

// Backend authenticates relay users against smtp_relay_configs
type Backend struct {
	DB        *db.DB
	Pipeline  *pipeline.Pipeline
	Forwarder Forwarder
	Log       *logrus.Logger
	Domain    string
}

// NewServer builds the SMTP server around the backend
func NewServer(backend *Backend, addr string) *smtp.Server {
	s := smtp.NewServer(backend)
	s.Addr = addr
	s.Domain = backend.Domain
	s.WriteTimeout = 30 * time.Second
	s.ReadTimeout = 30 * time.Second
	s.MaxMessageBytes = 25 * 1024 * 1024
	s.MaxRecipients = 100
	s.AllowInsecureAuth = true
	return s
}

// NewSession starts a session; commands before AUTH are rejected
func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &session{backend: b}, nil
}

type session struct {
	backend *Backend
	cfg     *db.RelayConfig
	from    string
	to      []string
}

// AuthMechanisms advertises PLAIN only
func (s *session) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

// Auth validates the relay credentials against the store
func (s *session) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		cfg, err := s.backend.DB.GetRelayConfigByUser(username)
		if err != nil {
			s.backend.Log.WithError(err).Error("Relay auth lookup failed")
			return &smtp.SMTPError{Code: 454, Message: "Temporary authentication failure"}
		}
		if cfg == nil || cfg.RelayPassword != password {
			s.backend.Log.WithField("user", username).Warn("Relay auth rejected")
			return smtp.ErrAuthFailed
		}
		s.cfg = cfg
		return nil
	}), nil
}

func (s *session) Mail(from string, opts *smtp.MailOptions) error {
	if s.cfg == nil {
		return smtp.ErrAuthRequired
	}
	s.from = from
	return nil
}

func (s *session) Rcpt(to string, opts *smtp.RcptOptions) error {
	if s.cfg == nil {
		return smtp.ErrAuthRequired
	}
	s.to = append(s.to, to)
	return nil
}

// Data processes the message locally, then forwards it upstream. The
// forward happens regardless of local processing problems.
func (s *session) Data(r io.Reader) error {
	if s.cfg == nil {
		return smtp.ErrAuthRequired
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}

	log := s.backend.Log.WithFields(logrus.Fields{
		"relay_user": s.cfg.RelayUsername,
		"from":       s.from,
		"rcpt":       len(s.to),
	})
	log.Info("Received outgoing email")

	s.processLocally(raw, log)

	if err := s.backend.Forwarder.Forward(s.cfg, s.from, s.to, raw); err != nil {
		log.WithError(err).Error("Failed to forward upstream")
		return errForwardFailed
	}
	log.Info("Forwarded upstream")
	return nil
}

// processLocally threads and analyzes the submission. Panics and
// errors are contained here so forwarding always gets its turn.
func (s *session) processLocally(raw []byte, log *logrus.Entry) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Local processing panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	parsed, err := parser.ParseMessage(bytes.NewReader(raw))
	if err != nil {
		log.WithError(err).Error("Failed to parse outgoing email")
		return
	}
	// Envelope recipients are authoritative for customer matching;
	// header recipients follow for storage
	parsed.Recipients = mergeRecipients(s.to, parsed.Recipients)

	if err := s.backend.Pipeline.ProcessOutgoing(ctx, parsed); err != nil {
		log.WithError(err).Error("Failed to process outgoing email")
	}
}

// mergeRecipients joins envelope and header recipients, envelope
// first, without duplicates
func mergeRecipients(envelope, header []string) []string {
	seen := make(map[string]bool)
	var merged []string
	for _, list := range [][]string{envelope, header} {
		for _, addr := range list {
			if addr == "" || seen[addr] {
				continue
			}
			seen[addr] = true
			merged = append(merged, addr)
		}
	}
	return merged
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error {
	return nil
}
