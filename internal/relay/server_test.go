package relay

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nananek/mail-check-ai/internal/db"
	"github.com/nananek/mail-check-ai/internal/pipeline"
)

type fakeForwarder struct {
	forwards int
	lastFrom string
	lastTo   []string
	lastRaw  []byte
	err      error
}

func (f *fakeForwarder) Forward(cfg *db.RelayConfig, from string, to []string, raw []byte) error {
	if f.err != nil {
		return f.err
	}
	f.forwards++
	f.lastFrom = from
	f.lastTo = to
	f.lastRaw = raw
	return nil
}

func setupRelay(t *testing.T) (*Backend, *db.DB, *fakeForwarder) {
	t.Helper()
	database := db.SetupTestDB(t)
	t.Cleanup(func() { db.CleanupTestDB(t, database) })

	log := logrus.New()
	log.SetOutput(io.Discard)

	_, err := database.CreateRelayConfig(&db.RelayConfig{
		Name:          "main",
		Host:          "smtp.upstream.example",
		Port:          587,
		Username:      "upstream-user",
		Password:      "upstream-pass",
		RelayUsername: "relay-user",
		RelayPassword: "relay-pass",
		UseTLS:        true,
		Enabled:       true,
	})
	require.NoError(t, err)

	fw := &fakeForwarder{}
	backend := &Backend{
		DB:        database,
		Pipeline:  pipeline.New(database, log),
		Forwarder: fw,
		Log:       log,
		Domain:    "relay.example.com",
	}
	return backend, database, fw
}

// authenticate runs the PLAIN exchange against the session
func authenticate(t *testing.T, s *session, username, password string) error {
	t.Helper()
	srv, err := s.Auth("PLAIN")
	require.NoError(t, err)
	_, _, err = srv.Next([]byte("\x00" + username + "\x00" + password))
	return err
}

func newSession(t *testing.T, backend *Backend) *session {
	t.Helper()
	sess, err := backend.NewSession(nil)
	require.NoError(t, err)
	return sess.(*session)
}

const rawMessage = "From: support@example.com\r\n" +
	"To: alice@acme.example\r\n" +
	"Subject: Re: Server outage\r\n" +
	"Message-ID: <out1@example.com>\r\n" +
	"Date: Thu, 07 May 2026 11:00:00 +0000\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Please restart the service.\r\n"

// TestRelayAuth tests credential checking against the store
func TestRelayAuth(t *testing.T) {
	backend, _, _ := setupRelay(t)

	s := newSession(t, backend)
	require.NoError(t, authenticate(t, s, "relay-user", "relay-pass"))
	assert.NotNil(t, s.cfg)
	assert.Equal(t, "smtp.upstream.example", s.cfg.Host)

	s = newSession(t, backend)
	assert.Error(t, authenticate(t, s, "relay-user", "wrong"), "Bad password must fail")

	s = newSession(t, backend)
	assert.Error(t, authenticate(t, s, "nobody", "relay-pass"), "Unknown user must fail")
}

// TestRelayRequiresAuth tests that MAIL/RCPT/DATA are gated
func TestRelayRequiresAuth(t *testing.T) {
	backend, _, _ := setupRelay(t)
	s := newSession(t, backend)

	assert.Equal(t, smtp.ErrAuthRequired, s.Mail("a@b", nil))
	assert.Equal(t, smtp.ErrAuthRequired, s.Rcpt("c@d", nil))
	assert.Equal(t, smtp.ErrAuthRequired, s.Data(strings.NewReader(rawMessage)))
}

// TestRelayDataForwardsAndProcesses tests the full submission path
func TestRelayDataForwardsAndProcesses(t *testing.T) {
	backend, database, fw := setupRelay(t)
	db.CreateTestCustomer(t, database, "acme", "alice@acme.example")

	s := newSession(t, backend)
	require.NoError(t, authenticate(t, s, "relay-user", "relay-pass"))
	require.NoError(t, s.Mail("support@example.com", nil))
	require.NoError(t, s.Rcpt("alice@acme.example", nil))
	require.NoError(t, s.Data(strings.NewReader(rawMessage)))

	assert.Equal(t, 1, fw.forwards)
	assert.Equal(t, "support@example.com", fw.lastFrom)
	assert.Equal(t, []string{"alice@acme.example"}, fw.lastTo)
	assert.Contains(t, string(fw.lastRaw), "Please restart the service.")

	// Local processing threaded and ledgered the message
	stored, err := database.GetThreadEmailByMessageID("<out1@example.com>")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, db.DirectionOutgoing, stored.Direction)

	processed, err := database.IsProcessed("<out1@example.com>")
	require.NoError(t, err)
	assert.True(t, processed)
}

// TestRelayForwardsDespiteLocalFailure tests that a broken local
// pipeline never blocks delivery
func TestRelayForwardsDespiteLocalFailure(t *testing.T) {
	backend, database, fw := setupRelay(t)

	// Close the store so local processing fails hard
	require.NoError(t, database.Close())

	s := newSession(t, backend)
	s.cfg = &db.RelayConfig{RelayUsername: "relay-user", Host: "smtp.upstream.example", Port: 587}
	require.NoError(t, s.Mail("support@example.com", nil))
	require.NoError(t, s.Rcpt("alice@acme.example", nil))

	err := s.Data(strings.NewReader(rawMessage))
	assert.NoError(t, err, "Forwarding must succeed even when local processing fails")
	assert.Equal(t, 1, fw.forwards)
}

// TestRelayForwardFailure tests the 451 temporary error
func TestRelayForwardFailure(t *testing.T) {
	backend, database, fw := setupRelay(t)
	db.CreateTestCustomer(t, database, "acme", "alice@acme.example")
	fw.err = errors.New("connection refused")

	s := newSession(t, backend)
	require.NoError(t, authenticate(t, s, "relay-user", "relay-pass"))
	require.NoError(t, s.Mail("support@example.com", nil))
	require.NoError(t, s.Rcpt("alice@acme.example", nil))

	err := s.Data(strings.NewReader(rawMessage))
	var smtpErr *smtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 451, smtpErr.Code, "Forward failure must be a temporary error")
}

// TestMergeRecipients tests envelope-first deduplication
func TestMergeRecipients(t *testing.T) {
	merged := mergeRecipients(
		[]string{"a@x.example", "b@x.example"},
		[]string{"b@x.example", "c@x.example"},
	)
	assert.Equal(t, []string{"a@x.example", "b@x.example", "c@x.example"}, merged)
}
