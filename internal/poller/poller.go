// Package poller periodically sweeps the configured POP3 mailboxes and
// feeds retrieved messages into the incoming pipeline.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/knadh/go-pop3"
	"github.com/sirupsen/logrus"

	"github.com/nananek/mail-check-ai/internal/db"
	"github.com/nananek/mail-check-ai/internal/parser"
	"github.com/nananek/mail-check-ai/internal/pipeline"
)

// Poller drives the POP3 sweep loop. Accounts are processed
// sequentially; a failing account is logged and the sweep moves on.
type Poller struct {
	db       *db.DB
	pipeline *pipeline.Pipeline
	interval time.Duration
	log      *logrus.Logger
}

// New creates a poller
func New(database *db.DB, p *pipeline.Pipeline, interval time.Duration, log *logrus.Logger) *Poller {
	return &Poller{
		db:       database,
		pipeline: p,
		interval: interval,
		log:      log,
	}
}

// Run sweeps immediately, then on every tick until ctx is cancelled
func (p *Poller) Run(ctx context.Context) {
	p.log.WithField("interval", p.interval).Info("Mail poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("Mail poller stopped")
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep checks every enabled mail account once
func (p *Poller) Sweep(ctx context.Context) {
	accounts, err := p.db.ListEnabledMailAccounts()
	if err != nil {
		p.log.WithError(err).Error("Failed to list mail accounts")
		return
	}

	for _, account := range accounts {
		if ctx.Err() != nil {
			return
		}
		if err := p.checkAccount(ctx, account); err != nil {
			p.log.WithFields(logrus.Fields{
				"account": account.Username,
				"host":    account.Host,
			}).WithError(err).Error("Failed to check account")
		}
	}
}

// checkAccount retrieves and processes every message in one mailbox.
// Messages are left on the server; the ledger keeps reruns cheap.
func (p *Poller) checkAccount(ctx context.Context, account *db.MailAccount) error {
	client := pop3.New(pop3.Opt{
		Host:       account.Host,
		Port:       account.Port,
		TLSEnabled: account.UseSSL,
	})

	conn, err := client.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Quit()

	if err := conn.Auth(account.Username, account.Password); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	count, _, err := conn.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat mailbox: %w", err)
	}
	if count == 0 {
		return nil
	}

	p.log.WithFields(logrus.Fields{
		"account":  account.Username,
		"messages": count,
	}).Info("Checking mailbox")

	for i := 1; i <= count; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		buf, err := conn.RetrRaw(i)
		if err != nil {
			p.log.WithField("seq", i).WithError(err).Error("Failed to retrieve message")
			continue
		}

		parsed, err := parser.ParseMessage(buf)
		if err != nil {
			p.log.WithField("seq", i).WithError(err).Error("Failed to parse message")
			continue
		}

		if err := p.pipeline.ProcessIncoming(ctx, parsed); err != nil {
			p.log.WithFields(logrus.Fields{
				"seq":        i,
				"message_id": parsed.MessageID,
			}).WithError(err).Error("Failed to process message")
		}
	}
	return nil
}
