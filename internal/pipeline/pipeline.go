// Package pipeline runs each email through the full processing chain:
// ledger gate, sender resolution, thread correlation, archival, AI
// analysis, notifications and the final transactional attach.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nananek/mail-check-ai/internal/analyzer"
	"github.com/nananek/mail-check-ai/internal/archive"
	"github.com/nananek/mail-check-ai/internal/attachtext"
	"github.com/nananek/mail-check-ai/internal/db"
	"github.com/nananek/mail-check-ai/internal/notify"
	"github.com/nananek/mail-check-ai/internal/parser"
	"github.com/nananek/mail-check-ai/internal/thread"
)

// Collaborator interfaces. Archive, analysis and notification are all
// best-effort: a failure is logged and processing continues.

// Analyzer runs emails through the AI model
type Analyzer interface {
	AnalyzeIncoming(ctx context.Context, customerName string, email analyzer.Email) (*analyzer.Analysis, error)
	AnalyzeOutgoing(ctx context.Context, customerName string, email analyzer.Email, history []thread.ContextEntry) (*analyzer.Analysis, error)
}

// Archiver saves emails into the customer's git repository
type Archiver interface {
	Save(ctx context.Context, customerName, repoURL, token string, email archive.Email) (string, error)
}

// Notifier posts new-mail notifications
type Notifier interface {
	NotifyNewEmail(ctx context.Context, webhookURL, customerName, from, subject, summary string) error
}

// IssueTracker files and updates tickets
type IssueTracker interface {
	CreateIssue(ctx context.Context, repoURL, token, title, body string) (*notify.Issue, error)
	CommentIssue(ctx context.Context, repoURL, token string, issueNumber int, body string) error
}

// Calendar answers whether now is inside business hours
type Calendar interface {
	IsBusinessHours(ctx context.Context) bool
}

// Pipeline wires the collaborators together. Any of analyzer, archiver,
// discord, gitea or calendar may be nil, disabling that step.
type Pipeline struct {
	DB       *db.DB
	Analyzer Analyzer
	Archiver Archiver
	Discord  Notifier
	Gitea    IssueTracker
	Calendar Calendar
	Log      *logrus.Logger

	// GlobalWebhook is used when a customer has no Discord webhook of
	// its own
	GlobalWebhook string
	// Host names synthesized Message-IDs
	Host string

	correlator *thread.Correlator
}

// SettingSubjectMarkers is the settings key holding a comma-separated
// marker list overriding thread.DefaultMarkers
const SettingSubjectMarkers = "subject_markers"

// New creates a pipeline over the given store. Subject markers may be
// overridden through the subject_markers setting.
func New(database *db.DB, log *logrus.Logger) *Pipeline {
	var markers []string
	if raw, err := database.GetSetting(SettingSubjectMarkers); err != nil {
		log.WithError(err).Warn("Failed to load subject markers, using defaults")
	} else if raw != "" {
		for _, m := range strings.Split(raw, ",") {
			if m = strings.TrimSpace(m); m != "" {
				markers = append(markers, m)
			}
		}
	}
	return &Pipeline{
		DB:         database,
		Log:        log,
		correlator: thread.NewCorrelator(database, thread.NewNormalizer(markers)),
	}
}

// ProcessIncoming handles one email retrieved from a mailbox. Returns
// nil when the message was skipped (duplicate or unknown sender).
func (p *Pipeline) ProcessIncoming(ctx context.Context, parsed *parser.ParsedEmail) error {
	return p.process(ctx, parsed, db.DirectionIncoming)
}

// ProcessOutgoing handles one email submitted through the relay. The
// customer is resolved from the recipients instead of the sender.
func (p *Pipeline) ProcessOutgoing(ctx context.Context, parsed *parser.ParsedEmail) error {
	return p.process(ctx, parsed, db.DirectionOutgoing)
}

func (p *Pipeline) process(ctx context.Context, parsed *parser.ParsedEmail, direction string) error {
	messageID := parsed.MessageID
	if messageID == "" {
		messageID = thread.SynthesizeMessageID(p.Host)
		p.Log.WithField("synthesized", messageID).Warn("Email has no Message-ID")
	}

	log := p.Log.WithFields(logrus.Fields{
		"message_id": messageID,
		"direction":  direction,
	})

	processed, err := p.DB.IsProcessed(messageID)
	if err != nil {
		return fmt.Errorf("ledger check failed: %w", err)
	}
	if processed {
		log.Debug("Already processed, skipping")
		return nil
	}

	customer, entry, err := p.resolveCustomer(parsed, direction)
	if err != nil {
		return fmt.Errorf("customer resolution failed: %w", err)
	}
	if customer == nil {
		log.WithField("from", parsed.Sender).Info("No registered customer, recording and skipping")
		return p.DB.MarkProcessed(&db.LedgerEntry{
			MessageID:   messageID,
			FromAddress: parsed.Sender,
			ToAddresses: strings.Join(parsed.Recipients, ", "),
			Subject:     parsed.Subject,
			Direction:   direction,
		})
	}
	log = log.WithField("customer", customer.Name)

	email := &db.ThreadEmail{
		MessageID:   messageID,
		InReplyTo:   parsed.InReplyTo,
		References:  strings.Join(parsed.References, " "),
		Direction:   direction,
		FromAddress: parsed.Sender,
		ToAddresses: strings.Join(parsed.Recipients, ", "),
		CCAddresses: strings.Join(parsed.CC, ", "),
		Subject:     parsed.Subject,
		BodyPreview: parsed.BodyText,
		Date:        db.NullTime{Time: parsed.Date.UTC(), Valid: true},
	}

	conv, created, err := p.correlator.FindOrCreate(customer.ID, email)
	if err != nil {
		return fmt.Errorf("thread correlation failed: %w", err)
	}
	log = log.WithFields(logrus.Fields{"thread_id": conv.ID, "new_thread": created})

	p.archiveEmail(ctx, log, customer, parsed, messageID)

	attachTexts, extractErrs := attachtext.ExtractAll(parsed.Attachments)
	for _, e := range extractErrs {
		log.WithError(e).Warn("Attachment text extraction failed")
	}

	analysis := p.analyzeEmail(ctx, log, customer, entry, parsed, conv.ID, direction, attachTexts)
	if analysis != nil {
		email.Summary = analysis.Summary
	}

	if direction == db.DirectionIncoming && analysis != nil {
		p.notifyEmail(ctx, log, customer, parsed, analysis)
		issueURL := p.fileIssue(ctx, log, customer, conv.ID, analysis)
		p.queueDraft(log, customer, messageID, analysis, issueURL)
	}

	if _, err := p.DB.RecordEmail(conv.ID, email); err != nil {
		return fmt.Errorf("failed to record email: %w", err)
	}

	log.Info("Email processed")
	return nil
}

// resolveCustomer maps the email to its owning customer: by sender for
// incoming mail, by the first registered recipient for outgoing.
func (p *Pipeline) resolveCustomer(parsed *parser.ParsedEmail, direction string) (*db.Customer, *db.EmailAddress, error) {
	if direction == db.DirectionIncoming {
		return p.DB.ResolveSender(parsed.Sender)
	}
	for _, addr := range parsed.Recipients {
		customer, entry, err := p.DB.ResolveSender(addr)
		if err != nil {
			return nil, nil, err
		}
		if customer != nil {
			return customer, entry, nil
		}
	}
	return nil, nil, nil
}

func (p *Pipeline) archiveEmail(ctx context.Context, log *logrus.Entry, customer *db.Customer, parsed *parser.ParsedEmail, messageID string) {
	if p.Archiver == nil {
		return
	}
	_, err := p.Archiver.Save(ctx, customer.Name, customer.RepoURL, customer.GiteaToken, archive.Email{
		MessageID:   messageID,
		Subject:     parsed.Subject,
		From:        parsed.Sender,
		Date:        parsed.Date,
		RawHeaders:  parsed.RawHeaders,
		Body:        parsed.BodyText,
		Attachments: parsed.Attachments,
	})
	if err != nil {
		log.WithError(err).Error("Failed to archive email")
	}
}

func (p *Pipeline) analyzeEmail(ctx context.Context, log *logrus.Entry, customer *db.Customer, entry *db.EmailAddress, parsed *parser.ParsedEmail, threadID int64, direction string, attachTexts map[string]string) *analyzer.Analysis {
	if p.Analyzer == nil {
		return nil
	}

	email := analyzer.Email{
		Subject:         parsed.Subject,
		From:            parsed.Sender,
		Body:            parsed.BodyText,
		AttachmentTexts: attachTexts,
	}
	if entry != nil {
		email.Salutation = entry.Salutation
	}

	var analysis *analyzer.Analysis
	var err error
	if direction == db.DirectionIncoming {
		analysis, err = p.Analyzer.AnalyzeIncoming(ctx, customer.Name, email)
	} else {
		var history []thread.ContextEntry
		history, err = thread.Context(p.DB, threadID, thread.DefaultContextWindow)
		if err == nil {
			analysis, err = p.Analyzer.AnalyzeOutgoing(ctx, customer.Name, email, history)
		}
	}
	if err != nil {
		log.WithError(err).Error("Failed to analyze email")
		return nil
	}
	return analysis
}

func (p *Pipeline) notifyEmail(ctx context.Context, log *logrus.Entry, customer *db.Customer, parsed *parser.ParsedEmail, analysis *analyzer.Analysis) {
	if p.Discord == nil {
		return
	}
	webhook := customer.DiscordWebhook
	if webhook == "" {
		webhook = p.GlobalWebhook
	}
	if webhook == "" {
		return
	}

	summary := analysis.Summary
	if p.Calendar != nil && !p.Calendar.IsBusinessHours(ctx) {
		summary = "【時間外】" + summary
	}

	if err := p.Discord.NotifyNewEmail(ctx, webhook, customer.Name, parsed.Sender, parsed.Subject, summary); err != nil {
		log.WithError(err).Error("Failed to send Discord notification")
	}
}

// fileIssue opens the thread's issue, or comments on it when one
// already exists
func (p *Pipeline) fileIssue(ctx context.Context, log *logrus.Entry, customer *db.Customer, threadID int64, analysis *analyzer.Analysis) string {
	if p.Gitea == nil {
		return ""
	}

	existing, err := p.DB.GetThreadIssue(threadID)
	if err != nil {
		log.WithError(err).Error("Failed to look up thread issue")
		return ""
	}

	if existing != nil {
		comment := fmt.Sprintf("## 続報 (%s)\n\n%s", time.Now().UTC().Format("2006-01-02"), analysis.IssueBody)
		if err := p.Gitea.CommentIssue(ctx, customer.RepoURL, customer.GiteaToken, existing.IssueNumber, comment); err != nil {
			log.WithError(err).Error("Failed to comment on Gitea issue")
		}
		return existing.IssueURL
	}

	issue, err := p.Gitea.CreateIssue(ctx, customer.RepoURL, customer.GiteaToken, analysis.IssueTitle, analysis.IssueBody)
	if err != nil {
		log.WithError(err).Error("Failed to create Gitea issue")
		return ""
	}
	if err := p.DB.AddThreadIssue(threadID, issue.HTMLURL, issue.Number); err != nil {
		log.WithError(err).Error("Failed to record thread issue")
	}
	return issue.HTMLURL
}

func (p *Pipeline) queueDraft(log *logrus.Entry, customer *db.Customer, messageID string, analysis *analyzer.Analysis, issueURL string) {
	if analysis.ReplyDraft == "" {
		return
	}
	_, err := p.DB.CreateDraft(&db.Draft{
		CustomerID: customer.ID,
		MessageID:  messageID,
		ReplyDraft: analysis.ReplyDraft,
		Summary:    analysis.Summary,
		IssueTitle: analysis.IssueTitle,
		IssueURL:   issueURL,
		Status:     db.DraftStatusPending,
	})
	if err != nil {
		log.WithError(err).Error("Failed to queue reply draft")
	}
}
