package db

import (
	"database/sql"
	"fmt"
	"time"
)

// LedgerEntry marks a Message-ID as fully processed. Its existence means
// the identifier must never be processed again, by either pipeline.
type LedgerEntry struct {
	MessageID   string
	CustomerID  sql.NullInt64
	FromAddress string
	ToAddresses string
	Subject     string
	Direction   string
	ThreadID    sql.NullInt64
	ProcessedAt NullTime
}

// IsProcessed reports whether a Message-ID is already in the ledger
func (db *DB) IsProcessed(messageID string) (bool, error) {
	var exists bool
	err := db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM processed_emails WHERE message_id = ?)",
		messageID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger: %w", err)
	}
	return exists, nil
}

// MarkProcessed inserts a ledger entry with no conversation attached.
// Used for unresolved senders, which are recorded and otherwise ignored.
func (db *DB) MarkProcessed(entry *LedgerEntry) error {
	_, err := db.Exec(`
		INSERT INTO processed_emails
			(message_id, customer_id, from_address, to_addresses, subject, direction, thread_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING
	`, entry.MessageID, entry.CustomerID, entry.FromAddress, entry.ToAddresses,
		entry.Subject, entry.Direction, entry.ThreadID)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

// RecordEmail attaches an email to a thread and writes its ledger entry
// in a single transaction, so the ledger and the conversation state can
// never diverge: a ledger row without its thread email is structurally
// impossible.
//
// The attach is idempotent on Message-ID: when a row with the same
// identifier already exists, the stored row is returned unchanged and
// only the (equally idempotent) ledger insert is replayed. The thread's
// last-activity timestamp is bumped on every new attach.
func (db *DB) RecordEmail(threadID int64, email *ThreadEmail) (*ThreadEmail, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := getThreadEmailByMessageIDTx(tx, email.MessageID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stored := existing

	if existing == nil {
		email.ThreadID = threadID
		email.BodyPreview = TruncatePreview(email.BodyPreview)
		email.ProcessedAt = NullTime{Time: now, Valid: true}

		result, err := tx.Exec(`
			INSERT INTO thread_emails (
				thread_id, message_id, in_reply_to, thread_references,
				direction, from_address, to_addresses, cc_addresses,
				subject, body_preview, summary, date, processed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			email.ThreadID, email.MessageID, email.InReplyTo, email.References,
			email.Direction, email.FromAddress, email.ToAddresses, email.CCAddresses,
			email.Subject, email.BodyPreview, email.Summary, email.Date, email.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert thread email: %w", err)
		}
		email.ID, err = result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get thread email id: %w", err)
		}

		if _, err := tx.Exec("UPDATE threads SET updated_at = ? WHERE id = ?", now, threadID); err != nil {
			return nil, fmt.Errorf("failed to touch thread: %w", err)
		}
		stored = email
	}

	_, err = tx.Exec(`
		INSERT INTO processed_emails
			(message_id, customer_id, from_address, to_addresses, subject, direction, thread_id)
		SELECT ?, customer_id, ?, ?, ?, ?, ?
		FROM threads WHERE id = ?
		ON CONFLICT(message_id) DO NOTHING
	`, stored.MessageID, stored.FromAddress, stored.ToAddresses, stored.Subject,
		stored.Direction, stored.ThreadID, stored.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return stored, nil
}

func getThreadEmailByMessageIDTx(tx *sql.Tx, messageID string) (*ThreadEmail, error) {
	if messageID == "" {
		return nil, nil
	}
	e := &ThreadEmail{}
	err := tx.QueryRow(`
		SELECT id, thread_id, message_id, in_reply_to, thread_references,
		       direction, from_address, to_addresses, cc_addresses,
		       subject, body_preview, summary, date, processed_at
		FROM thread_emails
		WHERE message_id = ?
		LIMIT 1
	`, messageID).Scan(
		&e.ID, &e.ThreadID, &e.MessageID, &e.InReplyTo, &e.References,
		&e.Direction, &e.FromAddress, &e.ToAddresses, &e.CCAddresses,
		&e.Subject, &e.BodyPreview, &e.Summary, &e.Date, &e.ProcessedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread email by message_id: %w", err)
	}
	return e, nil
}

// GetLedgerEntry retrieves a ledger entry, nil if absent
func (db *DB) GetLedgerEntry(messageID string) (*LedgerEntry, error) {
	e := &LedgerEntry{}
	var from, to, subject, direction sql.NullString
	err := db.QueryRow(`
		SELECT message_id, customer_id, from_address, to_addresses,
		       subject, direction, thread_id, processed_at
		FROM processed_emails WHERE message_id = ?
	`, messageID).Scan(&e.MessageID, &e.CustomerID, &from, &to,
		&subject, &direction, &e.ThreadID, &e.ProcessedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	e.FromAddress = from.String
	e.ToAddresses = to.String
	e.Subject = subject.String
	e.Direction = direction.String
	return e, nil
}
