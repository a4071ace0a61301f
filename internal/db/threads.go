package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Message directions
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// BodyPreviewLimit bounds the stored body preview, in runes
const BodyPreviewLimit = 500

// Thread is one logical conversation with a customer. Subject always
// holds the normalized form (reply/forward prefixes stripped).
type Thread struct {
	ID         int64
	CustomerID int64
	Subject    string
	CreatedAt  NullTime
	UpdatedAt  NullTime
}

// ThreadEmail is one email attached to a thread. MessageID is unique
// across the whole store, not just within the thread.
type ThreadEmail struct {
	ID          int64
	ThreadID    int64
	MessageID   string
	InReplyTo   string
	References  string // space-separated ancestor Message-IDs, as received
	Direction   string
	FromAddress string
	ToAddresses string
	CCAddresses string
	Subject     string // raw subject, unnormalized
	BodyPreview string
	Summary     string
	Date        NullTime
	ProcessedAt NullTime
}

// ThreadIssue records the Gitea issue opened for a thread
type ThreadIssue struct {
	ID          int64
	ThreadID    int64
	IssueURL    string
	IssueNumber int
	CreatedAt   NullTime
}

// CreateThread inserts a new thread with both timestamps set to now.
// The subject must already be normalized by the caller.
func (db *DB) CreateThread(customerID int64, subject string) (*Thread, error) {
	now := time.Now().UTC()
	result, err := db.Exec(`
		INSERT INTO threads (customer_id, subject, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, customerID, subject, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert thread: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get thread id: %w", err)
	}
	return &Thread{
		ID:         id,
		CustomerID: customerID,
		Subject:    subject,
		CreatedAt:  NullTime{Time: now, Valid: true},
		UpdatedAt:  NullTime{Time: now, Valid: true},
	}, nil
}

// GetThreadByID retrieves a thread by ID
func (db *DB) GetThreadByID(id int64) (*Thread, error) {
	t := &Thread{}
	err := db.QueryRow(`
		SELECT id, customer_id, subject, created_at, updated_at
		FROM threads WHERE id = ?
	`, id).Scan(&t.ID, &t.CustomerID, &t.Subject, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return t, nil
}

// FindThreadBySubject retrieves the most recently active thread for a
// customer with the given normalized subject. Returns nil when none
// match.
func (db *DB) FindThreadBySubject(customerID int64, normalizedSubject string) (*Thread, error) {
	t := &Thread{}
	err := db.QueryRow(`
		SELECT id, customer_id, subject, created_at, updated_at
		FROM threads
		WHERE customer_id = ? AND subject = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`, customerID, normalizedSubject).Scan(&t.ID, &t.CustomerID, &t.Subject, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find thread by subject: %w", err)
	}
	return t, nil
}

// GetThreadEmailByMessageID retrieves a thread email by its Message-ID
// header. Returns nil when the identifier was never ingested.
func (db *DB) GetThreadEmailByMessageID(messageID string) (*ThreadEmail, error) {
	if messageID == "" {
		return nil, nil
	}
	e := &ThreadEmail{}
	err := db.QueryRow(`
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

// TouchThread bumps a thread's last-activity timestamp
func (db *DB) TouchThread(id int64) error {
	_, err := db.Exec("UPDATE threads SET updated_at = ? WHERE id = ?", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch thread: %w", err)
	}
	return nil
}

// ListThreadsByCustomer retrieves a customer's threads, most recently
// active first
func (db *DB) ListThreadsByCustomer(customerID int64) ([]*Thread, error) {
	rows, err := db.Query(`
		SELECT id, customer_id, subject, created_at, updated_at
		FROM threads
		WHERE customer_id = ?
		ORDER BY updated_at DESC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []*Thread
	for rows.Next() {
		t := &Thread{}
		if err := rows.Scan(&t.ID, &t.CustomerID, &t.Subject, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threads: %w", err)
	}
	return threads, nil
}

// ListThreadEmailsAsc returns the max most recent emails of a thread in
// ascending chronological order by message date. The ascending order is
// requested at the query layer: the inner query selects the window, the
// outer one fixes the direction.
func (db *DB) ListThreadEmailsAsc(threadID int64, max int) ([]*ThreadEmail, error) {
	rows, err := db.Query(`
		SELECT id, thread_id, message_id, in_reply_to, thread_references,
		       direction, from_address, to_addresses, cc_addresses,
		       subject, body_preview, summary, date, processed_at
		FROM (
			SELECT * FROM thread_emails
			WHERE thread_id = ?
			ORDER BY date DESC
			LIMIT ?
		)
		ORDER BY date ASC
	`, threadID, max)
	if err != nil {
		return nil, fmt.Errorf("failed to list thread emails: %w", err)
	}
	defer rows.Close()

	var emails []*ThreadEmail
	for rows.Next() {
		e := &ThreadEmail{}
		if err := rows.Scan(
			&e.ID, &e.ThreadID, &e.MessageID, &e.InReplyTo, &e.References,
			&e.Direction, &e.FromAddress, &e.ToAddresses, &e.CCAddresses,
			&e.Subject, &e.BodyPreview, &e.Summary, &e.Date, &e.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan thread email: %w", err)
		}
		emails = append(emails, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thread emails: %w", err)
	}
	return emails, nil
}

// AddThreadIssue records the Gitea issue opened for a thread
func (db *DB) AddThreadIssue(threadID int64, issueURL string, issueNumber int) error {
	_, err := db.Exec(`
		INSERT INTO thread_issues (thread_id, issue_url, issue_number)
		VALUES (?, ?, ?)
	`, threadID, issueURL, issueNumber)
	if err != nil {
		return fmt.Errorf("failed to insert thread issue: %w", err)
	}
	return nil
}

// GetThreadIssue retrieves the issue recorded for a thread, nil if none
func (db *DB) GetThreadIssue(threadID int64) (*ThreadIssue, error) {
	ti := &ThreadIssue{}
	err := db.QueryRow(`
		SELECT id, thread_id, issue_url, issue_number, created_at
		FROM thread_issues WHERE thread_id = ?
		ORDER BY id ASC LIMIT 1
	`, threadID).Scan(&ti.ID, &ti.ThreadID, &ti.IssueURL, &ti.IssueNumber, &ti.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread issue: %w", err)
	}
	return ti, nil
}

// TruncatePreview bounds a body to the stored preview length
func TruncatePreview(body string) string {
	runes := []rune(body)
	if len(runes) <= BodyPreviewLimit {
		return body
	}
	return string(runes[:BodyPreviewLimit])
}
