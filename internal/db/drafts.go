package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Draft statuses
const (
	DraftStatusPending  = "pending"
	DraftStatusSent     = "sent"
	DraftStatusArchived = "archived"
)

// Draft is an AI-generated reply awaiting human review
type Draft struct {
	ID          int64
	CustomerID  int64
	MessageID   string
	ReplyDraft  string
	Summary     string
	IssueTitle  string
	IssueURL    string
	Status      string
	CreatedAt   NullTime
	CompletedAt NullTime
}

// CreateDraft inserts a new pending draft
func (db *DB) CreateDraft(d *Draft) (int64, error) {
	result, err := db.Exec(`
		INSERT INTO drafts (customer_id, message_id, reply_draft, summary, issue_title, issue_url, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.CustomerID, d.MessageID, d.ReplyDraft, d.Summary,
		nullIfEmpty(d.IssueTitle), nullIfEmpty(d.IssueURL), DraftStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to insert draft: %w", err)
	}
	return result.LastInsertId()
}

// GetDraftByID retrieves a draft by ID
func (db *DB) GetDraftByID(id int64) (*Draft, error) {
	d := &Draft{}
	var issueTitle, issueURL sql.NullString
	err := db.QueryRow(`
		SELECT id, customer_id, message_id, reply_draft, summary,
		       issue_title, issue_url, status, created_at, completed_at
		FROM drafts WHERE id = ?
	`, id).Scan(&d.ID, &d.CustomerID, &d.MessageID, &d.ReplyDraft, &d.Summary,
		&issueTitle, &issueURL, &d.Status, &d.CreatedAt, &d.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	d.IssueTitle = issueTitle.String
	d.IssueURL = issueURL.String
	return d, nil
}

// ListDraftsByCustomer retrieves a customer's drafts with the given
// status, newest first
func (db *DB) ListDraftsByCustomer(customerID int64, status string) ([]*Draft, error) {
	rows, err := db.Query(`
		SELECT id, customer_id, message_id, reply_draft, summary,
		       issue_title, issue_url, status, created_at, completed_at
		FROM drafts
		WHERE customer_id = ? AND status = ?
		ORDER BY created_at DESC
	`, customerID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var drafts []*Draft
	for rows.Next() {
		d := &Draft{}
		var issueTitle, issueURL sql.NullString
		if err := rows.Scan(&d.ID, &d.CustomerID, &d.MessageID, &d.ReplyDraft, &d.Summary,
			&issueTitle, &issueURL, &d.Status, &d.CreatedAt, &d.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		d.IssueTitle = issueTitle.String
		d.IssueURL = issueURL.String
		drafts = append(drafts, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drafts: %w", err)
	}
	return drafts, nil
}

// UpdateDraftStatus transitions a draft's status. Moving to sent or
// archived stamps completed_at.
func (db *DB) UpdateDraftStatus(id int64, status string) error {
	switch status {
	case DraftStatusPending, DraftStatusSent, DraftStatusArchived:
	default:
		return fmt.Errorf("invalid draft status: %s", status)
	}

	var completedAt interface{}
	if status != DraftStatusPending {
		completedAt = time.Now().UTC()
	}

	result, err := db.Exec(`
		UPDATE drafts SET status = ?, completed_at = ? WHERE id = ?
	`, status, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update draft status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("draft not found")
	}
	return nil
}
