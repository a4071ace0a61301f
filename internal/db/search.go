package db

import (
	"fmt"
	"strings"
)

// EmailSearchResult is a thread email with a highlighted FTS snippet
type EmailSearchResult struct {
	ThreadEmail
	Snippet string
}

// SearchThreadEmails performs a full-text search over thread emails
// using FTS5. An empty query returns the most recent emails instead.
func (db *DB) SearchThreadEmails(query string, limit int) ([]*EmailSearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	if query == "" {
		return db.recentThreadEmails(limit)
	}

	// Add wildcards to each term for prefix matching:
	// "invoice may" -> "invoice* may*"
	terms := strings.Fields(query)
	fuzzyTerms := make([]string, len(terms))
	for i, term := range terms {
		term = strings.ReplaceAll(term, `"`, `""`)
		fuzzyTerms[i] = `"` + term + `"*`
	}
	fuzzyQuery := strings.Join(fuzzyTerms, " ")

	rows, err := db.Query(`
		SELECT
			e.id, e.thread_id, e.message_id, e.in_reply_to, e.thread_references,
			e.direction, e.from_address, e.to_addresses, e.cc_addresses,
			e.subject, e.body_preview, e.summary, e.date, e.processed_at,
			snippet(thread_emails_fts, 3, '<mark>', '</mark>', '...', 32) AS snippet
		FROM thread_emails e
		JOIN thread_emails_fts ON e.id = thread_emails_fts.rowid
		WHERE thread_emails_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, fuzzyQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search thread emails: %w", err)
	}
	defer rows.Close()

	var results []*EmailSearchResult
	for rows.Next() {
		result := &EmailSearchResult{}
		err := rows.Scan(
			&result.ID, &result.ThreadID, &result.MessageID, &result.InReplyTo, &result.References,
			&result.Direction, &result.FromAddress, &result.ToAddresses, &result.CCAddresses,
			&result.Subject, &result.BodyPreview, &result.Summary, &result.Date, &result.ProcessedAt,
			&result.Snippet,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, result)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}
	return results, nil
}

func (db *DB) recentThreadEmails(limit int) ([]*EmailSearchResult, error) {
	rows, err := db.Query(`
		SELECT
			id, thread_id, message_id, in_reply_to, thread_references,
			direction, from_address, to_addresses, cc_addresses,
			subject, body_preview, summary, date, processed_at
		FROM thread_emails
		ORDER BY date DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent thread emails: %w", err)
	}
	defer rows.Close()

	var results []*EmailSearchResult
	for rows.Next() {
		result := &EmailSearchResult{}
		err := rows.Scan(
			&result.ID, &result.ThreadID, &result.MessageID, &result.InReplyTo, &result.References,
			&result.Direction, &result.FromAddress, &result.ToAddresses, &result.CCAddresses,
			&result.Subject, &result.BodyPreview, &result.Summary, &result.Date, &result.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread email: %w", err)
		}
		result.Snippet = TruncatePreview(result.BodyPreview)
		results = append(results, result)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thread emails: %w", err)
	}
	return results, nil
}
