package thread

import (
	"time"

	"github.com/nananek/mail-check-ai/internal/db"
)

// DefaultContextWindow is how many recent emails feed the AI prompt
const DefaultContextWindow = 10

// ContextEntry is one email of a thread's conversation history, shaped
// for prompt building
type ContextEntry struct {
	Direction   string `json:"direction"`
	From        string `json:"from"`
	To          string `json:"to"`
	Subject     string `json:"subject"`
	Date        string `json:"date"`
	BodyPreview string `json:"body_preview"`
	Summary     string `json:"summary"`
}

// Context returns the max most recent emails of a thread by message
// date, oldest first, so prompts read top to bottom in chronological
// order. Dates are RFC3339; summary is "" for unanalyzed emails.
func Context(database *db.DB, threadID int64, max int) ([]ContextEntry, error) {
	if max <= 0 {
		max = DefaultContextWindow
	}
	emails, err := database.ListThreadEmailsAsc(threadID, max)
	if err != nil {
		return nil, err
	}

	entries := make([]ContextEntry, 0, len(emails))
	for _, e := range emails {
		date := ""
		if e.Date.Valid {
			date = e.Date.Time.UTC().Format(time.RFC3339)
		}
		entries = append(entries, ContextEntry{
			Direction:   e.Direction,
			From:        e.FromAddress,
			To:          e.ToAddresses,
			Subject:     e.Subject,
			Date:        date,
			BodyPreview: e.BodyPreview,
			Summary:     e.Summary,
		})
	}
	return entries, nil
}
