package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nananek/mail-check-ai/internal/db"
)

type threadResponse struct {
	ID        int64  `json:"id"`
	Subject   string `json:"subject"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type threadEmailResponse struct {
	ID          int64  `json:"id"`
	MessageID   string `json:"message_id"`
	Direction   string `json:"direction"`
	FromAddress string `json:"from_address"`
	ToAddresses string `json:"to_addresses"`
	Subject     string `json:"subject"`
	BodyPreview string `json:"body_preview"`
	Summary     string `json:"summary,omitempty"`
	Date        string `json:"date,omitempty"`
}

func formatTime(t db.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.UTC().Format(time.RFC3339)
}

func toThreadEmailResponse(e *db.ThreadEmail) threadEmailResponse {
	return threadEmailResponse{
		ID:          e.ID,
		MessageID:   e.MessageID,
		Direction:   e.Direction,
		FromAddress: e.FromAddress,
		ToAddresses: e.ToAddresses,
		Subject:     e.Subject,
		BodyPreview: e.BodyPreview,
		Summary:     e.Summary,
		Date:        formatTime(e.Date),
	}
}

// ListThreads returns a customer's threads, most recently active first
func (h *Handlers) ListThreads(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid customer ID")
		return
	}

	threads, err := h.db.ListThreadsByCustomer(customerID)
	if err != nil {
		h.log.WithError(err).Error("Failed to list threads")
		writeError(w, http.StatusInternalServerError, "failed to list threads")
		return
	}

	out := make([]threadResponse, 0, len(threads))
	for _, t := range threads {
		out = append(out, threadResponse{
			ID:        t.ID,
			Subject:   t.Subject,
			CreatedAt: formatTime(t.CreatedAt),
			UpdatedAt: formatTime(t.UpdatedAt),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ListThreadEmails returns a thread's emails in chronological order.
// The limit query parameter bounds the window, default 50.
func (h *Handlers) ListThreadEmails(w http.ResponseWriter, r *http.Request) {
	threadID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid thread ID")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	conv, err := h.db.GetThreadByID(threadID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load thread")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}

	emails, err := h.db.ListThreadEmailsAsc(threadID, limit)
	if err != nil {
		h.log.WithError(err).Error("Failed to list thread emails")
		writeError(w, http.StatusInternalServerError, "failed to list thread emails")
		return
	}

	out := make([]threadEmailResponse, 0, len(emails))
	for _, e := range emails {
		out = append(out, toThreadEmailResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// Search runs a full-text query over thread emails
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	results, err := h.db.SearchThreadEmails(query, limit)
	if err != nil {
		h.log.WithError(err).Error("Search failed")
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	type searchResponse struct {
		threadEmailResponse
		ThreadID int64  `json:"thread_id"`
		Snippet  string `json:"snippet"`
	}
	out := make([]searchResponse, 0, len(results))
	for _, res := range results {
		out = append(out, searchResponse{
			threadEmailResponse: toThreadEmailResponse(&res.ThreadEmail),
			ThreadID:            res.ThreadID,
			Snippet:             res.Snippet,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
