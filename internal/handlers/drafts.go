package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nananek/mail-check-ai/internal/db"
)

type draftResponse struct {
	ID          int64  `json:"id"`
	CustomerID  int64  `json:"customer_id"`
	MessageID   string `json:"message_id"`
	ReplyDraft  string `json:"reply_draft"`
	Summary     string `json:"summary"`
	IssueTitle  string `json:"issue_title,omitempty"`
	IssueURL    string `json:"issue_url,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

func toDraftResponse(d *db.Draft) draftResponse {
	return draftResponse{
		ID:          d.ID,
		CustomerID:  d.CustomerID,
		MessageID:   d.MessageID,
		ReplyDraft:  d.ReplyDraft,
		Summary:     d.Summary,
		IssueTitle:  d.IssueTitle,
		IssueURL:    d.IssueURL,
		Status:      d.Status,
		CreatedAt:   formatTime(d.CreatedAt),
		CompletedAt: formatTime(d.CompletedAt),
	}
}

// ListDrafts returns a customer's drafts, optionally filtered by
// status
func (h *Handlers) ListDrafts(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid customer ID")
		return
	}

	status := r.URL.Query().Get("status")
	if status == "" {
		status = db.DraftStatusPending
	}
	drafts, err := h.db.ListDraftsByCustomer(customerID, status)
	if err != nil {
		h.log.WithError(err).Error("Failed to list drafts")
		writeError(w, http.StatusInternalServerError, "failed to list drafts")
		return
	}

	out := make([]draftResponse, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, toDraftResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetDraft returns one draft
func (h *Handlers) GetDraft(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid draft ID")
		return
	}

	draft, err := h.db.GetDraftByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load draft")
		return
	}
	if draft == nil {
		writeError(w, http.StatusNotFound, "draft not found")
		return
	}
	writeJSON(w, http.StatusOK, toDraftResponse(draft))
}

// UpdateDraft transitions a draft's status
func (h *Handlers) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid draft ID")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	draft, err := h.db.GetDraftByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load draft")
		return
	}
	if draft == nil {
		writeError(w, http.StatusNotFound, "draft not found")
		return
	}

	if err := h.db.UpdateDraftStatus(id, req.Status); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	draft, err = h.db.GetDraftByID(id)
	if err != nil || draft == nil {
		writeError(w, http.StatusInternalServerError, "failed to reload draft")
		return
	}
	writeJSON(w, http.StatusOK, toDraftResponse(draft))
}
