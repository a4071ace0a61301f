// Package handlers exposes the JSON management API: customers, drafts,
// threads and search.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/nananek/mail-check-ai/internal/db"
)

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	db  *db.DB
	log *logrus.Logger
}

// New creates a new Handlers instance
func New(database *db.DB, log *logrus.Logger) *Handlers {
	return &Handlers{db: database, log: log}
}

// Router builds the chi router with all API routes
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/", h.Health)

	r.Route("/customers", func(r chi.Router) {
		r.Get("/", h.ListCustomers)
		r.Post("/", h.CreateCustomer)
		r.Delete("/{id}", h.DeleteCustomer)
		r.Post("/{id}/addresses", h.AddEmailAddress)
		r.Get("/{id}/threads", h.ListThreads)
		r.Get("/{id}/drafts", h.ListDrafts)
	})

	r.Route("/drafts", func(r chi.Router) {
		r.Get("/{id}", h.GetDraft)
		r.Patch("/{id}", h.UpdateDraft)
	})

	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.ListAccounts)
		r.Post("/", h.CreateAccount)
	})
	r.Post("/relay-configs", h.CreateRelayConfig)

	r.Get("/threads/{id}/emails", h.ListThreadEmails)
	r.Get("/search", h.Search)

	return r
}

// Health reports service liveness
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
