package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nananek/mail-check-ai/internal/db"
)

type customerResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	RepoURL        string `json:"repo_url"`
	DiscordWebhook string `json:"discord_webhook,omitempty"`
}

func toCustomerResponse(c *db.Customer) customerResponse {
	// The Gitea token never leaves the service
	return customerResponse{
		ID:             c.ID,
		Name:           c.Name,
		RepoURL:        c.RepoURL,
		DiscordWebhook: c.DiscordWebhook,
	}
}

// ListCustomers returns all customers
func (h *Handlers) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.db.ListCustomers()
	if err != nil {
		h.log.WithError(err).Error("Failed to list customers")
		writeError(w, http.StatusInternalServerError, "failed to list customers")
		return
	}

	out := make([]customerResponse, 0, len(customers))
	for _, c := range customers {
		out = append(out, toCustomerResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateCustomer registers a customer with its archive repository
func (h *Handlers) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string `json:"name"`
		RepoURL        string `json:"repo_url"`
		GiteaToken     string `json:"gitea_token"`
		DiscordWebhook string `json:"discord_webhook"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.RepoURL == "" || req.GiteaToken == "" {
		writeError(w, http.StatusBadRequest, "name, repo_url and gitea_token are required")
		return
	}

	id, err := h.db.CreateCustomer(&db.Customer{
		Name:           req.Name,
		RepoURL:        req.RepoURL,
		GiteaToken:     req.GiteaToken,
		DiscordWebhook: req.DiscordWebhook,
	})
	if err != nil {
		h.log.WithError(err).Error("Failed to create customer")
		writeError(w, http.StatusInternalServerError, "failed to create customer")
		return
	}

	customer, err := h.db.GetCustomerByID(id)
	if err != nil || customer == nil {
		writeError(w, http.StatusInternalServerError, "failed to load customer")
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerResponse(customer))
}

// DeleteCustomer removes a customer and everything that cascades with
// it
func (h *Handlers) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid customer ID")
		return
	}

	if err := h.db.DeleteCustomer(id); err != nil {
		writeError(w, http.StatusNotFound, "customer not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddEmailAddress registers an allow-list entry for a customer
func (h *Handlers) AddEmailAddress(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid customer ID")
		return
	}

	var req struct {
		Email      string `json:"email"`
		Salutation string `json:"salutation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	customer, err := h.db.GetCustomerByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load customer")
		return
	}
	if customer == nil {
		writeError(w, http.StatusNotFound, "customer not found")
		return
	}

	if err := h.db.AddEmailAddress(&db.EmailAddress{
		Email:      req.Email,
		CustomerID: id,
		Salutation: req.Salutation,
	}); err != nil {
		h.log.WithError(err).Error("Failed to add email address")
		writeError(w, http.StatusConflict, "address already registered")
		return
	}
	w.WriteHeader(http.StatusCreated)
}
