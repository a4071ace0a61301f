package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/nananek/mail-check-ai/internal/db"
)

type accountResponse struct {
	ID       int64  `json:"id"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	UseSSL   bool   `json:"use_ssl"`
	Enabled  bool   `json:"enabled"`
}

// ListAccounts returns the enabled POP3 accounts, passwords omitted
func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.db.ListEnabledMailAccounts()
	if err != nil {
		h.log.WithError(err).Error("Failed to list mail accounts")
		writeError(w, http.StatusInternalServerError, "failed to list mail accounts")
		return
	}

	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountResponse{
			ID:       a.ID,
			Host:     a.Host,
			Port:     a.Port,
			Username: a.Username,
			UseSSL:   a.UseSSL,
			Enabled:  a.Enabled,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateAccount registers a POP3 mailbox for the poller
func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Username string `json:"username"`
		Password string `json:"password"`
		UseSSL   bool   `json:"use_ssl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Host == "" || req.Port == 0 || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "host, port, username and password are required")
		return
	}

	id, err := h.db.CreateMailAccount(&db.MailAccount{
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		UseSSL:   req.UseSSL,
		Enabled:  true,
	})
	if err != nil {
		h.log.WithError(err).Error("Failed to create mail account")
		writeError(w, http.StatusInternalServerError, "failed to create mail account")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// CreateRelayConfig registers a relay login and its upstream target
func (h *Handlers) CreateRelayConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string `json:"name"`
		Host          string `json:"host"`
		Port          int    `json:"port"`
		Username      string `json:"username"`
		Password      string `json:"password"`
		RelayUsername string `json:"relay_username"`
		RelayPassword string `json:"relay_password"`
		UseTLS        bool   `json:"use_tls"`
		UseSSL        bool   `json:"use_ssl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Host == "" || req.Port == 0 || req.RelayUsername == "" || req.RelayPassword == "" {
		writeError(w, http.StatusBadRequest, "host, port, relay_username and relay_password are required")
		return
	}

	id, err := h.db.CreateRelayConfig(&db.RelayConfig{
		Name:          req.Name,
		Host:          req.Host,
		Port:          req.Port,
		Username:      req.Username,
		Password:      req.Password,
		RelayUsername: req.RelayUsername,
		RelayPassword: req.RelayPassword,
		UseTLS:        req.UseTLS,
		UseSSL:        req.UseSSL,
		Enabled:       true,
	})
	if err != nil {
		h.log.WithError(err).Error("Failed to create relay config")
		writeError(w, http.StatusInternalServerError, "failed to create relay config")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}
