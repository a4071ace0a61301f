package db

import (
	"database/sql"
	"fmt"
)

// MailAccount is one POP3 mailbox polled by the incoming worker
type MailAccount struct {
	ID        int64
	Host      string
	Port      int
	Username  string
	Password  string
	UseSSL    bool
	Enabled   bool
	CreatedAt NullTime
}

// RelayConfig maps a relay login to its upstream SMTP forwarding target
type RelayConfig struct {
	ID            int64
	Name          string
	Host          string
	Port          int
	Username      string
	Password      string
	RelayUsername string
	RelayPassword string
	UseTLS        bool
	UseSSL        bool
	Enabled       bool
	CreatedAt     NullTime
}

// CreateMailAccount inserts a new POP3 account
func (db *DB) CreateMailAccount(a *MailAccount) (int64, error) {
	result, err := db.Exec(`
		INSERT INTO mail_accounts (host, port, username, password, use_ssl, enabled)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.Host, a.Port, a.Username, a.Password, a.UseSSL, a.Enabled)
	if err != nil {
		return 0, fmt.Errorf("failed to insert mail account: %w", err)
	}
	return result.LastInsertId()
}

// ListEnabledMailAccounts retrieves all enabled POP3 accounts
func (db *DB) ListEnabledMailAccounts() ([]*MailAccount, error) {
	rows, err := db.Query(`
		SELECT id, host, port, username, password, use_ssl, enabled, created_at
		FROM mail_accounts WHERE enabled = 1 ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mail accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*MailAccount
	for rows.Next() {
		a := &MailAccount{}
		if err := rows.Scan(&a.ID, &a.Host, &a.Port, &a.Username, &a.Password,
			&a.UseSSL, &a.Enabled, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mail account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mail accounts: %w", err)
	}
	return accounts, nil
}

// CreateRelayConfig inserts a new relay configuration
func (db *DB) CreateRelayConfig(c *RelayConfig) (int64, error) {
	result, err := db.Exec(`
		INSERT INTO smtp_relay_configs
			(name, host, port, username, password, relay_username, relay_password, use_tls, use_ssl, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.Name, c.Host, c.Port, c.Username, c.Password,
		c.RelayUsername, c.RelayPassword, c.UseTLS, c.UseSSL, c.Enabled)
	if err != nil {
		return 0, fmt.Errorf("failed to insert relay config: %w", err)
	}
	return result.LastInsertId()
}

// GetRelayConfigByUser retrieves the enabled relay configuration for a
// relay login. Returns nil when the login is unknown or disabled.
func (db *DB) GetRelayConfigByUser(relayUsername string) (*RelayConfig, error) {
	c := &RelayConfig{}
	err := db.QueryRow(`
		SELECT id, name, host, port, username, password,
		       relay_username, relay_password, use_tls, use_ssl, enabled, created_at
		FROM smtp_relay_configs
		WHERE relay_username = ? AND enabled = 1
	`, relayUsername).Scan(&c.ID, &c.Name, &c.Host, &c.Port, &c.Username, &c.Password,
		&c.RelayUsername, &c.RelayPassword, &c.UseTLS, &c.UseSSL, &c.Enabled, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get relay config: %w", err)
	}
	return c, nil
}
