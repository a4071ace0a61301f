package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// Customer owns an archive repository, an allow-list of sender
// addresses, its conversation threads and reply drafts.
type Customer struct {
	ID             int64
	Name           string
	RepoURL        string
	GiteaToken     string
	DiscordWebhook string
	CreatedAt      NullTime
}

// EmailAddress is one allow-list entry. An Email starting with '@' is a
// domain wildcard matching any sender at that domain.
type EmailAddress struct {
	Email      string
	CustomerID int64
	Salutation string
	CreatedAt  NullTime
}

// CreateCustomer inserts a new customer
func (db *DB) CreateCustomer(c *Customer) (int64, error) {
	result, err := db.Exec(`
		INSERT INTO customers (name, repo_url, gitea_token, discord_webhook)
		VALUES (?, ?, ?, ?)
	`, c.Name, c.RepoURL, c.GiteaToken, nullIfEmpty(c.DiscordWebhook))
	if err != nil {
		return 0, fmt.Errorf("failed to insert customer: %w", err)
	}
	return result.LastInsertId()
}

// GetCustomerByID retrieves a customer by ID
func (db *DB) GetCustomerByID(id int64) (*Customer, error) {
	c := &Customer{}
	var webhook sql.NullString
	err := db.QueryRow(`
		SELECT id, name, repo_url, gitea_token, discord_webhook, created_at
		FROM customers WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &c.RepoURL, &c.GiteaToken, &webhook, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	c.DiscordWebhook = webhook.String
	return c, nil
}

// ListCustomers retrieves all customers ordered by name
func (db *DB) ListCustomers() ([]*Customer, error) {
	rows, err := db.Query(`
		SELECT id, name, repo_url, gitea_token, discord_webhook, created_at
		FROM customers ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []*Customer
	for rows.Next() {
		c := &Customer{}
		var webhook sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.RepoURL, &c.GiteaToken, &webhook, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		c.DiscordWebhook = webhook.String
		customers = append(customers, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customers: %w", err)
	}
	return customers, nil
}

// DeleteCustomer deletes a customer; addresses, threads and drafts
// cascade with it
func (db *DB) DeleteCustomer(id int64) error {
	result, err := db.Exec("DELETE FROM customers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("customer not found")
	}
	return nil
}

// AddEmailAddress registers an allow-list entry. The address is stored
// lowercase.
func (db *DB) AddEmailAddress(e *EmailAddress) error {
	_, err := db.Exec(`
		INSERT INTO email_addresses (email, customer_id, salutation)
		VALUES (?, ?, ?)
	`, strings.ToLower(strings.TrimSpace(e.Email)), e.CustomerID, nullIfEmpty(e.Salutation))
	if err != nil {
		return fmt.Errorf("failed to insert email address: %w", err)
	}
	return nil
}

// ResolveSender looks up the allow-list entry for a sender address:
// exact match first, then an '@domain' wildcard. Returns (nil, nil, nil)
// when the sender is not registered.
func (db *DB) ResolveSender(address string) (*Customer, *EmailAddress, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return nil, nil, nil
	}

	entry, err := db.getEmailAddress(address)
	if err != nil {
		return nil, nil, err
	}

	if entry == nil {
		if at := strings.LastIndex(address, "@"); at >= 0 {
			entry, err = db.getEmailAddress(address[at:])
			if err != nil {
				return nil, nil, err
			}
		}
	}

	if entry == nil {
		return nil, nil, nil
	}

	customer, err := db.GetCustomerByID(entry.CustomerID)
	if err != nil {
		return nil, nil, err
	}
	return customer, entry, nil
}

func (db *DB) getEmailAddress(email string) (*EmailAddress, error) {
	e := &EmailAddress{}
	var salutation sql.NullString
	err := db.QueryRow(`
		SELECT email, customer_id, salutation, created_at
		FROM email_addresses WHERE email = ?
	`, email).Scan(&e.Email, &e.CustomerID, &salutation, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email address: %w", err)
	}
	e.Salutation = salutation.String
	return e, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
