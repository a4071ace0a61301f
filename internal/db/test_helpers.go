package db

import (
	"fmt"
	"testing"
	"time"
)

// NewNullTime creates a NullTime from a time.Time
func NewNullTime(t time.Time) NullTime {
	return NullTime{Time: t, Valid: true}
}

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database
func CleanupTestDB(t *testing.T, db *DB) {
	t.Helper()

	if err := db.Close(); err != nil {
		t.Errorf("Failed to close test database: %v", err)
	}
}

// CreateTestCustomer inserts a customer with one registered address and
// returns the customer ID
func CreateTestCustomer(t *testing.T, db *DB, name, email string) int64 {
	t.Helper()

	id, err := db.CreateCustomer(&Customer{
		Name:       name,
		RepoURL:    fmt.Sprintf("https://git.example.com/support/%s.git", name),
		GiteaToken: "test-token",
	})
	if err != nil {
		t.Fatalf("Failed to create test customer: %v", err)
	}
	if email != "" {
		if err := db.AddEmailAddress(&EmailAddress{Email: email, CustomerID: id}); err != nil {
			t.Fatalf("Failed to register test address: %v", err)
		}
	}
	return id
}

// CreateTestEmail creates a thread email with default values
func CreateTestEmail(messageID, subject, from string) *ThreadEmail {
	return &ThreadEmail{
		MessageID:   messageID,
		Direction:   DirectionIncoming,
		FromAddress: from,
		ToAddresses: "support@example.com",
		Subject:     subject,
		BodyPreview: "test body",
		Date:        NewNullTime(time.Now().UTC()),
	}
}

// CreateTestEmailWithDate creates a thread email with a specific date
func CreateTestEmailWithDate(messageID, subject, from string, date time.Time) *ThreadEmail {
	email := CreateTestEmail(messageID, subject, from)
	email.Date = NewNullTime(date)
	return email
}
