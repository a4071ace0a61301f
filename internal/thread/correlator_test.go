package thread

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nananek/mail-check-ai/internal/db"
)

func setupCorrelator(t *testing.T) (*db.DB, *Correlator, int64) {
	t.Helper()
	database := db.SetupTestDB(t)
	t.Cleanup(func() { db.CleanupTestDB(t, database) })

	customerID := db.CreateTestCustomer(t, database, "acme", "alice@acme.example")
	return database, NewCorrelator(database, NewNormalizer(nil)), customerID
}

// TestFindOrCreateNewThread tests that an uncorrelated email creates a
// thread with the normalized subject
func TestFindOrCreateNewThread(t *testing.T) {
	_, correlator, customerID := setupCorrelator(t)

	email := db.CreateTestEmail("<new@acme.example>", "Re: Fwd: Server outage", "alice@acme.example")
	thread, created, err := correlator.FindOrCreate(customerID, email)
	require.NoError(t, err)
	assert.True(t, created, "Should create a new thread")
	assert.Equal(t, "Server outage", thread.Subject, "Thread subject should be normalized")
	assert.Equal(t, customerID, thread.CustomerID)
	assert.True(t, thread.CreatedAt.Valid)
	assert.True(t, thread.UpdatedAt.Valid)
}

// TestFindOrCreateInReplyTo tests the first precedence tier
func TestFindOrCreateInReplyTo(t *testing.T) {
	database, correlator, customerID := setupCorrelator(t)

	existing, err := database.CreateThread(customerID, "Server outage")
	require.NoError(t, err)
	_, err = database.RecordEmail(existing.ID, db.CreateTestEmail("<root@acme.example>", "Server outage", "alice@acme.example"))
	require.NoError(t, err)

	reply := db.CreateTestEmail("<reply@acme.example>", "Completely different subject", "alice@acme.example")
	reply.InReplyTo = "<root@acme.example>"

	thread, created, err := correlator.FindOrCreate(customerID, reply)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, thread.ID, "In-Reply-To should pin the thread regardless of subject")
}

// TestFindOrCreateReferences tests the second tier: first known
// reference wins, dangling ones fall through silently
func TestFindOrCreateReferences(t *testing.T) {
	database, correlator, customerID := setupCorrelator(t)

	first, err := database.CreateThread(customerID, "First topic")
	require.NoError(t, err)
	_, err = database.RecordEmail(first.ID, db.CreateTestEmail("<a@acme.example>", "First topic", "alice@acme.example"))
	require.NoError(t, err)

	second, err := database.CreateThread(customerID, "Second topic")
	require.NoError(t, err)
	_, err = database.RecordEmail(second.ID, db.CreateTestEmail("<b@acme.example>", "Second topic", "alice@acme.example"))
	require.NoError(t, err)

	email := db.CreateTestEmail("<c@acme.example>", "Unrelated subject", "alice@acme.example")
	email.InReplyTo = "<gone@acme.example>" // dangling, tier 1 misses
	email.References = "<missing@acme.example> <b@acme.example> <a@acme.example>"

	thread, created, err := correlator.FindOrCreate(customerID, email)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, second.ID, thread.ID, "First known reference should win, in list order")
}

// TestFindOrCreateSubjectFallback tests the third tier: most recently
// active thread with the same normalized subject for the same customer
func TestFindOrCreateSubjectFallback(t *testing.T) {
	database, correlator, customerID := setupCorrelator(t)

	older, err := database.CreateThread(customerID, "Invoice question")
	require.NoError(t, err)
	newer, err := database.CreateThread(customerID, "Invoice question")
	require.NoError(t, err)
	_, err = database.Exec("UPDATE threads SET updated_at = ? WHERE id = ?",
		time.Now().UTC().Add(time.Hour), newer.ID)
	require.NoError(t, err)

	email := db.CreateTestEmail("<fb@acme.example>", "Re: Invoice question", "alice@acme.example")
	thread, created, err := correlator.FindOrCreate(customerID, email)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, newer.ID, thread.ID, "Most recently active subject match should win")
	assert.NotEqual(t, older.ID, thread.ID)
}

// TestFindOrCreateSubjectScopedToCustomer tests that the fallback never
// crosses customer boundaries
func TestFindOrCreateSubjectScopedToCustomer(t *testing.T) {
	database, correlator, customerID := setupCorrelator(t)

	otherID := db.CreateTestCustomer(t, database, "globex", "bob@globex.example")
	foreign, err := database.CreateThread(otherID, "Invoice question")
	require.NoError(t, err)

	email := db.CreateTestEmail("<x@acme.example>", "Invoice question", "alice@acme.example")
	thread, created, err := correlator.FindOrCreate(customerID, email)
	require.NoError(t, err)
	assert.True(t, created, "Another customer's thread must not match")
	assert.NotEqual(t, foreign.ID, thread.ID)
}

// TestFindOrCreatePrecedence tests that tier 1 beats tiers 2 and 3
func TestFindOrCreatePrecedence(t *testing.T) {
	database, correlator, customerID := setupCorrelator(t)

	replyTarget, err := database.CreateThread(customerID, "Target")
	require.NoError(t, err)
	_, err = database.RecordEmail(replyTarget.ID, db.CreateTestEmail("<t1@acme.example>", "Target", "alice@acme.example"))
	require.NoError(t, err)

	refTarget, err := database.CreateThread(customerID, "Other")
	require.NoError(t, err)
	_, err = database.RecordEmail(refTarget.ID, db.CreateTestEmail("<t2@acme.example>", "Other", "alice@acme.example"))
	require.NoError(t, err)

	subjectTarget, err := database.CreateThread(customerID, "Shared subject")
	require.NoError(t, err)

	email := db.CreateTestEmail("<p@acme.example>", "Re: Shared subject", "alice@acme.example")
	email.InReplyTo = "<t1@acme.example>"
	email.References = "<t2@acme.example>"

	thread, created, err := correlator.FindOrCreate(customerID, email)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, replyTarget.ID, thread.ID, "In-Reply-To outranks references and subject")
	assert.NotEqual(t, refTarget.ID, thread.ID)
	assert.NotEqual(t, subjectTarget.ID, thread.ID)
}

// TestSplitReferences tests reference list parsing
func TestSplitReferences(t *testing.T) {
	assert.Empty(t, SplitReferences(""))
	assert.Equal(t, []string{"<a@x>", "<b@y>"}, SplitReferences("  <a@x>   <b@y> "))
}

// TestSynthesizeMessageID tests synthesized identifier shape and
// uniqueness
func TestSynthesizeMessageID(t *testing.T) {
	a := SynthesizeMessageID("relay.example.com")
	b := SynthesizeMessageID("relay.example.com")

	assert.NotEqual(t, a, b, "Synthesized identifiers must not collide")
	assert.Regexp(t, `^<mailcheck-[0-9a-f-]{36}@relay\.example\.com>$`, a)

	c := SynthesizeMessageID("")
	assert.Contains(t, c, "@mail-check-ai.local>")
}

// TestContextWindow tests the chronological context over the store
func TestContextWindow(t *testing.T) {
	database, _, customerID := setupCorrelator(t)

	thread, err := database.CreateThread(customerID, "History")
	require.NoError(t, err)

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		email := db.CreateTestEmailWithDate(
			[]string{"<h0@x>", "<h1@x>", "<h2@x>", "<h3@x>"}[i],
			"History", "alice@acme.example",
			base.Add(time.Duration(i)*time.Hour),
		)
		if i == 3 {
			email.Summary = "latest summary"
		}
		_, err := database.RecordEmail(thread.ID, email)
		require.NoError(t, err)
	}

	entries, err := Context(database, thread.ID, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "2026-05-01T10:00:00Z", entries[0].Date, "Oldest of the window comes first")
	assert.Equal(t, "2026-05-01T12:00:00Z", entries[2].Date)
	assert.Equal(t, "latest summary", entries[2].Summary)
	assert.Equal(t, "", entries[0].Summary, "Unanalyzed emails carry an empty summary")
	assert.Equal(t, db.DirectionIncoming, entries[0].Direction)
}

// TestFindOrCreateEmptySubjectNoFallback tests that the subject
// fallback never matches on an empty normalized subject: subjectless
// messages from one customer stay in separate threads
func TestFindOrCreateEmptySubjectNoFallback(t *testing.T) {
	database, correlator, customerID := setupCorrelator(t)

	first := db.CreateTestEmail("<blank1@acme.example>", "", "alice@acme.example")
	firstThread, created, err := correlator.FindOrCreate(customerID, first)
	require.NoError(t, err)
	require.True(t, created)
	_, err = database.RecordEmail(firstThread.ID, first)
	require.NoError(t, err)

	second := db.CreateTestEmail("<blank2@acme.example>", "", "alice@acme.example")
	secondThread, created, err := correlator.FindOrCreate(customerID, second)
	require.NoError(t, err)
	assert.True(t, created, "Unrelated subjectless email must get its own thread")
	assert.NotEqual(t, firstThread.ID, secondThread.ID)

	// A subject that is nothing but a reply marker normalizes to ""
	// and behaves the same way
	marker := db.CreateTestEmail("<blank3@acme.example>", "Re:", "alice@acme.example")
	markerThread, created, err := correlator.FindOrCreate(customerID, marker)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, firstThread.ID, markerThread.ID)
	assert.NotEqual(t, secondThread.ID, markerThread.ID)

	// Reply headers still correlate subjectless mail
	reply := db.CreateTestEmail("<blank4@acme.example>", "", "alice@acme.example")
	reply.InReplyTo = "<blank1@acme.example>"
	replyThread, created, err := correlator.FindOrCreate(customerID, reply)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, firstThread.ID, replyThread.ID)
}
