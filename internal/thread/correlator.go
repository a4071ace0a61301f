package thread

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nananek/mail-check-ai/internal/db"
)

// Correlator resolves which thread an email belongs to. Resolution runs
// three tiers in strict precedence order:
//
//  1. In-Reply-To: the referenced Message-ID is already attached to a
//     thread.
//  2. References: walk the reference list in order, first known
//     Message-ID wins. Dangling identifiers fall through silently.
//  3. Subject fallback: same customer, same normalized subject, most
//     recently active thread wins. Best-effort; reply headers are
//     sometimes stripped by intermediate mail systems.
//
// When every tier misses, a new thread is created with the normalized
// subject.
type Correlator struct {
	db         *db.DB
	normalizer *Normalizer
}

// NewCorrelator creates a correlator over the given store
func NewCorrelator(database *db.DB, normalizer *Normalizer) *Correlator {
	return &Correlator{db: database, normalizer: normalizer}
}

// FindOrCreate resolves the thread for an email owned by customerID.
// created reports whether a new thread was made.
func (c *Correlator) FindOrCreate(customerID int64, email *db.ThreadEmail) (thread *db.Thread, created bool, err error) {
	if email.InReplyTo != "" {
		parent, err := c.db.GetThreadEmailByMessageID(email.InReplyTo)
		if err != nil {
			return nil, false, fmt.Errorf("failed to resolve in-reply-to: %w", err)
		}
		if parent != nil {
			t, err := c.db.GetThreadByID(parent.ThreadID)
			if err != nil {
				return nil, false, err
			}
			if t != nil {
				return t, false, nil
			}
		}
	}

	for _, ref := range SplitReferences(email.References) {
		parent, err := c.db.GetThreadEmailByMessageID(ref)
		if err != nil {
			return nil, false, fmt.Errorf("failed to resolve reference: %w", err)
		}
		if parent == nil {
			continue
		}
		t, err := c.db.GetThreadByID(parent.ThreadID)
		if err != nil {
			return nil, false, err
		}
		if t != nil {
			return t, false, nil
		}
	}

	normalized := c.normalizer.Normalize(email.Subject)

	// An empty normalized subject matches nothing: unrelated
	// subjectless messages must not merge into one thread
	if normalized != "" {
		t, err := c.db.FindThreadBySubject(customerID, normalized)
		if err != nil {
			return nil, false, fmt.Errorf("failed to resolve by subject: %w", err)
		}
		if t != nil {
			return t, false, nil
		}
	}

	t, err := c.db.CreateThread(customerID, normalized)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create thread: %w", err)
	}
	return t, true, nil
}

// SplitReferences splits a References header value into individual
// Message-IDs, preserving order
func SplitReferences(references string) []string {
	return strings.Fields(references)
}

// SynthesizeMessageID generates a replacement identifier for messages
// that arrive without a Message-ID header. The UUID keeps synthesized
// identifiers from ever colliding with each other or with real ones.
func SynthesizeMessageID(host string) string {
	if host == "" {
		host = "mail-check-ai.local"
	}
	return fmt.Sprintf("<mailcheck-%s@%s>", uuid.New().String(), host)
}
