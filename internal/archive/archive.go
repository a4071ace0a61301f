// Package archive writes emails and their attachments into a
// customer's git repository and pushes them to the remote.
package archive

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nananek/mail-check-ai/internal/parser"
)

// Archiver drives the git CLI. One instance serves all customers; each
// customer gets its own clone under reposPath.
type Archiver struct {
	gitPath     string
	reposPath   string
	authorName  string
	authorEmail string
	log         *logrus.Logger
}

// Email is the archiver's view of one message
type Email struct {
	MessageID   string
	Subject     string
	From        string
	Date        time.Time
	RawHeaders  string
	Body        string
	Attachments []parser.ParsedAttachment
}

// New creates an archiver. It verifies that git is available.
func New(reposPath, authorName, authorEmail string, log *logrus.Logger) (*Archiver, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}
	if err := os.MkdirAll(reposPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create repos dir: %w", err)
	}
	return &Archiver{
		gitPath:     gitPath,
		reposPath:   reposPath,
		authorName:  authorName,
		authorEmail: authorEmail,
		log:         log,
	}, nil
}

// Save syncs the customer's repository, writes the email under
// archive/YYYY-MM/<message-id>/ and pushes the commit. Returns the
// commit hash.
func (a *Archiver) Save(ctx context.Context, customerName, repoURL, token string, email Email) (string, error) {
	repoPath, err := a.syncRepository(ctx, customerName, repoURL, token)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(repoPath, "archive", email.Date.Format("2006-01"), sanitizeMessageID(email.MessageID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive dir: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\n", email.From)
	fmt.Fprintf(&sb, "Subject: %s\n", email.Subject)
	fmt.Fprintf(&sb, "Date: %s\n", email.Date.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Message-ID: %s\n", email.MessageID)
	sb.WriteString("\n" + strings.Repeat("=", 80) + "\n\n")
	sb.WriteString(email.Body)

	if err := os.WriteFile(filepath.Join(dir, "email.txt"), []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write email file: %w", err)
	}

	for _, att := range email.Attachments {
		name := filepath.Base(att.Filename)
		if name == "" || name == "." || name == string(filepath.Separator) {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name), att.Data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write attachment %s: %w", name, err)
		}
	}

	rel, err := filepath.Rel(repoPath, dir)
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if err := a.run(ctx, repoPath, "add", rel); err != nil {
		return "", err
	}

	commitMsg := fmt.Sprintf("Add email: %s\n\nFrom: %s\nDate: %s",
		email.Subject, email.From, email.Date.Format(time.RFC3339))
	if err := a.run(ctx, repoPath,
		"-c", "user.name="+a.authorName,
		"-c", "user.email="+a.authorEmail,
		"commit", "-m", commitMsg); err != nil {
		return "", err
	}

	if err := a.run(ctx, repoPath, "push", "origin", "HEAD"); err != nil {
		return "", err
	}

	hash, err := a.output(ctx, repoPath, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	hash = strings.TrimSpace(hash)

	a.log.WithFields(logrus.Fields{
		"customer":   customerName,
		"message_id": email.MessageID,
		"commit":     hash,
	}).Info("Email archived")
	return hash, nil
}

// syncRepository clones the customer repo on first use, pulls after
// that. A failed pull falls back to a fresh clone.
func (a *Archiver) syncRepository(ctx context.Context, customerName, repoURL, token string) (string, error) {
	repoPath := filepath.Join(a.reposPath, strings.ReplaceAll(customerName, " ", "_"))
	authURL, err := authenticatedURL(repoURL, token)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(filepath.Join(repoPath, ".git")); err == nil {
		if err := a.run(ctx, repoPath, "pull", "origin"); err == nil {
			return repoPath, nil
		}
		a.log.WithField("customer", customerName).Warn("Pull failed, re-cloning")
		if err := os.RemoveAll(repoPath); err != nil {
			return "", fmt.Errorf("failed to remove stale clone: %w", err)
		}
	}

	cmd := exec.CommandContext(ctx, a.gitPath, "clone", authURL, repoPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git clone failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return repoPath, nil
}

func (a *Archiver) run(ctx context.Context, repoPath string, args ...string) error {
	full := append([]string{"-C", repoPath}, args...)
	cmd := exec.CommandContext(ctx, a.gitPath, full...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git %s failed: %w: %s", args[len(args)-1], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (a *Archiver) output(ctx context.Context, repoPath string, args ...string) (string, error) {
	full := append([]string{"-C", repoPath}, args...)
	cmd := exec.CommandContext(ctx, a.gitPath, full...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// authenticatedURL embeds the access token into an https remote URL
func authenticatedURL(repoURL, token string) (string, error) {
	if token == "" || !strings.HasPrefix(repoURL, "https://") {
		return repoURL, nil
	}
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("invalid repo url: %w", err)
	}
	u.User = url.User(token)
	return u.String(), nil
}

// sanitizeMessageID turns a Message-ID header into a safe directory
// name
func sanitizeMessageID(messageID string) string {
	s := strings.NewReplacer("<", "", ">", "", "/", "_", "\\", "_", "..", "_").Replace(messageID)
	if s == "" {
		s = "no-message-id"
	}
	return s
}
