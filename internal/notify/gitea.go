package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// Gitea files issues and comments through the Gitea REST API
type Gitea struct {
	client *http.Client
	log    *logrus.Logger
}

// NewGitea creates a Gitea client
func NewGitea(log *logrus.Logger) *Gitea {
	return &Gitea{
		client: &http.Client{Timeout: requestTimeout},
		log:    log,
	}
}

// Issue is the created issue as reported by the API
type Issue struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// CreateIssue opens an issue on the repository behind repoURL
func (g *Gitea) CreateIssue(ctx context.Context, repoURL, token, title, body string) (*Issue, error) {
	base, owner, repo, err := parseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("%s/api/v1/repos/%s/%s/issues", base, owner, repo)
	issue := &Issue{}
	if err := g.post(ctx, apiURL, token, map[string]string{"title": title, "body": body}, issue); err != nil {
		return nil, err
	}

	g.log.WithField("issue", issue.HTMLURL).Info("Created Gitea issue")
	return issue, nil
}

// CommentIssue appends a comment to an existing issue. Follow-up emails
// of a thread comment instead of opening duplicate issues.
func (g *Gitea) CommentIssue(ctx context.Context, repoURL, token string, issueNumber int, body string) error {
	base, owner, repo, err := parseRepoURL(repoURL)
	if err != nil {
		return err
	}

	apiURL := fmt.Sprintf("%s/api/v1/repos/%s/%s/issues/%d/comments", base, owner, repo, issueNumber)
	if err := g.post(ctx, apiURL, token, map[string]string{"body": body}, nil); err != nil {
		return err
	}

	g.log.WithFields(logrus.Fields{"repo": repo, "issue": issueNumber}).Info("Commented on Gitea issue")
	return nil
}

func (g *Gitea) post(ctx context.Context, apiURL, token string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal gitea payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build gitea request: %w", err)
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gitea request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("gitea returned %d for %s", resp.StatusCode, apiURL)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode gitea response: %w", err)
		}
	}
	return nil
}

// parseRepoURL splits a clone URL into API base, owner and repo name.
// Example: https://gitea.example.com/owner/repo.git
func parseRepoURL(repoURL string) (base, owner, repo string, err error) {
	trimmed := strings.TrimSuffix(repoURL, ".git")

	var scheme string
	switch {
	case strings.HasPrefix(trimmed, "https://"):
		scheme = "https://"
	case strings.HasPrefix(trimmed, "http://"):
		scheme = "http://"
	default:
		return "", "", "", fmt.Errorf("unsupported repo url: %s", repoURL)
	}

	parts := strings.Split(strings.TrimPrefix(trimmed, scheme), "/")
	if len(parts) < 3 || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("repo url missing owner/repo: %s", repoURL)
	}
	return scheme + parts[0], parts[1], parts[2], nil
}
