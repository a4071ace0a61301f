package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// TestNotifyNewEmail tests the Discord embed payload shape
func TestNotifyNewEmail(t *testing.T) {
	var received discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(testLogger())
	err := d.NotifyNewEmail(context.Background(), srv.URL, "acme",
		"alice@acme.example", "Server outage", "本番サーバーが停止。")
	require.NoError(t, err)

	require.Len(t, received.Embeds, 1)
	embed := received.Embeds[0]
	assert.Contains(t, embed.Title, "acme")
	assert.Equal(t, embedColor, embed.Color)
	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "alice@acme.example", embed.Fields[0].Value)
	assert.Equal(t, "Server outage", embed.Fields[1].Value)
	assert.Equal(t, "本番サーバーが停止。", embed.Fields[2].Value)
	assert.NotEmpty(t, embed.Timestamp)
}

// TestNotifyNewEmailEmptyFields tests that empty values are padded so
// Discord does not reject the embed
func TestNotifyNewEmailEmptyFields(t *testing.T) {
	var received discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(testLogger())
	require.NoError(t, d.NotifyNewEmail(context.Background(), srv.URL, "acme", "", "", ""))

	for _, f := range received.Embeds[0].Fields {
		assert.NotEmpty(t, f.Value, "Field values must never be empty")
	}
}

// TestNotifyNewEmailServerError tests that a webhook error surfaces
func TestNotifyNewEmailServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDiscord(testLogger())
	err := d.NotifyNewEmail(context.Background(), srv.URL, "acme", "a", "b", "c")
	assert.Error(t, err)
}

// TestCreateIssue tests the Gitea issue API call
func TestCreateIssue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/repos/support/acme/issues", r.URL.Path)
		assert.Equal(t, "token tok123", r.Header.Get("Authorization"))

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "サーバー障害の報告", payload["title"])
		assert.Contains(t, payload["body"], "本番サーバー")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"number":   7,
			"html_url": "https://git.example.com/support/acme/issues/7",
		})
	}))
	defer srv.Close()

	g := NewGitea(testLogger())
	issue, err := g.CreateIssue(context.Background(), srv.URL+"/support/acme.git", "tok123",
		"サーバー障害の報告", "## 内容\n本番サーバーが停止。")
	require.NoError(t, err)
	assert.Equal(t, 7, issue.Number)
	assert.Equal(t, "https://git.example.com/support/acme/issues/7", issue.HTMLURL)
}

// TestCommentIssue tests the follow-up comment path
func TestCommentIssue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/repos/support/acme/issues/7/comments", r.URL.Path)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Contains(t, payload["body"], "続報")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	g := NewGitea(testLogger())
	err := g.CommentIssue(context.Background(), srv.URL+"/support/acme.git", "tok123", 7, "続報: 復旧しました。")
	require.NoError(t, err)
}

// TestParseRepoURL tests clone URL splitting
func TestParseRepoURL(t *testing.T) {
	base, owner, repo, err := parseRepoURL("https://git.example.com/support/acme.git")
	require.NoError(t, err)
	assert.Equal(t, "https://git.example.com", base)
	assert.Equal(t, "support", owner)
	assert.Equal(t, "acme", repo)

	_, _, _, err = parseRepoURL("git@git.example.com:support/acme.git")
	assert.Error(t, err, "SSH URLs are not supported by the API client")

	_, _, _, err = parseRepoURL("https://git.example.com/only-owner")
	assert.Error(t, err)
}
