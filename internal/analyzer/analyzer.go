// Package analyzer runs incoming and outgoing emails through an
// OpenAI-compatible chat model and returns typed analysis results.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/nananek/mail-check-ai/internal/thread"
)

// RequestTimeout bounds a single model call
const RequestTimeout = 60 * time.Second

// Analysis is the model's verdict on one email. Every field is plain
// text; IssueBody is Markdown.
type Analysis struct {
	Summary    string   `json:"summary"`
	IssueTitle string   `json:"issue_title"`
	IssueBody  string   `json:"issue_body"`
	ReplyDraft string   `json:"reply_draft"`
	Topics     []string `json:"topics,omitempty"`
}

// Validate rejects results the model returned structurally empty. A
// missing summary means the model ignored the instructions entirely.
func (a *Analysis) Validate() error {
	if strings.TrimSpace(a.Summary) == "" {
		return fmt.Errorf("analysis has no summary")
	}
	return nil
}

// Email is the analyzer's view of one message. Salutation, when set,
// is how the reply draft should address the sender.
type Email struct {
	Subject         string
	From            string
	Salutation      string
	Body            string
	AttachmentTexts map[string]string
}

// Client analyzes emails through a chat completion model
type Client struct {
	client *openai.Client
	model  string
	log    *logrus.Logger
}

// NewClient creates an analyzer client. baseURL may be empty for the
// default OpenAI endpoint.
func NewClient(apiKey, baseURL, model string, log *logrus.Logger) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
		log:    log,
	}
}

const incomingSystemPrompt = `あなたは顧客サポートAIアシスタントです。
受信したメールを解析し、以下の情報をJSON形式で返してください。

メールには本文に加えて、PDF、CSV、テキストなどの添付ファイルが含まれることがあります。
添付ファイルの内容も必ず確認し、重要な情報（数値、表、データなど）を要約と返信に含めてください。

返すJSON形式:
{
  "summary": "メール本文と添付ファイルの内容を含む簡潔な要約（2-4文）",
  "issue_title": "このメールに基づくIssueのタイトル（50文字以内、添付ファイルの内容も反映）",
  "issue_body": "Issue本文（Markdown形式、詳細な内容と次のアクション、添付ファイルの重要データも記載）",
  "reply_draft": "顧客への返信案（丁寧で具体的、添付ファイルの内容を確認したことを示す）",
  "topics": ["メールの主題を表す短いキーワードの配列"]
}

重要:
- 添付ファイルに表やデータが含まれる場合、重要な数値や項目を具体的に言及してください
- 添付ファイルが解析できなかった場合は、その旨を返信案に含めてください
- 必ずJSON形式のみを返してください。他の説明は不要です。`

const outgoingSystemPrompt = `あなたは顧客サポートチームの記録係です。
サポート担当者が顧客に送信したメールを、これまでのスレッドの文脈を踏まえて要約してください。

返すJSON形式:
{
  "summary": "送信メールの簡潔な要約（1-3文、対応内容と約束事項を含む）"
}

必ずJSON形式のみを返してください。他の説明は不要です。`

// AnalyzeIncoming analyzes a customer email: summary, issue material
// and a reply draft
func (c *Client) AnalyzeIncoming(ctx context.Context, customerName string, email Email) (*Analysis, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "顧客名: %s\n", customerName)
	fmt.Fprintf(&sb, "送信者: %s\n", email.From)
	fmt.Fprintf(&sb, "件名: %s\n", email.Subject)
	if email.Salutation != "" {
		fmt.Fprintf(&sb, "返信時の宛名: %s\n", email.Salutation)
	}
	fmt.Fprintf(&sb, "\n--- メール本文 ---\n%s", email.Body)

	if len(email.AttachmentTexts) > 0 {
		sb.WriteString("\n\n--- 添付ファイル ---")
		for filename, content := range email.AttachmentTexts {
			fmt.Fprintf(&sb, "\n▼ %s\n%s", filename, content)
		}
	}

	return c.complete(ctx, incomingSystemPrompt, sb.String())
}

// AnalyzeOutgoing summarizes a reply sent by the support team, with the
// thread history as context
func (c *Client) AnalyzeOutgoing(ctx context.Context, customerName string, email Email, history []thread.ContextEntry) (*Analysis, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "顧客名: %s\n", customerName)
	fmt.Fprintf(&sb, "件名: %s\n", email.Subject)

	if len(history) > 0 {
		sb.WriteString("\n--- これまでのスレッド ---\n")
		for _, entry := range history {
			label := "顧客"
			if entry.Direction == "outgoing" {
				label = "サポート"
			}
			line := entry.Summary
			if line == "" {
				line = entry.BodyPreview
			}
			fmt.Fprintf(&sb, "[%s %s] %s\n", entry.Date, label, line)
		}
	}

	fmt.Fprintf(&sb, "\n--- 送信メール本文 ---\n%s", email.Body)

	return c.complete(ctx, outgoingSystemPrompt, sb.String())
}

func (c *Client) complete(ctx context.Context, systemPrompt, userContent string) (*Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
		Temperature:    0.7,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}

	analysis, err := ParseAnalysis(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"model":  c.model,
		"tokens": resp.Usage.TotalTokens,
	}).Debug("Email analyzed")
	return analysis, nil
}

// ParseAnalysis decodes and validates a model response. The shape is
// checked here, at the boundary, so callers only ever see typed values.
func ParseAnalysis(raw string) (*Analysis, error) {
	analysis := &Analysis{}
	if err := json.Unmarshal([]byte(raw), analysis); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}
	if err := analysis.Validate(); err != nil {
		return nil, err
	}
	return analysis, nil
}
