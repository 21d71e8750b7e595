// Package summarize – llm.go implements the LLM-backed summarizer using the
// OpenAI-compatible chat completions format, which works with OpenAI,
// Anthropic proxies, GLM (api.z.ai), and any compatible endpoint.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/inquiry"
)

// LLMSummarizer sends the ordered reply list to a chat-completions endpoint
// and returns its prose summary. Any failure is returned to the caller; the
// lifecycle controller substitutes the fallback formatter.
type LLMSummarizer struct {
	baseURL    string
	apiKey     string
	model      string
	language   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLLMSummarizer creates an LLM summarizer from config.
func NewLLMSummarizer(cfg Config, logger *slog.Logger) *LLMSummarizer {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &LLMSummarizer{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		language: cfg.Language,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "summarizer"),
	}
}

// ---------- Wire Types (OpenAI-compatible) ----------

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Summarize implements inquiry.Summarizer.
func (l *LLMSummarizer) Summarize(ctx context.Context, replies []inquiry.Reply) (string, error) {
	if l.apiKey == "" {
		return "", fmt.Errorf("summarizer API key not configured")
	}

	reqBody := chatRequest{
		Model: l.model,
		Messages: []chatMessage{
			{Role: "system", Content: l.systemPrompt()},
			{Role: "user", Content: renderReplies(replies)},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := l.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	l.logger.Debug("sending summarization request",
		"model", l.model,
		"replies", len(replies),
		"endpoint", endpoint,
	)

	start := time.Now()
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("API returned no choices")
	}

	summary := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("API returned empty summary")
	}

	l.logger.Debug("summarization complete",
		"latency", time.Since(start),
		"length", len(summary),
	)

	return summary, nil
}

// systemPrompt builds the instruction for the summarization call.
func (l *LLMSummarizer) systemPrompt() string {
	prompt := "You summarize supplier replies collected for a sales inquiry. " +
		"Group similar answers, note availability and prices, and keep it brief. " +
		"Mention each supplier by name."
	if l.language != "" {
		prompt += " Respond in " + l.language + "."
	}
	return prompt
}

// renderReplies formats the reply list as the user message.
func renderReplies(replies []inquiry.Reply) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Supplier replies (%d):\n", len(replies))
	for i, r := range replies {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, r.SenderName, r.Text)
	}
	return b.String()
}

// truncate shortens s to at most n characters for log/error output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
