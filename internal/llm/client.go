// Package llm is the optional LLM reasoning bridge behind the `ai` config
// section (spec.md §6). When AI.Enabled() is false, the Decision
// Coordinator never constructs a Client and every agent runs purely
// rule-based; when it is true, Client lets an agent escalate its verdict
// to an LLM for a natural-language-reasoned second opinion.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewClient builds a Client, filling in the same defaults the teacher's
// LLM bridge used.
func NewClient(config ClientConfig) *Client {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 800
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &Client{
		endpoint:    config.Endpoint,
		apiKey:      config.APIKey,
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		httpClient:  &http.Client{Timeout: config.Timeout},
	}
}

// Complete sends a chat-completion request.
func (c *Client) Complete(ctx context.Context, messages []ChatMessage) (*ChatResponse, error) {
	request := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send llm request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read llm response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if jsonErr := json.Unmarshal(respBody, &errResp); jsonErr != nil {
			return nil, classifyHTTPError(resp.StatusCode, string(respBody))
		}
		return nil, classifyHTTPError(resp.StatusCode, errResp.Error.Message)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("parse llm response: %w", err)
	}
	return &chatResp, nil
}

// CompleteWithSystem sends a system+user pair and returns the first
// choice's content.
func (c *Client) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.Complete(ctx, []ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in llm response")
	}
	return resp.Choices[0].Message.Content, nil
}

// ParseJSONResponse extracts and unmarshals the first JSON object or
// markdown-fenced JSON block found in content.
func (c *Client) ParseJSONResponse(content string, target any) error {
	candidates := []string{
		extractJSONFromMarkdown(content),
		extractFirstJSONObject(content),
		strings.TrimSpace(content),
	}

	var lastErr error
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), target); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("parse llm json response: %w", lastErr)
}

func extractJSONFromMarkdown(content string) string {
	b := []byte(content)
	patterns := []struct {
		prefix []byte
		offset int
	}{
		{[]byte("```json\n"), 8},
		{[]byte("```json"), 7},
		{[]byte("```\n"), 4},
		{[]byte("```"), 3},
	}
	for _, p := range patterns {
		idx := bytes.Index(b, p.prefix)
		if idx < 0 {
			continue
		}
		start := idx + p.offset
		endIdx := bytes.Index(b[start:], []byte("```"))
		if endIdx < 0 {
			continue
		}
		extracted := string(bytes.TrimSpace(b[start : start+endIdx]))
		if len(extracted) > 0 && (extracted[0] == '{' || extracted[0] == '[') {
			return extracted
		}
	}
	return ""
}

func extractFirstJSONObject(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}

	startIdx := -1
	openChar, closeChar := byte('{'), byte('}')
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case '{':
			startIdx = i
		case '[':
			startIdx, openChar, closeChar = i, '[', ']'
		}
		if startIdx >= 0 {
			break
		}
	}
	if startIdx == -1 {
		return ""
	}

	depth := 0
	for i := startIdx; i < len(content); i++ {
		switch content[i] {
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return content[startIdx : i+1]
			}
		}
	}
	return ""
}

// apiError is an LLM endpoint error with retry semantics.
type apiError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *apiError) Error() string {
	return fmt.Sprintf("llm api error (status %d): %s", e.StatusCode, e.Message)
}

func classifyHTTPError(statusCode int, message string) error {
	retryable := statusCode == http.StatusTooManyRequests || (statusCode >= 500 && statusCode < 600)
	return &apiError{StatusCode: statusCode, Message: message, Retryable: retryable}
}
