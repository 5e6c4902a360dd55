package providers

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
)

// AssistantClient implements Assistant over the OpenAI Assistants v2 API.
// One remote thread carries one customer conversation; the run is polled at
// a fixed interval up to a hard attempt cap, and exceeding the cap is a
// strategy failure, not a transport error.
type AssistantClient struct {
	apiKey       string
	apiBase      string
	assistantID  string
	pollInterval time.Duration
	maxAttempts  int
	client       *http.Client
}

// NewAssistantClient creates an assistant-thread client.
func NewAssistantClient(apiKey, apiBase, assistantID string, pollInterval time.Duration, maxAttempts int) *AssistantClient {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	if pollInterval <= 0 {
		pollInterval = 1500 * time.Millisecond
	}
	if maxAttempts <= 0 {
		maxAttempts = 20
	}
	return &AssistantClient{
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		assistantID:  assistantID,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

type threadResponse struct {
	ID string `json:"id"`
}

type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"` // queued, in_progress, completed, failed, ...
}

type messageListResponse struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// EnsureThread returns existing when set, otherwise creates a fresh thread.
func (c *AssistantClient) EnsureThread(ctx context.Context, existing string) (string, error) {
	if existing != "" {
		return existing, nil
	}
	data, err := c.doJSON(ctx, http.MethodPost, "/threads", map[string]interface{}{})
	if err != nil {
		return "", err
	}
	var tr threadResponse
	if err := json.Unmarshal(data, &tr); err != nil || tr.ID == "" {
		return "", fmt.Errorf("assistant: create thread: bad response")
	}
	return tr.ID, nil
}

// Ask submits the message, starts a run, and polls it to completion.
func (c *AssistantClient) Ask(ctx context.Context, threadID, instructions, message string) (string, error) {
	_, err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/messages", map[string]interface{}{
		"role":    "user",
		"content": message,
	})
	if err != nil {
		return "", fmt.Errorf("assistant: add message: %w", err)
	}

	runBody := map[string]interface{}{"assistant_id": c.assistantID}
	if instructions != "" {
		runBody["instructions"] = instructions
	}
	data, err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/runs", runBody)
	if err != nil {
		return "", fmt.Errorf("assistant: start run: %w", err)
	}
	var run runResponse
	if err := json.Unmarshal(data, &run); err != nil || run.ID == "" {
		return "", fmt.Errorf("assistant: start run: bad response")
	}

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}

		data, err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+run.ID, nil)
		if err != nil {
			return "", fmt.Errorf("assistant: poll run: %w", err)
		}
		var status runResponse
		if err := json.Unmarshal(data, &status); err != nil {
			return "", fmt.Errorf("assistant: poll run: decode: %w", err)
		}

		switch status.Status {
		case "completed":
			return c.latestAssistantMessage(ctx, threadID)
		case "failed", "cancelled", "expired", "incomplete":
			return "", fmt.Errorf("assistant: run ended with status %q", status.Status)
		default:
			slog.Debug("assistant: run pending", "thread", threadID, "status", status.Status, "attempt", attempt)
		}
	}

	return "", fmt.Errorf("assistant: run not completed after %d polls", c.maxAttempts)
}

func (c *AssistantClient) latestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	data, err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/messages?limit=1&order=desc", nil)
	if err != nil {
		return "", fmt.Errorf("assistant: list messages: %w", err)
	}
	var list messageListResponse
	if err := json.Unmarshal(data, &list); err != nil {
		return "", fmt.Errorf("assistant: list messages: decode: %w", err)
	}
	for _, msg := range list.Data {
		if msg.Role != "assistant" {
			continue
		}
		var b strings.Builder
		for _, part := range msg.Content {
			if part.Type == "text" {
				b.WriteString(part.Text.Value)
			}
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			return text, nil
		}
	}
	return "", fmt.Errorf("assistant: no assistant message in thread")
}

func (c *AssistantClient) doJSON(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		buf = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	return data, nil
}
