// Package client provides a typed HTTP client for the Parley server API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/raphaelgruber/parley-go/internal/models"
)

// Client talks to the Parley server REST API.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// New creates a new API client.
// If endpoint is empty, uses PARLEY_SERVER_URL env var or defaults to
// localhost:8686. The bearer token falls back to PARLEY_TOKEN. Timeout can
// be configured via PARLEY_CLIENT_TIMEOUT (default 5m, agent requests can
// run several inference rounds).
func New(endpoint, token string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("PARLEY_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8686"
	}
	if token == "" {
		token = os.Getenv("PARLEY_TOKEN")
	}

	timeout := 5 * time.Minute
	if t := os.Getenv("PARLEY_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint: endpoint,
		token:    token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// apiError is the server's single structured error body.
type apiError struct {
	Error string `json:"error"`
}

// do executes one API call and decodes the response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(raw))
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Send submits a chat message and returns the assistant reply.
func (c *Client) Send(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	var resp models.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat/send", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Regenerate recomputes an assistant message in place.
func (c *Client) Regenerate(ctx context.Context, req models.RegenerateRequest) (*models.ChatResponse, error) {
	var resp models.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat/regenerate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListModels returns the selectable models and pseudo-tools.
func (c *Client) ListModels(ctx context.Context) ([]models.ModelInfo, error) {
	var resp struct {
		Models []models.ModelInfo `json:"models"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/chat/models", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// ListConversations returns the caller's conversations, most recently
// updated first.
func (c *Client) ListConversations(ctx context.Context) ([]models.ConversationView, error) {
	var resp struct {
		Conversations []models.ConversationView `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// GetConversation returns a single conversation.
func (c *Client) GetConversation(ctx context.Context, id string) (*models.ConversationView, error) {
	var resp models.ConversationView
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListMessages returns the full history of a conversation, oldest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]models.MessageView, error) {
	var resp struct {
		Messages []models.MessageView `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations/"+conversationID+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// ExportConversation returns the conversation and its full history as a
// structured export.
func (c *Client) ExportConversation(ctx context.Context, id string) (*models.ConversationExport, error) {
	var resp models.ConversationExport
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations/"+id+"/export", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExportConversationMarkdown returns the conversation rendered as Markdown.
func (c *Client) ExportConversationMarkdown(ctx context.Context, id string) (*models.MarkdownExport, error) {
	var resp models.MarkdownExport
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations/"+id+"/export?format=markdown", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RenameConversation sets a new title.
func (c *Client) RenameConversation(ctx context.Context, id, title string) (*models.ConversationView, error) {
	var resp models.ConversationView
	body := map[string]string{"title": title}
	if err := c.do(ctx, http.MethodPut, "/api/v1/conversations/"+id, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteConversation removes a conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/conversations/"+id, nil, nil)
}

// DeleteMessage removes a single message.
func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/messages/"+id, nil, nil)
}

// Health reports the server's component status.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}
