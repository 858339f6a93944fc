// Package trace sends structured observability events to a
// Langfuse-compatible ingestion endpoint. Delivery is fire-and-forget:
// events are posted off the request path and failures are logged locally,
// never propagated to the caller.
package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/parley-go/internal/chat"
	"github.com/raphaelgruber/parley-go/internal/models"
)

const ingestTimeout = 5 * time.Second

// Client implements chat.Tracer against the Langfuse ingestion API.
type Client struct {
	host       string
	publicKey  string
	secretKey  string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a tracing client. Returns nil when host or keys are absent;
// callers treat a nil client as tracing disabled (see chat.NoopTracer).
func New(host, publicKey, secretKey string, logger *slog.Logger) *Client {
	if host == "" || publicKey == "" || secretKey == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		host:       host,
		publicKey:  publicKey,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: ingestTimeout},
		logger:     logger,
	}
}

// event is one entry of an ingestion batch.
type event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Body      map[string]any `json:"body"`
}

// emit posts a single event asynchronously.
func (c *Client) emit(eventType string, body map[string]any) {
	ev := event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Body:      body,
	}
	go func() {
		payload, err := json.Marshal(map[string]any{"batch": []event{ev}})
		if err != nil {
			c.logger.Warn("trace event marshal failed", "type", eventType, "error", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/public/ingestion", bytes.NewReader(payload))
		if err != nil {
			c.logger.Warn("trace request build failed", "type", eventType, "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth(c.publicKey, c.secretKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("trace ingestion failed", "type", eventType, "error", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			c.logger.Warn("trace ingestion rejected", "type", eventType, "status", resp.Status)
		}
	}()
}

// StartSession registers a session tying a conversation's traces together.
func (c *Client) StartSession(owner, conversationID string) string {
	sessionID := uuid.NewString()
	c.emit("trace-create", map[string]any{
		"id":        uuid.NewString(),
		"sessionId": sessionID,
		"name":      "conversation_session",
		"userId":    owner,
		"metadata":  map[string]any{"conversation_id": conversationID},
	})
	return sessionID
}

// StartTrace opens a trace for one chat request.
func (c *Client) StartTrace(sessionID, input, model string, mode chat.Mode) string {
	traceID := uuid.NewString()
	body := map[string]any{
		"id":       traceID,
		"name":     "chat_request",
		"input":    input,
		"metadata": map[string]any{"model": model, "mode": string(mode)},
	}
	if sessionID != "" {
		body["sessionId"] = sessionID
	}
	c.emit("trace-create", body)
	return traceID
}

// LogGeneration records an LLM generation with token usage.
func (c *Client) LogGeneration(traceID, model string, input []models.ChatMessage, output string, promptTokens, completionTokens int) {
	if traceID == "" {
		return
	}
	c.emit("generation-create", map[string]any{
		"id":      uuid.NewString(),
		"traceId": traceID,
		"name":    "llm_generation",
		"model":   model,
		"input":   input,
		"output":  output,
		"usage": map[string]any{
			"promptTokens":     promptTokens,
			"completionTokens": completionTokens,
		},
	})
}

// LogSearch records a search span with its ranked results.
func (c *Client) LogSearch(traceID, query string, result *chat.SearchResult) {
	if traceID == "" {
		return
	}
	var output any
	if result != nil {
		output = map[string]any{
			"answer":  result.Answer,
			"results": len(result.Snippets),
		}
	}
	c.emit("span-create", map[string]any{
		"id":      uuid.NewString(),
		"traceId": traceID,
		"name":    "internet_search",
		"input":   query,
		"output":  output,
	})
}

// LogAgentStep records one reason-act iteration. Steps are trace events
// only; they are never persisted as messages.
func (c *Client) LogAgentStep(traceID string, iteration int, decision, detail string) {
	if traceID == "" {
		return
	}
	c.emit("event-create", map[string]any{
		"id":      uuid.NewString(),
		"traceId": traceID,
		"name":    "agent_step",
		"input": map[string]any{
			"iteration": iteration,
			"decision":  decision,
			"detail":    detail,
		},
	})
}

// LogError records full failure context for diagnostics.
func (c *Client) LogError(traceID, kind string, err error) {
	if traceID == "" || err == nil {
		return
	}
	c.emit("event-create", map[string]any{
		"id":      uuid.NewString(),
		"traceId": traceID,
		"name":    "error",
		"level":   "ERROR",
		"input":   map[string]any{"kind": kind, "error": err.Error()},
	})
}

// EndTrace finalizes a trace with the response text.
func (c *Client) EndTrace(traceID, output string) {
	if traceID == "" {
		return
	}
	c.emit("trace-create", map[string]any{
		"id":     traceID,
		"output": output,
	})
}
