package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/parley-go/internal/models"
)

// Completion is a normalized inference result.
type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Completer is the inference service contract: prompt, history and model
// id in, text and token counts out. Implementations bound every call with
// a timeout and classify failures as ErrUnreachable, ErrTimeout or
// ErrModelNotFound; they never retry.
type Completer interface {
	Complete(ctx context.Context, model string, history []models.ChatMessage, systemPrompt string) (*Completion, error)
	DefaultModel() string
}

// Snippet is one ranked search result.
type Snippet struct {
	Title   string
	URL     string
	Excerpt string
}

// SearchResult is a normalized search service response.
type SearchResult struct {
	Query    string
	Answer   string
	Snippets []Snippet
}

// Searcher is the search service contract. Implementations classify
// failures as ErrNotConfigured, ErrRateLimited or ErrUnreachable.
type Searcher interface {
	Search(ctx context.Context, query string, depth string) (*SearchResult, error)
}

// Render produces the deterministic assistant-message text for a search
// result: optional direct answer, then title/URL/excerpt per result in
// ranked order.
func (r *SearchResult) Render() string {
	if r == nil || len(r.Snippets) == 0 {
		return "No search results found."
	}

	var b strings.Builder
	if r.Answer != "" {
		fmt.Fprintf(&b, "Direct Answer: %s\n\n", r.Answer)
	}
	b.WriteString("Search Results:")
	for i, s := range r.Snippets {
		fmt.Fprintf(&b, "\n\n%d. %s\n   URL: %s\n   Content: %s", i+1, s.Title, s.URL, s.Excerpt)
	}
	return b.String()
}

// NewMessage describes a message to be persisted.
type NewMessage struct {
	Role     string
	Content  string
	ToolUsed string
	TraceID  *string
	Metadata map[string]any
}

// Store is the record store contract: owner-scoped CRUD for conversations
// and messages with cascade delete. The engine is the sole writer of
// persisted records.
type Store interface {
	// CreateConversation persists a conversation for owner with the
	// derived title. Only called together with AppendExchange, so a
	// conversation with zero messages is never left behind.
	CreateConversation(ctx context.Context, owner, title string) (*models.Conversation, error)

	// GetConversation returns the conversation or ErrNotFound if it does
	// not exist or belongs to a different owner.
	GetConversation(ctx context.Context, owner, id string) (*models.Conversation, error)

	ListConversations(ctx context.Context, owner string) ([]models.Conversation, error)
	UpdateConversationTitle(ctx context.Context, owner, id, title string) (*models.Conversation, error)

	// DeleteConversation removes the conversation and all of its messages.
	DeleteConversation(ctx context.Context, owner, id string) error

	// SetTraceSession records the external tracing session id.
	SetTraceSession(ctx context.Context, conversationID, sessionID string) error

	// History returns all messages of a conversation, oldest first.
	History(ctx context.Context, conversationID string) ([]models.Message, error)

	// HistoryBefore returns messages with Seq < beforeSeq, oldest first.
	HistoryBefore(ctx context.Context, conversationID string, beforeSeq int64) ([]models.Message, error)

	// AppendExchange appends the user and assistant messages of one
	// completed request in a single batch, in that order. The pairing is
	// never split by a concurrent request's messages.
	AppendExchange(ctx context.Context, conversationID string, user, assistant NewMessage) (*models.Message, *models.Message, error)

	// GetMessage returns the message, scoped through its conversation's
	// owner; ErrNotFound otherwise.
	GetMessage(ctx context.Context, owner, id string) (*models.Message, error)

	// PrecedingUserMessage returns the closest user-role message with
	// Seq < beforeSeq, or ErrNotFound.
	PrecedingUserMessage(ctx context.Context, conversationID string, beforeSeq int64) (*models.Message, error)

	// UpdateMessage overwrites content/metadata of an existing message in
	// place. Identity and position never change.
	UpdateMessage(ctx context.Context, id, content, toolUsed string, traceID *string, metadata map[string]any) (*models.Message, error)

	DeleteMessage(ctx context.Context, owner, id string) error
}

// Tracer is the fire-and-forget monitoring sink. Implementations must
// never block the request path or surface errors; every method is safe to
// call with a zero trace id.
type Tracer interface {
	// StartSession registers a tracing session for a conversation and
	// returns its id ("" when tracing is disabled).
	StartSession(owner, conversationID string) string

	// StartTrace opens a trace for one chat request and returns its id.
	StartTrace(sessionID, input, model string, mode Mode) string

	LogGeneration(traceID, model string, input []models.ChatMessage, output string, promptTokens, completionTokens int)
	LogSearch(traceID, query string, result *SearchResult)
	LogAgentStep(traceID string, iteration int, decision, detail string)
	LogError(traceID, kind string, err error)
	EndTrace(traceID, output string)
}

// NoopTracer discards all events.
type NoopTracer struct{}

func (NoopTracer) StartSession(string, string) string             { return "" }
func (NoopTracer) StartTrace(string, string, string, Mode) string { return "" }
func (NoopTracer) LogGeneration(string, string, []models.ChatMessage, string, int, int) {
}
func (NoopTracer) LogSearch(string, string, *SearchResult)  {}
func (NoopTracer) LogAgentStep(string, int, string, string) {}
func (NoopTracer) LogError(string, string, error)           {}
func (NoopTracer) EndTrace(string, string)                  {}
