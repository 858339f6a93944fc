package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/parley-go/internal/chat"
	"github.com/raphaelgruber/parley-go/internal/metrics"
	"github.com/raphaelgruber/parley-go/internal/models"
)

// timed starts a query timer; defer the returned func to record it.
func (c *Client) timed() func() {
	start := time.Now()
	return func() { c.metrics.RecordTiming(metrics.OpDBQuery, time.Since(start)) }
}

// firstResult extracts the first record of the first statement result, or
// nil when the query matched nothing.
func firstResult[T any](results *[]surrealdb.QueryResult[[]T]) *T {
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil
	}
	return &(*results)[0].Result[0]
}

// CreateConversation persists a conversation for owner. Conversations are
// only created together with their first exchange, never empty.
func (c *Client) CreateConversation(ctx context.Context, owner, title string) (*models.Conversation, error) {
	defer c.timed()()

	results, err := surrealdb.Query[[]models.Conversation](ctx, c.db, `
		CREATE type::record("conversation", $id) SET
			owner = $owner,
			title = $title
		RETURN AFTER
	`, map[string]any{
		"id":    uuid.NewString(),
		"owner": owner,
		"title": title,
	})
	if err != nil {
		return nil, wrapQueryError(err)
	}

	conv := firstResult(results)
	if conv == nil {
		return nil, notFound("conversation", "created")
	}
	return conv, nil
}

// GetConversation returns the conversation, scoped to owner.
func (c *Client) GetConversation(ctx context.Context, owner, id string) (*models.Conversation, error) {
	defer c.timed()()

	results, err := surrealdb.Query[[]models.Conversation](ctx, c.db, `
		SELECT * FROM type::record("conversation", $id) WHERE owner = $owner
	`, map[string]any{"id": id, "owner": owner})
	if err != nil {
		return nil, wrapQueryError(err)
	}

	conv := firstResult(results)
	if conv == nil {
		return nil, notFound("conversation", id)
	}
	return conv, nil
}

// ListConversations returns all conversations of owner, most recently
// updated first.
func (c *Client) ListConversations(ctx context.Context, owner string) ([]models.Conversation, error) {
	defer c.timed()()

	results, err := surrealdb.Query[[]models.Conversation](ctx, c.db, `
		SELECT * FROM conversation WHERE owner = $owner ORDER BY updated_at DESC
	`, map[string]any{"owner": owner})
	if err != nil {
		return nil, wrapQueryError(err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Conversation{}, nil
	}
	return (*results)[0].Result, nil
}

// UpdateConversationTitle renames a conversation, scoped to owner.
func (c *Client) UpdateConversationTitle(ctx context.Context, owner, id, title string) (*models.Conversation, error) {
	defer c.timed()()

	results, err := surrealdb.Query[[]models.Conversation](ctx, c.db, `
		UPDATE type::record("conversation", $id) SET
			title = $title,
			updated_at = time::now()
		WHERE owner = $owner
		RETURN AFTER
	`, map[string]any{"id": id, "owner": owner, "title": title})
	if err != nil {
		return nil, wrapQueryError(err)
	}

	conv := firstResult(results)
	if conv == nil {
		return nil, notFound("conversation", id)
	}
	return conv, nil
}

// DeleteConversation removes a conversation and all of its messages.
func (c *Client) DeleteConversation(ctx context.Context, owner, id string) error {
	// Ownership check first so a foreign id reports not found instead of
	// silently deleting nothing.
	if _, err := c.GetConversation(ctx, owner, id); err != nil {
		return err
	}

	defer c.timed()()

	_, err := surrealdb.Query[any](ctx, c.db, `
		BEGIN;
		DELETE message WHERE conversation = type::record("conversation", $id);
		DELETE type::record("conversation", $id);
		COMMIT;
	`, map[string]any{"id": id})
	return wrapQueryError(err)
}

// SetTraceSession records the external tracing session id on a conversation.
func (c *Client) SetTraceSession(ctx context.Context, conversationID, sessionID string) error {
	defer c.timed()()

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("conversation", $id) SET trace_session_id = $session
	`, map[string]any{"id": conversationID, "session": sessionID})
	return wrapQueryError(err)
}

// History returns all messages of a conversation, oldest first.
func (c *Client) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	defer c.timed()()

	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		SELECT * FROM message
		WHERE conversation = type::record("conversation", $conversation)
		ORDER BY seq ASC
	`, map[string]any{"conversation": conversationID})
	if err != nil {
		return nil, wrapQueryError(err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Message{}, nil
	}
	return (*results)[0].Result, nil
}

// HistoryBefore returns messages preceding the given sequence number,
// oldest first.
func (c *Client) HistoryBefore(ctx context.Context, conversationID string, beforeSeq int64) ([]models.Message, error) {
	defer c.timed()()

	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		SELECT * FROM message
		WHERE conversation = type::record("conversation", $conversation)
			AND seq < $before
		ORDER BY seq ASC
	`, map[string]any{"conversation": conversationID, "before": beforeSeq})
	if err != nil {
		return nil, wrapQueryError(err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Message{}, nil
	}
	return (*results)[0].Result, nil
}

// AppendExchange appends the user and assistant messages of one completed
// request in a single transaction. Sequence numbers are assigned inside the
// transaction so concurrent requests to the same conversation never
// interleave their pairs.
func (c *Client) AppendExchange(ctx context.Context, conversationID string, user, assistant chat.NewMessage) (*models.Message, *models.Message, error) {
	defer c.timed()()

	userID := uuid.NewString()
	assistantID := uuid.NewString()

	_, err := surrealdb.Query[any](ctx, c.db, `
		BEGIN;
		LET $conv = type::record("conversation", $conversation);
		LET $last = (SELECT VALUE seq FROM message WHERE conversation = $conv ORDER BY seq DESC LIMIT 1)[0] ?? 0;
		CREATE type::record("message", $user_id) SET
			conversation = $conv,
			role = $user_role,
			content = $user_content,
			tool_used = $user_tool,
			trace_id = $user_trace,
			metadata = $user_metadata,
			seq = $last + 1;
		CREATE type::record("message", $assistant_id) SET
			conversation = $conv,
			role = $assistant_role,
			content = $assistant_content,
			tool_used = $assistant_tool,
			trace_id = $assistant_trace,
			metadata = $assistant_metadata,
			seq = $last + 2;
		UPDATE $conv SET updated_at = time::now();
		COMMIT;
	`, map[string]any{
		"conversation":       conversationID,
		"user_id":            userID,
		"user_role":          user.Role,
		"user_content":       user.Content,
		"user_tool":          user.ToolUsed,
		"user_trace":         user.TraceID,
		"user_metadata":      user.Metadata,
		"assistant_id":       assistantID,
		"assistant_role":     assistant.Role,
		"assistant_content":  assistant.Content,
		"assistant_tool":     assistant.ToolUsed,
		"assistant_trace":    assistant.TraceID,
		"assistant_metadata": assistant.Metadata,
	})
	if err != nil {
		return nil, nil, wrapQueryError(err)
	}

	userMsg, err := c.fetchMessage(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	assistantMsg, err := c.fetchMessage(ctx, assistantID)
	if err != nil {
		return nil, nil, err
	}
	return userMsg, assistantMsg, nil
}

// fetchMessage reads a message by id without owner scoping. Internal use
// only, right after a write.
func (c *Client) fetchMessage(ctx context.Context, id string) (*models.Message, error) {
	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		SELECT * FROM type::record("message", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, wrapQueryError(err)
	}

	msg := firstResult(results)
	if msg == nil {
		return nil, notFound("message", id)
	}
	return msg, nil
}

// GetMessage returns a message, scoped through its conversation's owner.
func (c *Client) GetMessage(ctx context.Context, owner, id string) (*models.Message, error) {
	defer c.timed()()

	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		SELECT * FROM type::record("message", $id)
		WHERE conversation.owner = $owner
	`, map[string]any{"id": id, "owner": owner})
	if err != nil {
		return nil, wrapQueryError(err)
	}

	msg := firstResult(results)
	if msg == nil {
		return nil, notFound("message", id)
	}
	return msg, nil
}

// PrecedingUserMessage returns the closest user-role message before the
// given sequence number.
func (c *Client) PrecedingUserMessage(ctx context.Context, conversationID string, beforeSeq int64) (*models.Message, error) {
	defer c.timed()()

	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		SELECT * FROM message
		WHERE conversation = type::record("conversation", $conversation)
			AND role = "user"
			AND seq < $before
		ORDER BY seq DESC
		LIMIT 1
	`, map[string]any{"conversation": conversationID, "before": beforeSeq})
	if err != nil {
		return nil, wrapQueryError(err)
	}

	msg := firstResult(results)
	if msg == nil {
		return nil, notFound("message", "preceding user message")
	}
	return msg, nil
}

// UpdateMessage overwrites content and metadata of a message in place.
// Identity, role, seq and created_at never change.
func (c *Client) UpdateMessage(ctx context.Context, id, content, toolUsed string, traceID *string, metadata map[string]any) (*models.Message, error) {
	defer c.timed()()

	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		UPDATE type::record("message", $id) SET
			content = $content,
			tool_used = $tool,
			trace_id = $trace,
			metadata = $metadata
		RETURN AFTER
	`, map[string]any{
		"id":       id,
		"content":  content,
		"tool":     toolUsed,
		"trace":    traceID,
		"metadata": metadata,
	})
	if err != nil {
		return nil, wrapQueryError(err)
	}

	msg := firstResult(results)
	if msg == nil {
		return nil, notFound("message", id)
	}
	return msg, nil
}

// DeleteMessage removes a single message, scoped through its conversation's
// owner.
func (c *Client) DeleteMessage(ctx context.Context, owner, id string) error {
	if _, err := c.GetMessage(ctx, owner, id); err != nil {
		return err
	}

	defer c.timed()()

	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE type::record("message", $id)
	`, map[string]any{"id": id})
	return wrapQueryError(err)
}
