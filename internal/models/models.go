// Package models defines the persistent records and wire envelopes for Parley.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// User represents an account that owns conversations.
type User struct {
	ID        surrealmodels.RecordID `json:"id"`
	Username  string                 `json:"username"`
	CreatedAt time.Time              `json:"created_at"`
}

// Conversation represents a persistent chat session.
// A conversation is only ever created together with its first message;
// a zero-message conversation exists client-side as draft state only.
type Conversation struct {
	ID             surrealmodels.RecordID `json:"id"`
	Owner          string                 `json:"owner"`
	Title          string                 `json:"title"`
	TraceSessionID *string                `json:"trace_session_id,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Message represents a single chat message within a conversation.
// Messages are totally ordered by (CreatedAt, Seq) within their conversation.
type Message struct {
	ID           surrealmodels.RecordID `json:"id"`
	Conversation surrealmodels.RecordID `json:"conversation"`
	Role         string                 `json:"role"`
	Content      string                 `json:"content"`
	ToolUsed     string                 `json:"tool_used"`
	TraceID      *string                `json:"trace_id,omitempty"`
	Metadata     map[string]any         `json:"metadata,omitempty"`
	Seq          int64                  `json:"seq"`
	CreatedAt    time.Time              `json:"created_at"`
}

// ChatMessage is the role/content pair sent to the inference service.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the send-message wire request.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	Mode           string `json:"mode,omitempty"`
	Model          string `json:"model,omitempty"`
}

// RegenerateRequest asks the server to recompute an assistant message in place.
type RegenerateRequest struct {
	MessageID string `json:"message_id"`
	Model     string `json:"model,omitempty"`
}

// MessageView is the wire representation of a persisted message.
type MessageView struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	ToolUsed       string         `json:"tool_used"`
	TraceID        *string        `json:"trace_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ChatResponse is the send/regenerate wire response envelope.
// ConversationID is authoritative: it equals the request's id, or the id of
// the conversation created for this exchange.
type ChatResponse struct {
	Message        MessageView `json:"message"`
	ConversationID string      `json:"conversation_id"`
	TraceID        *string     `json:"trace_id,omitempty"`
}

// ConversationView is the wire representation of a conversation.
type ConversationView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationExport is the JSON export payload: the conversation and its
// full history, oldest first.
type ConversationExport struct {
	Conversation ConversationView `json:"conversation"`
	Messages     []MessageView    `json:"messages"`
}

// MarkdownExport wraps a rendered Markdown export with a suggested filename.
type MarkdownExport struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

// ModelInfo describes a selectable model or pseudo-tool.
type ModelInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "model" or "tool"
	Description string `json:"description,omitempty"`
}

// MessageToView converts a persisted message to its wire shape.
func MessageToView(m *Message) MessageView {
	if m == nil {
		return MessageView{}
	}
	return MessageView{
		ID:             MustRecordIDString(m.ID),
		ConversationID: MustRecordIDString(m.Conversation),
		Role:           m.Role,
		Content:        m.Content,
		ToolUsed:       m.ToolUsed,
		TraceID:        m.TraceID,
		Metadata:       m.Metadata,
		CreatedAt:      m.CreatedAt,
	}
}

// ConversationToView converts a persisted conversation to its wire shape.
func ConversationToView(c *Conversation) ConversationView {
	if c == nil {
		return ConversationView{}
	}
	return ConversationView{
		ID:        MustRecordIDString(c.ID),
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
