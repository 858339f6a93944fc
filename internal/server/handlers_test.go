package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/parley-go/internal/auth"
	"github.com/raphaelgruber/parley-go/internal/chat"
	"github.com/raphaelgruber/parley-go/internal/metrics"
	"github.com/raphaelgruber/parley-go/internal/models"
)

type fakeEngine struct {
	sendErr  error
	regenErr error
	lastReq  models.ChatRequest
}

func (f *fakeEngine) Send(_ context.Context, owner string, req models.ChatRequest) (*models.ChatResponse, error) {
	f.lastReq = req
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &models.ChatResponse{
		Message: models.MessageView{
			ID:             "msg-1",
			ConversationID: "conv-1",
			Role:           models.RoleAssistant,
			Content:        "reply to " + req.Message,
		},
		ConversationID: "conv-1",
	}, nil
}

func (f *fakeEngine) Regenerate(_ context.Context, owner string, req models.RegenerateRequest) (*models.ChatResponse, error) {
	if f.regenErr != nil {
		return nil, f.regenErr
	}
	return &models.ChatResponse{
		Message:        models.MessageView{ID: req.MessageID, Role: models.RoleAssistant, Content: "regenerated"},
		ConversationID: "conv-1",
	}, nil
}

type fakeStore struct {
	conversations []models.Conversation
	history       []models.Message
	deleteErr     error
}

func (f *fakeStore) CreateConversation(context.Context, string, string) (*models.Conversation, error) {
	return nil, nil
}

func (f *fakeStore) GetConversation(_ context.Context, owner, id string) (*models.Conversation, error) {
	for i := range f.conversations {
		if models.MustRecordIDString(f.conversations[i].ID) == id && f.conversations[i].Owner == owner {
			return &f.conversations[i], nil
		}
	}
	return nil, chat.ErrNotFound
}

func (f *fakeStore) ListConversations(_ context.Context, owner string) ([]models.Conversation, error) {
	var out []models.Conversation
	for _, conv := range f.conversations {
		if conv.Owner == owner {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateConversationTitle(ctx context.Context, owner, id, title string) (*models.Conversation, error) {
	conv, err := f.GetConversation(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	conv.Title = title
	return conv, nil
}

func (f *fakeStore) DeleteConversation(ctx context.Context, owner, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	_, err := f.GetConversation(ctx, owner, id)
	return err
}

func (f *fakeStore) SetTraceSession(context.Context, string, string) error { return nil }

func (f *fakeStore) History(context.Context, string) ([]models.Message, error) {
	return f.history, nil
}

func (f *fakeStore) HistoryBefore(context.Context, string, int64) ([]models.Message, error) {
	return f.history, nil
}

func (f *fakeStore) AppendExchange(context.Context, string, chat.NewMessage, chat.NewMessage) (*models.Message, *models.Message, error) {
	return nil, nil, nil
}

func (f *fakeStore) GetMessage(context.Context, string, string) (*models.Message, error) {
	return nil, chat.ErrNotFound
}

func (f *fakeStore) PrecedingUserMessage(context.Context, string, int64) (*models.Message, error) {
	return nil, chat.ErrNotFound
}

func (f *fakeStore) UpdateMessage(context.Context, string, string, string, *string, map[string]any) (*models.Message, error) {
	return nil, chat.ErrNotFound
}

func (f *fakeStore) DeleteMessage(context.Context, string, string) error { return chat.ErrNotFound }

type fakeLLM struct{ healthy bool }

func (f *fakeLLM) ListModels(context.Context) ([]models.ModelInfo, error) {
	return []models.ModelInfo{{Name: "llama3.2", Type: "model"}}, nil
}

func (f *fakeLLM) Healthy(context.Context) bool { return f.healthy }

type fakeSearch struct{ configured bool }

func (f *fakeSearch) Configured() bool { return f.configured }

type fakeDBState struct{ healthy bool }

func (f *fakeDBState) Healthy(context.Context) bool { return f.healthy }

type testHarness struct {
	server *Server
	engine *fakeEngine
	store  *fakeStore
	token  string
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	tokens := auth.NewManager("test-secret", time.Hour)
	token, err := tokens.Issue("alice")
	require.NoError(t, err)

	engine := &fakeEngine{}
	store := &fakeStore{
		conversations: []models.Conversation{
			{ID: models.NewRecordID("conversation", "conv-1"), Owner: "alice", Title: "First"},
			{ID: models.NewRecordID("conversation", "conv-2"), Owner: "bob", Title: "Not yours"},
		},
	}

	srv := New(engine, store, &fakeLLM{healthy: true}, &fakeSearch{configured: true}, &fakeDBState{healthy: true}, tokens, metrics.NewCollector(), nil)
	return &testHarness{server: srv, engine: engine, store: store, token: token}
}

func (h *testHarness) do(t *testing.T, method, path string, body any, authorized bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authorized {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/conversations", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsBadToken(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSendReturnsResponseEnvelope(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/chat/send", models.ChatRequest{Message: "hello", Mode: "none"}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "conv-1", resp.ConversationID)
	assert.Equal(t, models.RoleAssistant, resp.Message.Role)
	assert.Equal(t, "hello", h.engine.lastReq.Message)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty message", chat.ErrEmptyMessage, http.StatusUnprocessableEntity},
		{"invalid role", chat.ErrInvalidRole, http.StatusUnprocessableEntity},
		{"not found", chat.ErrNotFound, http.StatusNotFound},
		{"unreachable", chat.ErrUnreachable, http.StatusBadGateway},
		{"not configured", chat.ErrNotConfigured, http.StatusBadGateway},
		{"rate limited", chat.ErrRateLimited, http.StatusBadGateway},
		{"timeout", chat.ErrTimeout, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.engine.sendErr = tt.err

			rec := h.do(t, http.MethodPost, "/api/v1/chat/send", models.ChatRequest{Message: "hi"}, true)
			assert.Equal(t, tt.want, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestRegenerateUnknownMessage(t *testing.T) {
	h := newHarness(t)
	h.engine.regenErr = chat.ErrNotFound

	rec := h.do(t, http.MethodPost, "/api/v1/chat/regenerate", models.RegenerateRequest{MessageID: "gone"}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListModelsIncludesTools(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/chat/models", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Models []models.ModelInfo `json:"models"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	var names []string
	for _, m := range body.Models {
		names = append(names, m.Name)
	}
	assert.Contains(t, names, "llama3.2")
	assert.Contains(t, names, "internet")
	assert.Contains(t, names, "auto")
}

func TestListConversationsScopedToOwner(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/conversations", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Conversations []models.ConversationView `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Conversations, 1)
	assert.Equal(t, "First", body.Conversations[0].Title)
}

func TestGetForeignConversationIsNotFound(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/conversations/conv-2", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportConversationJSON(t *testing.T) {
	h := newHarness(t)
	h.store.history = []models.Message{
		{ID: models.NewRecordID("message", "msg-1"), Conversation: models.NewRecordID("conversation", "conv-1"), Role: models.RoleUser, Content: "hello", ToolUsed: "auto", Seq: 1},
		{ID: models.NewRecordID("message", "msg-2"), Conversation: models.NewRecordID("conversation", "conv-1"), Role: models.RoleAssistant, Content: "hi there", ToolUsed: "auto", Seq: 2},
	}

	rec := h.do(t, http.MethodGet, "/api/v1/conversations/conv-1/export", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var export models.ConversationExport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &export))
	assert.Equal(t, "conv-1", export.Conversation.ID)
	require.Len(t, export.Messages, 2)
	assert.Equal(t, "hello", export.Messages[0].Content)
	assert.Equal(t, models.RoleAssistant, export.Messages[1].Role)
}

func TestExportConversationMarkdown(t *testing.T) {
	h := newHarness(t)
	h.store.history = []models.Message{
		{ID: models.NewRecordID("message", "msg-1"), Conversation: models.NewRecordID("conversation", "conv-1"), Role: models.RoleUser, Content: "hello", ToolUsed: "auto", Seq: 1},
		{ID: models.NewRecordID("message", "msg-2"), Conversation: models.NewRecordID("conversation", "conv-1"), Role: models.RoleAssistant, Content: "hi there", ToolUsed: "auto", Seq: 2},
	}

	rec := h.do(t, http.MethodGet, "/api/v1/conversations/conv-1/export?format=markdown", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var export models.MarkdownExport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &export))
	assert.Equal(t, "conversation_conv-1.md", export.Filename)
	assert.Contains(t, export.Content, "# First")
	assert.Contains(t, export.Content, "## User")
	assert.Contains(t, export.Content, "## Assistant")
	assert.Contains(t, export.Content, "*Tool used: auto*")
}

func TestExportUnknownFormat(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/conversations/conv-1/export?format=xml", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportForeignConversationIsNotFound(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/conversations/conv-2/export", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRenameConversation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPut, "/api/v1/conversations/conv-1", map[string]string{"title": "Renamed"}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var view models.ConversationView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "Renamed", view.Title)
}

func TestDeleteConversation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodDelete, "/api/v1/conversations/conv-1", nil, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHealthNeedsNoAuth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/health", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status     string          `json:"status"`
		Components map[string]bool `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.Components["database"])
}
