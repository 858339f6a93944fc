package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/raphaelgruber/parley-go/internal/models"
)

// stubCompleter replays canned responses in call order.
type stubCompleter struct {
	responses []string
	errs      []error
	calls     int
	inputs    [][]models.ChatMessage
	prompts   []string
	models    []string
}

func (s *stubCompleter) Complete(_ context.Context, model string, history []models.ChatMessage, systemPrompt string) (*Completion, error) {
	idx := s.calls
	s.calls++
	s.inputs = append(s.inputs, append([]models.ChatMessage{}, history...))
	s.prompts = append(s.prompts, systemPrompt)
	s.models = append(s.models, model)

	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	text := "canned answer"
	if idx < len(s.responses) {
		text = s.responses[idx]
	}
	return &Completion{Text: text, Model: model, PromptTokens: 10, CompletionTokens: 20}, nil
}

func (s *stubCompleter) DefaultModel() string { return "llama3.2" }

// stubSearcher returns one canned result or error for every query.
type stubSearcher struct {
	result  *SearchResult
	err     error
	queries []string
}

func (s *stubSearcher) Search(_ context.Context, query string, _ string) (*SearchResult, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &SearchResult{
		Query:    query,
		Answer:   "found it",
		Snippets: []Snippet{{Title: "Result", URL: "https://example.com", Excerpt: "excerpt"}},
	}, nil
}

// memStore is an in-memory Store for engine tests.
type memStore struct {
	conversations map[string]*models.Conversation
	messages      []models.Message
	nextConv      int
	nextMsg       int
}

func newMemStore() *memStore {
	return &memStore{conversations: map[string]*models.Conversation{}}
}

func (m *memStore) CreateConversation(_ context.Context, owner, title string) (*models.Conversation, error) {
	m.nextConv++
	id := fmt.Sprintf("conv-%d", m.nextConv)
	conv := &models.Conversation{ID: models.NewRecordID("conversation", id), Owner: owner, Title: title}
	m.conversations[id] = conv
	return conv, nil
}

func (m *memStore) GetConversation(_ context.Context, owner, id string) (*models.Conversation, error) {
	conv, ok := m.conversations[id]
	if !ok || conv.Owner != owner {
		return nil, ErrNotFound
	}
	return conv, nil
}

func (m *memStore) ListConversations(_ context.Context, owner string) ([]models.Conversation, error) {
	var out []models.Conversation
	for _, conv := range m.conversations {
		if conv.Owner == owner {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func (m *memStore) UpdateConversationTitle(ctx context.Context, owner, id, title string) (*models.Conversation, error) {
	conv, err := m.GetConversation(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	conv.Title = title
	return conv, nil
}

func (m *memStore) DeleteConversation(ctx context.Context, owner, id string) error {
	if _, err := m.GetConversation(ctx, owner, id); err != nil {
		return err
	}
	delete(m.conversations, id)
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if models.MustRecordIDString(msg.Conversation) != id {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	return nil
}

func (m *memStore) SetTraceSession(_ context.Context, conversationID, sessionID string) error {
	if conv, ok := m.conversations[conversationID]; ok {
		conv.TraceSessionID = &sessionID
	}
	return nil
}

func (m *memStore) History(_ context.Context, conversationID string) ([]models.Message, error) {
	var out []models.Message
	for _, msg := range m.messages {
		if models.MustRecordIDString(msg.Conversation) == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) HistoryBefore(ctx context.Context, conversationID string, beforeSeq int64) ([]models.Message, error) {
	all, _ := m.History(ctx, conversationID)
	var out []models.Message
	for _, msg := range all {
		if msg.Seq < beforeSeq {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) append(conversationID string, nm NewMessage) *models.Message {
	m.nextMsg++
	msg := models.Message{
		ID:           models.NewRecordID("message", fmt.Sprintf("msg-%d", m.nextMsg)),
		Conversation: models.NewRecordID("conversation", conversationID),
		Role:         nm.Role,
		Content:      nm.Content,
		ToolUsed:     nm.ToolUsed,
		TraceID:      nm.TraceID,
		Metadata:     nm.Metadata,
		Seq:          int64(m.nextMsg),
	}
	m.messages = append(m.messages, msg)
	return &m.messages[len(m.messages)-1]
}

func (m *memStore) AppendExchange(_ context.Context, conversationID string, user, assistant NewMessage) (*models.Message, *models.Message, error) {
	u := m.append(conversationID, user)
	a := m.append(conversationID, assistant)
	return u, a, nil
}

func (m *memStore) GetMessage(_ context.Context, owner, id string) (*models.Message, error) {
	for i := range m.messages {
		msg := &m.messages[i]
		if models.MustRecordIDString(msg.ID) != id {
			continue
		}
		conv, ok := m.conversations[models.MustRecordIDString(msg.Conversation)]
		if !ok || conv.Owner != owner {
			return nil, ErrNotFound
		}
		return msg, nil
	}
	return nil, ErrNotFound
}

func (m *memStore) PrecedingUserMessage(ctx context.Context, conversationID string, beforeSeq int64) (*models.Message, error) {
	history, _ := m.HistoryBefore(ctx, conversationID, beforeSeq)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return &history[i], nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) UpdateMessage(_ context.Context, id, content, toolUsed string, traceID *string, metadata map[string]any) (*models.Message, error) {
	for i := range m.messages {
		if models.MustRecordIDString(m.messages[i].ID) == id {
			m.messages[i].Content = content
			m.messages[i].ToolUsed = toolUsed
			m.messages[i].TraceID = traceID
			m.messages[i].Metadata = metadata
			return &m.messages[i], nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) DeleteMessage(ctx context.Context, owner, id string) error {
	if _, err := m.GetMessage(ctx, owner, id); err != nil {
		return err
	}
	for i := range m.messages {
		if models.MustRecordIDString(m.messages[i].ID) == id {
			m.messages = append(m.messages[:i], m.messages[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func newTestEngine(store Store, completer Completer, searcher Searcher) *Engine {
	return NewEngine(store, completer, searcher, nil, nil, Options{})
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	store := newMemStore()
	completer := &stubCompleter{}
	e := newTestEngine(store, completer, &stubSearcher{})

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := e.Send(context.Background(), "alice", models.ChatRequest{Message: text})
		if !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Send(%q) = %v, want ErrEmptyMessage", text, err)
		}
	}
	if completer.calls != 0 {
		t.Errorf("inference called %d times for empty input", completer.calls)
	}
	if len(store.conversations) != 0 {
		t.Error("conversation persisted for rejected request")
	}
}

func TestSendNoneCreatesConversation(t *testing.T) {
	store := newMemStore()
	completer := &stubCompleter{responses: []string{"the answer"}}
	searcher := &stubSearcher{}
	e := newTestEngine(store, completer, searcher)

	resp, err := e.Send(context.Background(), "alice", models.ChatRequest{Message: "hello there", Mode: "none"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if resp.ConversationID == "" {
		t.Fatal("no conversation id in response")
	}
	if resp.Message.Content != "the answer" {
		t.Errorf("assistant content = %q", resp.Message.Content)
	}
	if resp.Message.ToolUsed != "none" {
		t.Errorf("tool_used = %q, want none", resp.Message.ToolUsed)
	}
	if len(searcher.queries) != 0 {
		t.Error("none mode performed a search")
	}

	conv := store.conversations[resp.ConversationID]
	if conv == nil {
		t.Fatal("conversation not persisted")
	}
	if conv.Title != "hello there" {
		t.Errorf("title = %q", conv.Title)
	}

	history, _ := store.History(context.Background(), resp.ConversationID)
	if len(history) != 2 {
		t.Fatalf("persisted %d messages, want the user/assistant pair", len(history))
	}
	if history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant {
		t.Errorf("pair order wrong: %s then %s", history[0].Role, history[1].Role)
	}
	if history[0].ToolUsed != "none" {
		t.Errorf("user message records mode %q", history[0].ToolUsed)
	}
}

func TestSendDerivesTitleFromLongMessage(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(store, &stubCompleter{}, &stubSearcher{})

	long := strings.Repeat("a", 80)
	resp, err := e.Send(context.Background(), "alice", models.ChatRequest{Message: long})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	title := store.conversations[resp.ConversationID].Title
	if title != strings.Repeat("a", 50)+"..." {
		t.Errorf("title = %q, want first 50 chars plus ellipsis", title)
	}
}

func TestSendUnknownModeDefaultsToNone(t *testing.T) {
	completer := &stubCompleter{responses: []string{"direct"}}
	searcher := &stubSearcher{}
	e := newTestEngine(newMemStore(), completer, searcher)

	resp, err := e.Send(context.Background(), "alice", models.ChatRequest{Message: "hi", Mode: "telepathy"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resp.Message.ToolUsed != "none" {
		t.Errorf("tool_used = %q, want none", resp.Message.ToolUsed)
	}
	if len(searcher.queries) != 0 {
		t.Error("unknown mode reached the searcher")
	}
}

func TestSendInternetNeverInfers(t *testing.T) {
	completer := &stubCompleter{}
	searcher := &stubSearcher{result: &SearchResult{
		Query:    "hi",
		Answer:   "42",
		Snippets: []Snippet{{Title: "T", URL: "u", Excerpt: "e"}},
	}}
	e := newTestEngine(newMemStore(), completer, searcher)

	resp, err := e.Send(context.Background(), "alice", models.ChatRequest{Message: "hi", Mode: "internet"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if completer.calls != 0 {
		t.Errorf("internet mode called inference %d times", completer.calls)
	}
	if !strings.Contains(resp.Message.Content, "Direct Answer: 42") {
		t.Errorf("rendered answer missing direct answer: %q", resp.Message.Content)
	}
	if !strings.Contains(resp.Message.Content, "1. T") {
		t.Errorf("rendered answer missing ranked snippet: %q", resp.Message.Content)
	}
	if resp.Message.ToolUsed != "internet" {
		t.Errorf("tool_used = %q", resp.Message.ToolUsed)
	}
}

func TestSendInternetSearchFailureLeavesNothingBehind(t *testing.T) {
	store := newMemStore()
	searcher := &stubSearcher{err: ErrRateLimited}
	e := newTestEngine(store, &stubCompleter{}, searcher)

	_, err := e.Send(context.Background(), "alice", models.ChatRequest{Message: "hi", Mode: "internet"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}
	if len(store.conversations) != 0 || len(store.messages) != 0 {
		t.Error("failed request persisted records")
	}
}

func TestSendWindowsLongHistory(t *testing.T) {
	store := newMemStore()
	completer := &stubCompleter{}
	e := newTestEngine(store, completer, &stubSearcher{})

	conv, _ := store.CreateConversation(context.Background(), "alice", "Long")
	convID := models.MustRecordIDString(conv.ID)
	for i := 0; i < 13; i++ {
		store.AppendExchange(context.Background(), convID,
			NewMessage{Role: models.RoleUser, Content: fmt.Sprintf("q%d", i), ToolUsed: "none"},
			NewMessage{Role: models.RoleAssistant, Content: fmt.Sprintf("a%d", i), ToolUsed: "none"},
		)
	}

	_, err := e.Send(context.Background(), "alice", models.ChatRequest{Message: "latest", ConversationID: convID})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	input := completer.inputs[0]
	// Window of 10 plus the new user message.
	if len(input) != 11 {
		t.Fatalf("inference input = %d messages, want 11", len(input))
	}
	if input[0].Content != "a8" {
		t.Errorf("window starts at %q, want a8", input[0].Content)
	}
	if input[10].Content != "latest" {
		t.Errorf("new user message not last: %q", input[10].Content)
	}
}

func TestSendUnknownConversation(t *testing.T) {
	e := newTestEngine(newMemStore(), &stubCompleter{}, &stubSearcher{})

	_, err := e.Send(context.Background(), "alice", models.ChatRequest{Message: "hi", ConversationID: "nope"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSendModelResolution(t *testing.T) {
	completer := &stubCompleter{}
	e := newTestEngine(newMemStore(), completer, &stubSearcher{})

	for _, requested := range []string{"", "auto", "internet"} {
		completer.models = nil
		if _, err := e.Send(context.Background(), "alice", models.ChatRequest{Message: "hi", Model: requested}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		if completer.models[0] != "llama3.2" {
			t.Errorf("model %q resolved to %q, want default", requested, completer.models[0])
		}
	}
}

func TestAutoFallsBackToDirectInference(t *testing.T) {
	store := newMemStore()
	// Decision directs a search, the search blows up, the fallback answers.
	completer := &stubCompleter{responses: []string{"SEARCH: weather", "fallback answer"}}
	searcher := &stubSearcher{err: ErrUnreachable}
	e := newTestEngine(store, completer, searcher)

	resp, err := e.Send(context.Background(), "alice", models.ChatRequest{Message: "hi", Mode: "auto"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if resp.Message.Content != "fallback answer" {
		t.Errorf("content = %q, want the fallback's answer", resp.Message.Content)
	}
	// Fallback output is indistinguishable from a none request except for
	// the metadata flag.
	if resp.Message.ToolUsed != "none" {
		t.Errorf("tool_used = %q, want none after fallback", resp.Message.ToolUsed)
	}
	if resp.Message.Metadata["fallback"] != true {
		t.Errorf("metadata = %v, want fallback flag", resp.Message.Metadata)
	}
}

func TestAutoFallbackFailureSurfacesFallbackError(t *testing.T) {
	completer := &stubCompleter{
		responses: []string{"SEARCH: x", ""},
		errs:      []error{nil, ErrUnreachable},
	}
	e := newTestEngine(newMemStore(), completer, &stubSearcher{err: ErrTimeout})

	_, err := e.Send(context.Background(), "alice", models.ChatRequest{Message: "hi", Mode: "auto"})
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("got %v, want the fallback's error", err)
	}
}

func regenFixture(t *testing.T) (*memStore, string, string) {
	t.Helper()
	store := newMemStore()
	conv, _ := store.CreateConversation(context.Background(), "alice", "Regen")
	convID := models.MustRecordIDString(conv.ID)

	store.AppendExchange(context.Background(), convID,
		NewMessage{Role: models.RoleUser, Content: "first question", ToolUsed: "none"},
		NewMessage{Role: models.RoleAssistant, Content: "first answer", ToolUsed: "none"},
	)
	_, assistant, _ := store.AppendExchange(context.Background(), convID,
		NewMessage{Role: models.RoleUser, Content: "second question", ToolUsed: "none"},
		NewMessage{Role: models.RoleAssistant, Content: "second answer", ToolUsed: "none"},
	)
	return store, convID, models.MustRecordIDString(assistant.ID)
}

func TestRegenerateOverwritesInPlace(t *testing.T) {
	store, convID, msgID := regenFixture(t)
	completer := &stubCompleter{responses: []string{"better answer"}}
	e := newTestEngine(store, completer, &stubSearcher{})

	resp, err := e.Regenerate(context.Background(), "alice", models.RegenerateRequest{MessageID: msgID})
	if err != nil {
		t.Fatalf("Regenerate failed: %v", err)
	}

	if resp.Message.ID != msgID {
		t.Errorf("message id changed: %q", resp.Message.ID)
	}
	if resp.Message.Content != "better answer" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.Message.Metadata["regenerated"] != true {
		t.Errorf("metadata = %v, want regenerated flag", resp.Message.Metadata)
	}

	// The prompt is the preceding user message over the history before it.
	input := completer.inputs[0]
	if input[len(input)-1].Content != "second question" {
		t.Errorf("regenerated from %q, want the preceding user message", input[len(input)-1].Content)
	}
	for _, msg := range input {
		if msg.Content == "second answer" {
			t.Error("stale assistant answer leaked into the regeneration context")
		}
	}

	// Position is unchanged.
	history, _ := store.History(context.Background(), convID)
	if history[3].Content != "better answer" {
		t.Errorf("message moved: history tail is %q", history[3].Content)
	}
}

func TestRegenerateUserMessageRejected(t *testing.T) {
	store, convID, _ := regenFixture(t)
	_ = convID
	e := newTestEngine(store, &stubCompleter{}, &stubSearcher{})

	// msg-1 is the first user message.
	_, err := e.Regenerate(context.Background(), "alice", models.RegenerateRequest{MessageID: "msg-1"})
	if !errors.Is(err, ErrInvalidRole) {
		t.Errorf("got %v, want ErrInvalidRole", err)
	}
}

func TestRegenerateUnknownMessage(t *testing.T) {
	store, _, _ := regenFixture(t)
	e := newTestEngine(store, &stubCompleter{}, &stubSearcher{})

	_, err := e.Regenerate(context.Background(), "alice", models.RegenerateRequest{MessageID: "deleted"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestRegenerateUsesRequestedModeAfterFallback(t *testing.T) {
	store := newMemStore()
	conv, _ := store.CreateConversation(context.Background(), "alice", "Fallback")
	convID := models.MustRecordIDString(conv.ID)

	// An auto request that fell back: the user message records the requested
	// mode, the assistant records what actually ran.
	_, assistant, _ := store.AppendExchange(context.Background(), convID,
		NewMessage{Role: models.RoleUser, Content: "needs the agent", ToolUsed: "auto"},
		NewMessage{Role: models.RoleAssistant, Content: "fallback answer", ToolUsed: "none", Metadata: map[string]any{"fallback": true}},
	)
	msgID := models.MustRecordIDString(assistant.ID)

	completer := &stubCompleter{responses: []string{"FINAL: agent answer"}}
	e := newTestEngine(store, completer, &stubSearcher{})

	resp, err := e.Regenerate(context.Background(), "alice", models.RegenerateRequest{MessageID: msgID})
	if err != nil {
		t.Fatalf("Regenerate failed: %v", err)
	}
	if resp.Message.ToolUsed != "auto" {
		t.Errorf("tool used = %q, want the agent to run again", resp.Message.ToolUsed)
	}
	if completer.prompts[0] != decidePrompt {
		t.Error("regeneration went straight to inference instead of the agent loop")
	}
	if resp.Message.Content != "agent answer" {
		t.Errorf("content = %q", resp.Message.Content)
	}
}

func TestRegenerateScopedToOwner(t *testing.T) {
	store, _, msgID := regenFixture(t)
	e := newTestEngine(store, &stubCompleter{}, &stubSearcher{})

	_, err := e.Regenerate(context.Background(), "mallory", models.RegenerateRequest{MessageID: msgID})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
