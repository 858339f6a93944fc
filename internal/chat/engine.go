// Package chat implements the conversation orchestration core: the context
// windower, the mode dispatcher with its three strategies, the bounded
// agent loop and the server-side conversation state machine. External
// collaborators (record store, inference, search, tracing) enter through
// the interfaces in ports.go.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/parley-go/internal/models"
)

const defaultSystemPrompt = "You are a helpful AI assistant. Provide accurate and helpful responses."

// titleLimit bounds the derived conversation title length.
const titleLimit = 50

// Options tunes the engine. Zero values select the defaults.
type Options struct {
	Window        int // max history messages replayed, default DefaultWindow
	MaxIterations int // agent loop ceiling, default DefaultMaxIterations
}

// Engine routes chat requests through one of the three strategies and owns
// all writes to the record store. It keeps no per-request state; concurrent
// requests share nothing but the store.
type Engine struct {
	store         Store
	completer     Completer
	searcher      Searcher
	tracer        Tracer
	logger        *slog.Logger
	window        int
	maxIterations int
}

// NewEngine creates an orchestration engine. A nil tracer is replaced by
// NoopTracer; a nil logger by slog.Default().
func NewEngine(store Store, completer Completer, searcher Searcher, tracer Tracer, logger *slog.Logger, opts Options) *Engine {
	if tracer == nil {
		tracer = NoopTracer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	return &Engine{
		store:         store,
		completer:     completer,
		searcher:      searcher,
		tracer:        tracer,
		logger:        logger,
		window:        window,
		maxIterations: maxIter,
	}
}

// outcome is the common result type all three strategies converge on.
type outcome struct {
	text     string
	toolUsed string
	metadata map[string]any
}

// Send handles one chat request: select a strategy, produce the assistant
// reply, then persist the user/assistant pair, creating the conversation
// first when the request carries no id. Nothing is persisted on failure.
func (e *Engine) Send(ctx context.Context, owner string, req models.ChatRequest) (*models.ChatResponse, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	mode := ParseMode(req.Mode)
	model := e.resolveModel(req.Model)

	var (
		conv    *models.Conversation
		history []models.Message
		err     error
	)
	if req.ConversationID != "" {
		conv, err = e.store.GetConversation(ctx, owner, req.ConversationID)
		if err != nil {
			return nil, err
		}
		history, err = e.store.History(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
	}

	sessionID := ""
	if conv != nil && conv.TraceSessionID != nil {
		sessionID = *conv.TraceSessionID
	}
	traceID := e.tracer.StartTrace(sessionID, text, model, mode)

	windowed := Window(toChatMessages(history), e.window)
	out, err := e.dispatch(ctx, mode, model, windowed, text, traceID)
	if err != nil {
		e.tracer.LogError(traceID, "dispatch", err)
		return nil, err
	}

	if conv == nil {
		conv, err = e.store.CreateConversation(ctx, owner, deriveTitle(text))
		if err != nil {
			e.tracer.LogError(traceID, "store", err)
			return nil, err
		}
	}
	convID := models.MustRecordIDString(conv.ID)

	if conv.TraceSessionID == nil || *conv.TraceSessionID == "" {
		if sid := e.tracer.StartSession(owner, convID); sid != "" {
			if err := e.store.SetTraceSession(ctx, convID, sid); err != nil {
				e.logger.Warn("failed to store trace session", "conversation", convID, "error", err)
			}
		}
	}

	tid := optional(traceID)
	_, assistant, err := e.store.AppendExchange(ctx, convID,
		NewMessage{Role: models.RoleUser, Content: text, ToolUsed: string(mode), TraceID: tid},
		NewMessage{Role: models.RoleAssistant, Content: out.text, ToolUsed: out.toolUsed, TraceID: tid, Metadata: out.metadata},
	)
	if err != nil {
		e.tracer.LogError(traceID, "store", err)
		return nil, err
	}

	e.tracer.EndTrace(traceID, out.text)
	return &models.ChatResponse{
		Message:        models.MessageToView(assistant),
		ConversationID: convID,
		TraceID:        tid,
	}, nil
}

// Regenerate recomputes an assistant message's content through the same
// dispatcher, using the history up to but excluding the user message that
// prompted it, then overwrites the message in place. Identity and position
// never change; no message is inserted.
func (e *Engine) Regenerate(ctx context.Context, owner string, req models.RegenerateRequest) (*models.ChatResponse, error) {
	if req.MessageID == "" {
		return nil, fmt.Errorf("%w: message id required", ErrNotFound)
	}
	msg, err := e.store.GetMessage(ctx, owner, req.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.Role != models.RoleAssistant {
		return nil, fmt.Errorf("%w: can only regenerate assistant messages", ErrInvalidRole)
	}
	convID := models.MustRecordIDString(msg.Conversation)

	userMsg, err := e.store.PrecedingUserMessage(ctx, convID, msg.Seq)
	if err != nil {
		return nil, fmt.Errorf("original user message: %w", err)
	}
	history, err := e.store.HistoryBefore(ctx, convID, userMsg.Seq)
	if err != nil {
		return nil, err
	}

	conv, err := e.store.GetConversation(ctx, owner, convID)
	if err != nil {
		return nil, err
	}
	sessionID := ""
	if conv.TraceSessionID != nil {
		sessionID = *conv.TraceSessionID
	}

	// The user message carries the mode that was requested; the assistant's
	// ToolUsed records what actually ran, which differs after a fallback.
	mode := ParseMode(userMsg.ToolUsed)
	model := e.resolveModel(req.Model)
	traceID := e.tracer.StartTrace(sessionID, userMsg.Content, model, mode)

	windowed := Window(toChatMessages(history), e.window)
	out, err := e.dispatch(ctx, mode, model, windowed, userMsg.Content, traceID)
	if err != nil {
		e.tracer.LogError(traceID, "dispatch", err)
		return nil, err
	}

	if out.metadata == nil {
		out.metadata = map[string]any{}
	}
	out.metadata["regenerated"] = true

	tid := optional(traceID)
	updated, err := e.store.UpdateMessage(ctx, req.MessageID, out.text, out.toolUsed, tid, out.metadata)
	if err != nil {
		e.tracer.LogError(traceID, "store", err)
		return nil, err
	}

	e.tracer.EndTrace(traceID, out.text)
	return &models.ChatResponse{
		Message:        models.MessageToView(updated),
		ConversationID: convID,
		TraceID:        tid,
	}, nil
}

// dispatch selects the strategy for mode. Auto failures fall back to the
// none branch transparently: the caller sees the fallback's answer, or the
// fallback's error if that fails too. NotFound/validation errors never
// reach this point.
func (e *Engine) dispatch(ctx context.Context, mode Mode, model string, windowed []models.ChatMessage, text, traceID string) (*outcome, error) {
	switch mode {
	case ModeInternet:
		return e.internetBranch(ctx, text, traceID)
	case ModeAuto:
		out, err := e.autoBranch(ctx, model, windowed, text, traceID)
		if err == nil {
			return out, nil
		}
		e.logger.Warn("auto mode failed, falling back to direct inference", "error", err)
		e.tracer.LogError(traceID, "auto_fallback", err)
		fallback, ferr := e.noneBranch(ctx, model, windowed, text, traceID)
		if ferr != nil {
			return nil, ferr
		}
		fallback.metadata["fallback"] = true
		return fallback, nil
	default:
		return e.noneBranch(ctx, model, windowed, text, traceID)
	}
}

// noneBranch: windowed history straight to the inference service.
func (e *Engine) noneBranch(ctx context.Context, model string, windowed []models.ChatMessage, text, traceID string) (*outcome, error) {
	input := append(append([]models.ChatMessage{}, windowed...), models.ChatMessage{Role: models.RoleUser, Content: text})
	comp, err := e.completer.Complete(ctx, model, input, defaultSystemPrompt)
	if err != nil {
		return nil, err
	}
	e.tracer.LogGeneration(traceID, comp.Model, input, comp.Text, comp.PromptTokens, comp.CompletionTokens)
	return &outcome{
		text:     comp.Text,
		toolUsed: string(ModeNone),
		metadata: map[string]any{
			"model": comp.Model,
			"usage": map[string]any{
				"prompt_tokens":     comp.PromptTokens,
				"completion_tokens": comp.CompletionTokens,
			},
		},
	}, nil
}

// internetBranch: search on the raw user text, rendered deterministically.
// The inference service is never called.
func (e *Engine) internetBranch(ctx context.Context, text, traceID string) (*outcome, error) {
	result, err := e.searcher.Search(ctx, text, "basic")
	if err != nil {
		return nil, err
	}
	e.tracer.LogSearch(traceID, text, result)

	snippets := make([]map[string]any, 0, len(result.Snippets))
	for _, s := range result.Snippets {
		snippets = append(snippets, map[string]any{"title": s.Title, "url": s.URL, "content": s.Excerpt})
	}
	return &outcome{
		text:     result.Render(),
		toolUsed: string(ModeInternet),
		metadata: map[string]any{
			"source":         "internet_search",
			"search_query":   result.Query,
			"search_results": snippets,
		},
	}, nil
}

// autoBranch: the bounded agent loop.
func (e *Engine) autoBranch(ctx context.Context, model string, windowed []models.ChatMessage, text, traceID string) (*outcome, error) {
	agent, err := e.runAgent(ctx, model, windowed, text, traceID)
	if err != nil {
		return nil, err
	}
	return &outcome{
		text:     agent.Text,
		toolUsed: string(ModeAuto),
		metadata: map[string]any{
			"model":          agent.Model,
			"used_search":    agent.UsedSearch,
			"search_queries": agent.Queries,
			"iterations":     agent.Iterations,
			"usage": map[string]any{
				"prompt_tokens":     agent.PromptTokens,
				"completion_tokens": agent.CompletionTokens,
			},
		},
	}, nil
}

// resolveModel maps empty or pseudo-tool model names to the provider default.
func (e *Engine) resolveModel(model string) string {
	if model == "" || model == string(ModeAuto) || model == string(ModeInternet) {
		return e.completer.DefaultModel()
	}
	return model
}

// deriveTitle builds a conversation title from the first user message.
func deriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= titleLimit {
		return text
	}
	return string(runes[:titleLimit]) + "..."
}

func toChatMessages(history []models.Message) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(history))
	for _, m := range history {
		out = append(out, models.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
