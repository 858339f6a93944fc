package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/parley-go/internal/models"
)

// DefaultMaxIterations is the agent loop's default iteration ceiling.
const DefaultMaxIterations = 5

// agentPhase is the explicit state of the reason-act loop:
// deciding -> toolCall -> observing -> deciding | finalizing.
type agentPhase int

const (
	phaseDeciding agentPhase = iota
	phaseToolCall
	phaseObserving
	phaseFinalizing
)

// Decision directive markers. Each iteration the model is prompted to
// reply with exactly one of these prefixes.
const (
	searchMarker = "SEARCH:"
	finalMarker  = "FINAL:"
)

const decidePrompt = `You are a helpful AI assistant with access to a single tool: internet search.
Decide whether answering the user requires external information.
Reply with exactly one line:
  SEARCH: <search query>   to look something up, or
  FINAL: <your answer>     to answer directly from what you know and the observations so far.`

const finalizePrompt = `You are a helpful AI assistant.
Answer the user now using the conversation and the observations so far.
Reply with the answer only.`

// agentOutcome is the result of a completed agent run.
type agentOutcome struct {
	Text             string
	Model            string
	UsedSearch       bool
	Iterations       int
	Queries          []string
	PromptTokens     int
	CompletionTokens int
}

// runAgent executes the bounded reason-act loop. Iterations are strictly
// sequential: each decision depends on the previous observation. Any
// adapter failure aborts the loop, except an ErrNotConfigured search
// failure, which disables the tool and forces a final-answer attempt.
func (e *Engine) runAgent(ctx context.Context, model string, windowed []models.ChatMessage, prompt, traceID string) (*agentOutcome, error) {
	maxIter := e.maxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	transcript := make([]models.ChatMessage, 0, len(windowed)+2*maxIter+1)
	transcript = append(transcript, windowed...)
	transcript = append(transcript, models.ChatMessage{Role: models.RoleUser, Content: prompt})

	out := &agentOutcome{Model: model}
	phase := phaseDeciding
	iteration := 1
	var query string

	for {
		switch phase {
		case phaseDeciding:
			if iteration > maxIter {
				phase = phaseFinalizing
				continue
			}
			comp, err := e.completer.Complete(ctx, model, transcript, decidePrompt)
			if err != nil {
				return nil, fmt.Errorf("agent decision %d: %w", iteration, err)
			}
			out.PromptTokens += comp.PromptTokens
			out.CompletionTokens += comp.CompletionTokens

			decision := strings.TrimSpace(comp.Text)
			if q, ok := parseDirective(decision, searchMarker); ok {
				query = q
				e.tracer.LogAgentStep(traceID, iteration, "search", q)
				phase = phaseToolCall
				continue
			}
			// A FINAL directive or anything unparseable terminates the
			// loop with the text as the best-effort answer.
			answer := decision
			if a, ok := parseDirective(decision, finalMarker); ok {
				answer = a
			}
			e.tracer.LogAgentStep(traceID, iteration, "final", answer)
			out.Text = answer
			out.Iterations = iteration
			return out, nil

		case phaseToolCall:
			result, err := e.searcher.Search(ctx, query, "basic")
			if err != nil {
				if errors.Is(err, ErrNotConfigured) {
					// Tool unavailable: answer from the transcript alone.
					e.tracer.LogAgentStep(traceID, iteration, "tool_unavailable", err.Error())
					phase = phaseFinalizing
					continue
				}
				return nil, fmt.Errorf("agent search %d: %w", iteration, err)
			}
			out.UsedSearch = true
			out.Queries = append(out.Queries, query)
			e.tracer.LogSearch(traceID, query, result)
			transcript = append(transcript, models.ChatMessage{
				Role:    models.RoleUser,
				Content: fmt.Sprintf("Observation for %q:\n%s", query, result.Render()),
			})
			phase = phaseObserving

		case phaseObserving:
			iteration++
			phase = phaseDeciding

		case phaseFinalizing:
			comp, err := e.completer.Complete(ctx, model, transcript, finalizePrompt)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrAgentExhausted, err)
			}
			out.PromptTokens += comp.PromptTokens
			out.CompletionTokens += comp.CompletionTokens
			answer := strings.TrimSpace(comp.Text)
			if answer == "" {
				return nil, fmt.Errorf("%w: empty final answer", ErrAgentExhausted)
			}
			e.tracer.LogAgentStep(traceID, iteration, "final", answer)
			out.Text = answer
			if iteration > maxIter {
				out.Iterations = maxIter
			} else {
				out.Iterations = iteration
			}
			return out, nil
		}
	}
}

// parseDirective extracts the payload of a "MARKER: text" decision line.
func parseDirective(s, marker string) (string, bool) {
	if !strings.HasPrefix(s, marker) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(s, marker)), true
}
