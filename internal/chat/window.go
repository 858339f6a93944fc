package chat

import "github.com/raphaelgruber/parley-go/internal/models"

// DefaultWindow is the default maximum number of history messages replayed
// to the inference service.
const DefaultWindow = 10

// Window returns the at most w most recent messages from history, oldest
// first. The input is assumed oldest-first; the result preserves that order.
// Pure: the same snapshot always yields the same window, so every caller in
// one request (direct branches, each agent iteration) sees identical context.
//
// System prompts are not part of the window and are prepended by the
// inference adapter without counting against w.
func Window(history []models.ChatMessage, w int) []models.ChatMessage {
	if w <= 0 {
		w = DefaultWindow
	}
	if len(history) <= w {
		out := make([]models.ChatMessage, len(history))
		copy(out, history)
		return out
	}
	out := make([]models.ChatMessage, w)
	copy(out, history[len(history)-w:])
	return out
}
