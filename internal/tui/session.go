// Package tui implements the interactive chat terminal UI. session.go is
// the pure client-side view state: optimistic sends, reconciliation with
// server results, and epoch guards against conversation switches racing
// in-flight requests.
package tui

import (
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/parley-go/internal/models"
)

// pendingPrefix marks client-generated placeholder ids. A real server id
// never carries it.
const pendingPrefix = "pending-"

// draftKey indexes the history of the not-yet-created conversation.
const draftKey = ""

// Pending identifies one in-flight send: the placeholder message, the
// conversation it was issued against (draftKey for a new one) and the
// view epoch it belongs to.
type Pending struct {
	MessageID      string
	ConversationID string
	Epoch          int64
}

// Session is the immutable client view state. Every transition returns a
// new Session; histories are copied on write so a caller can hold old
// snapshots safely.
//
// Epoch increments on every conversation switch. A send result carrying a
// stale epoch still reconciles the stored history it belongs to, but never
// touches what is currently rendered.
type Session struct {
	Conversations []models.ConversationView
	Current       string // draftKey when composing a new conversation
	Epoch         int64

	histories map[string][]models.MessageView
	pending   map[string]Pending // keyed by placeholder id
}

// NewSession creates an empty session positioned on a new draft
// conversation.
func NewSession(conversations []models.ConversationView) Session {
	return Session{
		Conversations: conversations,
		Current:       draftKey,
		histories:     map[string][]models.MessageView{},
		pending:       map[string]Pending{},
	}
}

func (s Session) cloneHistories() map[string][]models.MessageView {
	out := make(map[string][]models.MessageView, len(s.histories))
	for k, v := range s.histories {
		out[k] = v
	}
	return out
}

func (s Session) clonePending() map[string]Pending {
	out := make(map[string]Pending, len(s.pending))
	for k, v := range s.pending {
		out[k] = v
	}
	return out
}

// Messages returns the rendered history of the current conversation,
// optimistic placeholders included.
func (s Session) Messages() []models.MessageView {
	return s.histories[s.Current]
}

// History returns the stored history of any conversation.
func (s Session) History(conversationID string) []models.MessageView {
	return s.histories[conversationID]
}

// HasPending reports whether a send is in flight for the current view.
func (s Session) HasPending() bool {
	for _, p := range s.pending {
		if p.ConversationID == s.Current && p.Epoch == s.Epoch {
			return true
		}
	}
	return false
}

// SetHistory replaces the stored history of a conversation, normally after
// a fetch from the server.
func (s Session) SetHistory(conversationID string, history []models.MessageView) Session {
	s.histories = s.cloneHistories()
	s.histories[conversationID] = history
	return s
}

// SwitchTo moves the view to another conversation and bumps the epoch, so
// results of in-flight sends cannot mutate the new view.
func (s Session) SwitchTo(conversationID string) Session {
	s.Current = conversationID
	s.Epoch++
	return s
}

// StartNew moves the view to a fresh draft conversation.
func (s Session) StartNew() Session {
	s = s.SwitchTo(draftKey)
	s.histories = s.cloneHistories()
	s.histories[draftKey] = nil
	return s
}

// StartSend inserts the optimistic user message into the current view and
// registers the in-flight send. The placeholder is rendered immediately;
// the input field is cleared by the caller only after this transition, so
// a failed send can restore it.
func (s Session) StartSend(text, mode string) (Session, Pending) {
	p := Pending{
		MessageID:      pendingPrefix + uuid.NewString(),
		ConversationID: s.Current,
		Epoch:          s.Epoch,
	}

	placeholder := models.MessageView{
		ID:             p.MessageID,
		ConversationID: s.Current,
		Role:           models.RoleUser,
		Content:        text,
		ToolUsed:       mode,
		CreatedAt:      time.Now(),
	}

	s.histories = s.cloneHistories()
	s.histories[s.Current] = append(append([]models.MessageView{}, s.histories[s.Current]...), placeholder)

	s.pending = s.clonePending()
	s.pending[p.MessageID] = p
	return s, p
}

// ApplySendResult reconciles a successful send. The placeholder is
// confirmed in place and the assistant reply appended. When the send was
// issued from a draft, only this send's placeholder is restamped onto the
// server-assigned conversation id; a newer draft may already occupy the
// draft key and must stay untouched. The view follows the restamp only if
// the user is still on that draft (same epoch). A stale-epoch result
// updates stored history without touching the rendered view.
func (s Session) ApplySendResult(p Pending, resp *models.ChatResponse) Session {
	if _, known := s.pending[p.MessageID]; !known {
		return s
	}

	source := p.ConversationID
	target := resp.ConversationID

	s.histories = s.cloneHistories()
	s.pending = s.clonePending()
	delete(s.pending, p.MessageID)

	if source == target {
		history := append([]models.MessageView{}, s.histories[source]...)
		history = append(history, resp.Message)
		s.histories[source] = history
		return s
	}

	// Draft restamp: lift this send's placeholder out of the draft history
	// and leave everything else where it is.
	var placeholder *models.MessageView
	remaining := make([]models.MessageView, 0, len(s.histories[source]))
	for _, msg := range s.histories[source] {
		if msg.ID == p.MessageID {
			confirmed := msg
			confirmed.ConversationID = target
			placeholder = &confirmed
			continue
		}
		remaining = append(remaining, msg)
	}

	history := append([]models.MessageView{}, s.histories[target]...)
	if placeholder != nil {
		history = append(history, *placeholder)
	}
	history = append(history, resp.Message)
	s.histories[target] = history

	if len(remaining) == 0 {
		delete(s.histories, source)
	} else {
		s.histories[source] = remaining
	}

	// Follow the restamped draft only if the user has not moved on.
	if source == draftKey && s.Current == draftKey && p.Epoch == s.Epoch {
		s.Current = target
	}
	return s
}

// ApplySendError rolls back the optimistic placeholder. Keyed on the
// placeholder id, so applying the same failure twice is a no-op and the
// rollback happens exactly once.
func (s Session) ApplySendError(p Pending) Session {
	if _, known := s.pending[p.MessageID]; !known {
		return s
	}

	history := s.histories[p.ConversationID]
	kept := make([]models.MessageView, 0, len(history))
	for _, msg := range history {
		if msg.ID != p.MessageID {
			kept = append(kept, msg)
		}
	}

	s.histories = s.cloneHistories()
	s.histories[p.ConversationID] = kept

	s.pending = s.clonePending()
	delete(s.pending, p.MessageID)
	return s
}

// ReplaceMessage swaps a message in the stored history of its
// conversation, used after a regeneration.
func (s Session) ReplaceMessage(conversationID string, updated models.MessageView) Session {
	history := append([]models.MessageView{}, s.histories[conversationID]...)
	for i := range history {
		if history[i].ID == updated.ID {
			history[i] = updated
			break
		}
	}
	s.histories = s.cloneHistories()
	s.histories[conversationID] = history
	return s
}

// SetConversations replaces the conversation list.
func (s Session) SetConversations(conversations []models.ConversationView) Session {
	s.Conversations = conversations
	return s
}
