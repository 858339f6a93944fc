package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/parley-go/internal/chat"
	"github.com/raphaelgruber/parley-go/internal/models"
)

// respondError maps engine errors onto HTTP status codes with a single
// structured error body. Adapter error text stays server-side, only the
// sentinel class is reported.
func (s *Server) respondError(c *gin.Context, err error) {
	var status int
	var message string

	switch {
	case errors.Is(err, chat.ErrNotFound):
		status, message = http.StatusNotFound, "not found"
	case errors.Is(err, chat.ErrEmptyMessage):
		status, message = http.StatusUnprocessableEntity, "message must not be empty"
	case errors.Is(err, chat.ErrInvalidRole):
		status, message = http.StatusUnprocessableEntity, "only assistant messages can be regenerated"
	case errors.Is(err, chat.ErrModelNotFound):
		status, message = http.StatusBadGateway, "requested model is not available"
	case errors.Is(err, chat.ErrNotConfigured):
		status, message = http.StatusBadGateway, "search service is not configured"
	case errors.Is(err, chat.ErrRateLimited):
		status, message = http.StatusBadGateway, "search service rate limit exceeded"
	case errors.Is(err, chat.ErrUnreachable):
		status, message = http.StatusBadGateway, "upstream service unreachable"
	case errors.Is(err, chat.ErrTimeout):
		status, message = http.StatusGatewayTimeout, "upstream service timed out"
	default:
		status, message = http.StatusInternalServerError, "internal error"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request error", "error", err)
	} else {
		s.logger.Debug("request error", "error", err)
	}
	c.JSON(status, gin.H{"error": message})
}

func (s *Server) handleSend(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := s.engine.Send(c.Request.Context(), owner(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRegenerate(c *gin.Context) {
	var req models.RegenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := s.engine.Regenerate(c.Request.Context(), owner(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListModels(c *gin.Context) {
	list, err := s.llm.ListModels(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	// Pseudo-tools select a mode rather than a model.
	list = append(list,
		models.ModelInfo{Name: "internet", Type: "tool", Description: "Answer from a live web search"},
		models.ModelInfo{Name: "auto", Type: "tool", Description: "Let the agent decide when to search"},
	)
	c.JSON(http.StatusOK, gin.H{"models": list})
}

func (s *Server) handleListConversations(c *gin.Context) {
	convs, err := s.store.ListConversations(c.Request.Context(), owner(c))
	if err != nil {
		s.respondError(c, err)
		return
	}

	views := make([]models.ConversationView, 0, len(convs))
	for i := range convs {
		views = append(views, models.ConversationToView(&convs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"conversations": views})
}

func (s *Server) handleGetConversation(c *gin.Context) {
	conv, err := s.store.GetConversation(c.Request.Context(), owner(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ConversationToView(conv))
}

func (s *Server) handleListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	// Ownership check before reading messages.
	if _, err := s.store.GetConversation(ctx, owner(c), id); err != nil {
		s.respondError(c, err)
		return
	}

	history, err := s.store.History(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	views := make([]models.MessageView, 0, len(history))
	for i := range history {
		views = append(views, models.MessageToView(&history[i]))
	}
	c.JSON(http.StatusOK, gin.H{"messages": views})
}

func (s *Server) handleExportConversation(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	conv, err := s.store.GetConversation(ctx, owner(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	history, err := s.store.History(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	views := make([]models.MessageView, 0, len(history))
	for i := range history {
		views = append(views, models.MessageToView(&history[i]))
	}

	switch c.DefaultQuery("format", "json") {
	case "json":
		c.JSON(http.StatusOK, models.ConversationExport{
			Conversation: models.ConversationToView(conv),
			Messages:     views,
		})
	case "markdown":
		c.JSON(http.StatusOK, models.MarkdownExport{
			Content:  renderMarkdownExport(conv, views),
			Filename: "conversation_" + id + ".md",
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or markdown"})
	}
}

// renderMarkdownExport lays out a conversation as a readable document:
// title and timestamps up front, then one section per message.
func renderMarkdownExport(conv *models.Conversation, messages []models.MessageView) string {
	const timeLayout = "2006-01-02 15:04:05"

	var b strings.Builder
	title := conv.Title
	if title == "" {
		title = "Conversation " + models.MustRecordIDString(conv.ID)
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "**Created:** %s\n", conv.CreatedAt.Format(timeLayout))
	fmt.Fprintf(&b, "**Updated:** %s\n\n", conv.UpdatedAt.Format(timeLayout))
	b.WriteString("---\n\n")

	for _, msg := range messages {
		fmt.Fprintf(&b, "## %s\n\n", roleHeading(msg.Role))
		fmt.Fprintf(&b, "%s\n\n", msg.Content)
		if msg.ToolUsed != "" && msg.ToolUsed != "none" {
			fmt.Fprintf(&b, "*Tool used: %s*\n\n", msg.ToolUsed)
		}
		fmt.Fprintf(&b, "*%s*\n\n---\n\n", msg.CreatedAt.Format(timeLayout))
	}
	return b.String()
}

func roleHeading(role string) string {
	switch role {
	case models.RoleUser:
		return "User"
	case models.RoleAssistant:
		return "Assistant"
	case models.RoleSystem:
		return "System"
	}
	return role
}

func (s *Server) handleRenameConversation(c *gin.Context) {
	var req struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	conv, err := s.store.UpdateConversationTitle(c.Request.Context(), owner(c), c.Param("id"), req.Title)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ConversationToView(conv))
}

func (s *Server) handleDeleteConversation(c *gin.Context) {
	if err := s.store.DeleteConversation(c.Request.Context(), owner(c), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteMessage(c *gin.Context) {
	if err := s.store.DeleteMessage(c.Request.Context(), owner(c), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	dbOK := s.dbState.Healthy(ctx)
	llmOK := s.llm.Healthy(ctx)

	status := "ok"
	if !dbOK || !llmOK {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"components": gin.H{
			"database":          dbOK,
			"llm":               llmOK,
			"search_configured": s.search.Configured(),
		},
		"stats": s.metrics.Snapshot(),
	})
}
