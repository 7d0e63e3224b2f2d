package handlers

import (
	"net/http"
	"strings"

	"crispr-agent/web/format"
	"crispr-agent/web/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ChatHandler struct {
	chat   *services.ChatService
	logger *zap.Logger
}

type ChatRequest struct {
	Message   string `json:"message" form:"message"`
	SessionID string `json:"session_id" form:"session_id"`
}

type ChatResponse struct {
	SessionID  string `json:"session_id"`
	Answer     string `json:"answer"`
	AnswerHTML string `json:"answer_html"`
	Title      string `json:"title"`
}

func NewChatHandler(chat *services.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chat:   chat,
		logger: logger,
	}
}

// SendMessage runs one turn: submit(text, sessionId) -> assistant answer.
// A missing session id starts a new session.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message must not be empty"})
		return
	}

	sessionID := uuid.New()
	if req.SessionID != "" {
		parsed, err := uuid.Parse(req.SessionID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
			return
		}
		sessionID = parsed
	}

	result, err := h.chat.HandleMessage(c.Request.Context(), sessionID, req.Message)
	if err != nil {
		h.logger.Error("Turn failed",
			zap.Error(err),
			zap.String("session_id", sessionID.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "the assistant could not complete this turn"})
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		SessionID:  sessionID.String(),
		Answer:     result.Answer,
		AnswerHTML: format.RenderHTML(result.Answer),
		Title:      result.Session.Title,
	})
}

// ListSessions returns active sessions, most recent first.
func (h *ChatHandler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.chat.Sessions(c.Request.Context())})
}

// GetMessages returns the ordered history for one session.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	history, err := h.chat.History(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to load history",
			zap.Error(err),
			zap.String("session_id", sessionID.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load session history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": history})
}
