package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/avenika/study-helper/internal/chat"
	"github.com/avenika/study-helper/internal/models"
	"github.com/avenika/study-helper/internal/storage"
)

type chatHandler struct {
	chat   *chat.Service
	logger *zap.Logger
}

type sessionOut struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

func toSessionOut(s *models.ChatSession) sessionOut {
	return sessionOut{ID: s.ID, Title: s.Title, CreatedAt: s.CreatedAt}
}

func (h *chatHandler) createSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	// An absent body means an untitled session.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	session, err := h.chat.CreateSession(c.Request.Context(), user, req.Title)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionOut(session))
}

func (h *chatHandler) listSessions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessions, err := h.chat.Sessions(c.Request.Context(), user)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]sessionOut, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionOut(s))
	}
	c.JSON(http.StatusOK, out)
}

func (h *chatHandler) renameSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	var req struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	session, err := h.chat.RenameSession(c.Request.Context(), user, sessionID, req.Title)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionOut(session))
}

func (h *chatHandler) deleteSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	if err := h.chat.DeleteSession(c.Request.Context(), user, sessionID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type historyItem struct {
	Sender    models.Sender `json:"sender"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
}

func (h *chatHandler) history(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, err := strconv.ParseInt(c.Query("session_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session ID required."})
		return
	}

	messages, err := h.chat.History(c.Request.Context(), user, sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]historyItem, 0, len(messages))
	for _, m := range messages {
		out = append(out, historyItem{Sender: m.Sender, Text: m.Content, Timestamp: m.Timestamp})
	}
	c.JSON(http.StatusOK, out)
}

func (h *chatHandler) ask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, err := strconv.ParseInt(c.PostForm("session_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session ID required."})
		return
	}

	input := chat.AskInput{SessionID: sessionID, Message: c.PostForm("message")}
	if file, err := c.FormFile("file"); err == nil {
		image, err := readAttachment(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
			return
		}
		input.Image = image
	}

	reply, err := h.chat.Ask(c.Request.Context(), user, input)
	switch {
	case errors.Is(err, chat.ErrNoInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No input provided."})
	case errors.Is(err, chat.ErrMessageTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message too long"})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case err != nil:
		h.logger.Error("ask failed", zap.Error(err), zap.Int64("user_id", user.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "AI service is currently unavailable. Please try again later."})
	default:
		c.JSON(http.StatusOK, gin.H{"response": reply})
	}
}

func readAttachment(file *multipart.FileHeader) (*chat.ImageAttachment, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &chat.ImageAttachment{
		Filename: file.Filename,
		MIME:     file.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

// fail maps service errors onto transport errors.
func (h *chatHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	h.logger.Error("chat request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
