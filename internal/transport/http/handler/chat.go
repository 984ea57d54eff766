package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"anonchat/internal/app"
	"anonchat/internal/store"
	"anonchat/internal/transport/http/middleware"
	"anonchat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "identity not resolved")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	views, err := h.chatService.Messages(ctx, userID)
	if err != nil {
		writeChatError(c, err, "list messages failed")
		return
	}
	response.OK(c, gin.H{"messages": views})
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "identity not resolved")
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.Send(c.Request.Context(), userID, req.Text)
	if err != nil {
		writeChatError(c, err, "send message failed")
		return
	}
	response.OK(c, result)
}

func writeChatError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrMessageEmpty):
		response.Error(c, http.StatusBadRequest, response.CodeMessageEmpty, err.Error())
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrServiceClosed), errors.Is(err, store.ErrClosed):
		response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, "chat unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, "message store timed out")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
