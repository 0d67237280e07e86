package routes

import (
	"errors"
	"net/http"
	"strings"

	"github.com/polisight/backend/internal/server/middleware"
	"github.com/polisight/backend/pkg/conversation"
	"github.com/polisight/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

type conversationResponse struct {
	Message        string                 `json:"message,omitempty"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	Messages       []conversation.Message `json:"messages,omitempty"`
}

func PostMessageHandler(c echo.Context) error {
	type postMessageParams struct {
		ConversationID string `param:"id" validate:"required"`
		Text           string `json:"text" validate:"required"`
	}

	params := new(postMessageParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, conversationResponse{Message: "Invalid request params"})
	}
	params.Text = strings.TrimSpace(params.Text)
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, conversationResponse{Message: "text is required"})
	}

	svc := c.(*middleware.AppContext).App.Service
	reply, err := svc.ProcessMessage(c.Request().Context(), params.ConversationID, params.Text)
	if err != nil {
		if errors.Is(err, conversation.ErrInvalidID) {
			return c.JSON(http.StatusBadRequest, conversationResponse{Message: "Invalid conversation id"})
		}
		logger.Error("[Server] Failed to answer message", "conversation_id", params.ConversationID, "err", err)
		return c.JSON(http.StatusInternalServerError, conversationResponse{Message: "Internal server error"})
	}
	return c.JSON(http.StatusOK, reply)
}

func GetConversationHandler(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, conversationResponse{Message: "conversation id is required"})
	}

	svc := c.(*middleware.AppContext).App.Service
	history, err := svc.GetConversationHistory(c.Request().Context(), id)
	if err != nil {
		logger.Error("[Server] Failed to load conversation", "conversation_id", id, "err", err)
		return c.JSON(http.StatusInternalServerError, conversationResponse{Message: "Internal server error"})
	}
	return c.JSON(http.StatusOK, conversationResponse{ConversationID: id, Messages: history})
}

func DeleteConversationHandler(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, conversationResponse{Message: "conversation id is required"})
	}

	svc := c.(*middleware.AppContext).App.Service
	if err := svc.ClearConversation(c.Request().Context(), id); err != nil {
		logger.Error("[Server] Failed to clear conversation", "conversation_id", id, "err", err)
		return c.JSON(http.StatusInternalServerError, conversationResponse{Message: "Internal server error"})
	}
	return c.JSON(http.StatusOK, conversationResponse{Message: "Conversation cleared", ConversationID: id})
}
