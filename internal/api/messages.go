package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/messaging"
	"github.com/ammar1510/rideshare/internal/models"
)

// MessageHandler handles message-related routes
type MessageHandler struct {
	Messages      *messaging.Service
	Conversations *messaging.Index
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messages *messaging.Service, conversations *messaging.Index) *MessageHandler {
	return &MessageHandler{Messages: messages, Conversations: conversations}
}

// SendMessage stores a message from the caller
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, ok := viewer(c)
	if !ok {
		return
	}
	var req models.MessageRequest
	if !bindJSON(c, &req) {
		return
	}

	message, err := h.Messages.Send(c.Request.Context(), userID, req.ReceiverID, req.Content, req.TripID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

// GetThread returns the caller's thread with another user, optionally
// scoped to a trip, and marks the incoming messages read
func (h *MessageHandler) GetThread(c *gin.Context) {
	userID, ok := viewer(c)
	if !ok {
		return
	}
	otherUserID, ok := idParam(c, "userID", "user")
	if !ok {
		return
	}

	var tripID *uuid.UUID
	if raw := c.Query("trip_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, apperr.InvalidArg("Invalid trip ID"))
			return
		}
		tripID = &id
	}

	messages, err := h.Messages.LoadThread(c.Request.Context(), userID, otherUserID, tripID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// DeleteMessage hides a message from the caller only
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID, ok := viewer(c)
	if !ok {
		return
	}
	messageID, ok := idParam(c, "messageID", "message")
	if !ok {
		return
	}

	if _, err := h.Messages.Delete(c.Request.Context(), userID, messageID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
}

// GetConversations lists the caller's conversations, most recent first
func (h *MessageHandler) GetConversations(c *gin.Context) {
	userID, ok := viewer(c)
	if !ok {
		return
	}

	list, err := h.Conversations.Build(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *MessageHandler) UnreadCount(c *gin.Context) {
	userID, ok := viewer(c)
	if !ok {
		return
	}

	n, err := h.Messages.CountUnread(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n, "label": models.BadgeLabel(n)})
}
