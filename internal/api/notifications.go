package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/rideshare/internal/models"
	"github.com/ammar1510/rideshare/internal/notifications"
)

type NotificationHandler struct {
	Store *notifications.Store
}

func NewNotificationHandler(store *notifications.Store) *NotificationHandler {
	return &NotificationHandler{Store: store}
}

// List returns the caller's notifications, newest first
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := viewer(c)
	if !ok {
		return
	}

	list, err := h.Store.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := viewer(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id", "notification")
	if !ok {
		return
	}

	if err := h.Store.MarkRead(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := viewer(c)
	if !ok {
		return
	}

	n, err := h.Store.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := viewer(c)
	if !ok {
		return
	}

	n, err := h.Store.CountUnread(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n, "label": models.BadgeLabel(n)})
}
