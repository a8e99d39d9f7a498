package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/rideshare/internal/realtime"
	"github.com/ammar1510/rideshare/internal/websocket"
)

// Handlers groups everything the router serves
type Handlers struct {
	Auth          *AuthHandler
	Profiles      *ProfileHandler
	Messages      *MessageHandler
	Notifications *NotificationHandler
	Bookings      *BookingHandler
	WS            *websocket.Manager
	Hub           *realtime.Hub
}

// RegisterRoutes mounts the API on router
func RegisterRoutes(router *gin.Engine, h Handlers) {
	started := time.Now()
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(started).Round(time.Second).String(),
			"realtime": h.Hub.Stats(),
		})
	})

	api := router.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.POST("/register", h.Auth.Register)
	authRoutes.POST("/login", h.Auth.Login)
	authRoutes.GET("/me", AuthMiddleware(), h.Auth.GetMe)

	// websocket clients pass the token as a query parameter
	api.GET("/ws", TokenAuthMiddleware(), h.WS.HandleWebSocket)

	protected := api.Group("")
	protected.Use(AuthMiddleware())
	{
		protected.GET("/profiles/:id", h.Profiles.Get)
		protected.PATCH("/profiles/me", h.Profiles.UpdateMe)

		protected.POST("/messages", h.Messages.SendMessage)
		protected.GET("/messages/conversations", h.Messages.GetConversations)
		protected.GET("/messages/unread-count", h.Messages.UnreadCount)
		protected.GET("/messages/thread/:userID", h.Messages.GetThread)
		protected.DELETE("/messages/:messageID", h.Messages.DeleteMessage)

		protected.GET("/notifications", h.Notifications.List)
		protected.GET("/notifications/unread-count", h.Notifications.UnreadCount)
		protected.PUT("/notifications/read-all", h.Notifications.MarkAllRead)
		protected.PUT("/notifications/:id/read", h.Notifications.MarkRead)

		protected.POST("/trips", h.Bookings.CreateTrip)
		protected.GET("/trips", h.Bookings.MyTrips)
		protected.GET("/trips/:id", h.Bookings.GetTrip)
		protected.GET("/trips/:id/bookings", h.Bookings.TripBookings)
		protected.POST("/bookings", h.Bookings.CreateBooking)
		protected.GET("/bookings", h.Bookings.MyBookings)
		protected.PUT("/bookings/:id/status", h.Bookings.SetStatus)
	}
}
