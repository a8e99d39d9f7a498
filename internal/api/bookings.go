package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/rideshare/internal/booking"
	"github.com/ammar1510/rideshare/internal/models"
)

// BookingHandler serves trips and their bookings
type BookingHandler struct {
	Lifecycle *booking.Lifecycle
}

func NewBookingHandler(lifecycle *booking.Lifecycle) *BookingHandler {
	return &BookingHandler{Lifecycle: lifecycle}
}

// CreateTrip offers a ride driven by the caller
func (h *BookingHandler) CreateTrip(c *gin.Context) {
	userID, ok := viewer(c)
	if !ok {
		return
	}
	var req models.TripRequest
	if !bindJSON(c, &req) {
		return
	}

	trip, err := h.Lifecycle.CreateTrip(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, trip)
}

func (h *BookingHandler) GetTrip(c *gin.Context) {
	if _, ok := viewer(c); !ok {
		return
	}
	id, ok := idParam(c, "id", "trip")
	if !ok {
		return
	}

	trip, err := h.Lifecycle.GetTrip(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, trip)
}

// MyTrips lists the caller's trips as a driver, each with its bookings
func (h *BookingHandler) MyTrips(c *gin.Context) {
	userID, ok := viewer(c)
	if !ok {
		return
	}

	trips, err := h.Lifecycle.ListDriverTrips(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, trips)
}

// TripBookings lists a trip's bookings for its driver
func (h *BookingHandler) TripBookings(c *gin.Context) {
	userID, ok := viewer(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id", "trip")
	if !ok {
		return
	}

	list, err := h.Lifecycle.ListForTrip(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// CreateBooking requests seats on a trip for the caller
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userID, ok := viewer(c)
	if !ok {
		return
	}
	var req models.BookingRequest
	if !bindJSON(c, &req) {
		return
	}

	b, err := h.Lifecycle.Create(c.Request.Context(), userID, req.TripID, req.Seats)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// MyBookings lists the caller's bookings with their trip and driver
func (h *BookingHandler) MyBookings(c *gin.Context) {
	userID, ok := viewer(c)
	if !ok {
		return
	}

	list, err := h.Lifecycle.ListPassengerBookings(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// SetStatus lets the driver confirm or decline a pending booking
func (h *BookingHandler) SetStatus(c *gin.Context) {
	userID, ok := viewer(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id", "booking")
	if !ok {
		return
	}
	var req models.BookingStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	b, err := h.Lifecycle.SetStatus(c.Request.Context(), userID, id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
