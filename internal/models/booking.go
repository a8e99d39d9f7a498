package models

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Terminal reports whether no transition leaves the status
func (s BookingStatus) Terminal() bool {
	return s == BookingConfirmed || s == BookingCancelled
}

// Booking is a seat reservation made by a passenger on a trip
type Booking struct {
	ID          uuid.UUID     `json:"id"`
	TripID      uuid.UUID     `json:"trip_id"`
	PassengerID uuid.UUID     `json:"passenger_id"`
	Seats       int           `json:"seats"`
	Status      BookingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   *time.Time    `json:"updated_at,omitempty"`
}

// BookingRequest is the structure for booking creation requests
type BookingRequest struct {
	TripID uuid.UUID `json:"trip_id" binding:"required"`
	Seats  int       `json:"seats"`
}

// BookingStatusRequest is the structure for confirm/decline requests
type BookingStatusRequest struct {
	Status BookingStatus `json:"status" binding:"required"`
}

// PassengerBooking is a booking as its passenger sees it: with the trip and
// the driver's profile. Driver is nil when the profile could not be loaded.
type PassengerBooking struct {
	Booking
	Trip   *Trip    `json:"trip"`
	Driver *Profile `json:"driver"`
}
