package models

import (
	"time"

	"github.com/google/uuid"
)

// Trip is a ride offered by a driver
type Trip struct {
	ID             uuid.UUID `json:"id"`
	DriverID       uuid.UUID `json:"driver_id"`
	Origin         string    `json:"origin"`
	Destination    string    `json:"destination"`
	DepartureDate  time.Time `json:"departure_date"`
	Price          float64   `json:"price"`
	SeatsAvailable int       `json:"seats_available"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TripRequest is the structure for offering a ride
type TripRequest struct {
	Origin         string    `json:"origin" binding:"required"`
	Destination    string    `json:"destination" binding:"required"`
	DepartureDate  time.Time `json:"departure_date" binding:"required"`
	Price          float64   `json:"price" binding:"min=0"`
	SeatsAvailable int       `json:"seats_available" binding:"required,min=1"`
	Description    string    `json:"description"`
}

// DriverTrip is one of the driver's own trips with every booking on it
type DriverTrip struct {
	Trip
	Bookings []*Booking `json:"bookings"`
}
