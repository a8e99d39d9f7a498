package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification is a system-generated message addressed to one user.
// The related ids are only used for deep links.
type Notification struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	Message          string     `json:"message"`
	Read             bool       `json:"read"`
	CreatedAt        time.Time  `json:"created_at"`
	RelatedTripID    *uuid.UUID `json:"related_trip_id"`
	RelatedBookingID *uuid.UUID `json:"related_booking_id"`
}

func (n *Notification) Clone() *Notification {
	c := *n
	if n.RelatedTripID != nil {
		id := *n.RelatedTripID
		c.RelatedTripID = &id
	}
	if n.RelatedBookingID != nil {
		id := *n.RelatedBookingID
		c.RelatedBookingID = &id
	}
	return &c
}
