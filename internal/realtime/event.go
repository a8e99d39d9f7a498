package realtime

import (
	"github.com/google/uuid"

	"github.com/ammar1510/rideshare/internal/models"
)

// Kind is the type of row change carried by an Event
type Kind string

const (
	Insert Kind = "INSERT"
	Update Kind = "UPDATE"
)

// Collection names a backend table that emits change events
type Collection string

const (
	Messages      Collection = "messages"
	Notifications Collection = "notifications"
	Bookings      Collection = "bookings"
)

// Filterable columns
const (
	FieldSenderID    = "sender_id"
	FieldReceiverID  = "receiver_id"
	FieldUserID      = "user_id"
	FieldPassengerID = "passenger_id"
	FieldTripID      = "trip_id"
)

// Event is one change on a collection. Exactly one row pointer is set,
// matching Collection.
type Event struct {
	Kind         Kind
	Collection   Collection
	Message      *models.Message
	Notification *models.Notification
	Booking      *models.Booking
}

func MessageEvent(kind Kind, m *models.Message) Event {
	return Event{Kind: kind, Collection: Messages, Message: m}
}

func NotificationEvent(kind Kind, n *models.Notification) Event {
	return Event{Kind: kind, Collection: Notifications, Notification: n}
}

func BookingEvent(kind Kind, b *models.Booking) Event {
	return Event{Kind: kind, Collection: Bookings, Booking: b}
}

// Field returns the value of an id column of the event's row
func (e Event) Field(name string) (uuid.UUID, bool) {
	switch e.Collection {
	case Messages:
		if e.Message == nil {
			return uuid.Nil, false
		}
		switch name {
		case FieldSenderID:
			return e.Message.SenderID, true
		case FieldReceiverID:
			return e.Message.ReceiverID, true
		case FieldTripID:
			if e.Message.TripID != nil {
				return *e.Message.TripID, true
			}
		}
	case Notifications:
		if e.Notification != nil && name == FieldUserID {
			return e.Notification.UserID, true
		}
	case Bookings:
		if e.Booking == nil {
			return uuid.Nil, false
		}
		switch name {
		case FieldPassengerID:
			return e.Booking.PassengerID, true
		case FieldTripID:
			return e.Booking.TripID, true
		}
	}
	return uuid.Nil, false
}

// Topic is a collection plus an optional equality filter on one column.
// An empty Field matches every row of the collection.
type Topic struct {
	Collection Collection
	Field      string
	Value      uuid.UUID
}

func (t Topic) Matches(e Event) bool {
	if e.Collection != t.Collection {
		return false
	}
	if t.Field == "" {
		return true
	}
	v, ok := e.Field(t.Field)
	return ok && v == t.Value
}

func MessagesTo(receiverID uuid.UUID) Topic {
	return Topic{Collection: Messages, Field: FieldReceiverID, Value: receiverID}
}

func MessagesFrom(senderID uuid.UUID) Topic {
	return Topic{Collection: Messages, Field: FieldSenderID, Value: senderID}
}

func NotificationsFor(userID uuid.UUID) Topic {
	return Topic{Collection: Notifications, Field: FieldUserID, Value: userID}
}
