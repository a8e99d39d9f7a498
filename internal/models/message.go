package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a chat message between two participants, optionally
// scoped to a trip. Rows are never removed; each side hides a message from
// itself with its own tombstone flag.
type Message struct {
	ID                uuid.UUID  `json:"id"`
	SenderID          uuid.UUID  `json:"sender_id"`
	ReceiverID        uuid.UUID  `json:"receiver_id"`
	Content           string     `json:"content"`
	CreatedAt         time.Time  `json:"created_at"`
	Read              bool       `json:"read"`
	TripID            *uuid.UUID `json:"trip_id"`
	DeletedBySender   bool       `json:"deleted_by_sender"`
	DeletedByReceiver bool       `json:"deleted_by_receiver"`
}

// ParticipantRole is the side of a message a user is on
type ParticipantRole string

const (
	RoleSender   ParticipantRole = "sender"
	RoleReceiver ParticipantRole = "receiver"
)

// RoleOf returns the role userID plays in the message. When a user messages
// themselves the sender role wins.
func (m *Message) RoleOf(userID uuid.UUID) (ParticipantRole, bool) {
	switch userID {
	case m.SenderID:
		return RoleSender, true
	case m.ReceiverID:
		return RoleReceiver, true
	}
	return "", false
}

// VisibleTo reports whether the message is shown to userID: the user must be a
// participant and must not have set their own tombstone flag.
func (m *Message) VisibleTo(userID uuid.UUID) bool {
	if userID != m.SenderID && userID != m.ReceiverID {
		return false
	}
	if userID == m.SenderID && m.DeletedBySender {
		return false
	}
	if userID == m.ReceiverID && m.DeletedByReceiver {
		return false
	}
	return true
}

// UnreadFor reports whether the message counts as unread for userID
func (m *Message) UnreadFor(userID uuid.UUID) bool {
	return m.ReceiverID == userID && !m.Read && m.VisibleTo(userID)
}

// Counterparty returns the other participant from userID's point of view
func (m *Message) Counterparty(userID uuid.UUID) uuid.UUID {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// InTrip reports whether the message belongs to the given trip scope.
// A nil scope matches every message.
func (m *Message) InTrip(tripID *uuid.UUID) bool {
	if tripID == nil {
		return true
	}
	return m.TripID != nil && *m.TripID == *tripID
}

// Clone returns a deep copy safe to hand out of a store
func (m *Message) Clone() *Message {
	c := *m
	if m.TripID != nil {
		id := *m.TripID
		c.TripID = &id
	}
	return &c
}

// Merge folds another copy of the same row into m. Read and the tombstone
// flags only move from false to true, so copies are combined with OR and the
// result does not depend on delivery order.
func (m *Message) Merge(other *Message) {
	m.Read = m.Read || other.Read
	m.DeletedBySender = m.DeletedBySender || other.DeletedBySender
	m.DeletedByReceiver = m.DeletedByReceiver || other.DeletedByReceiver
}

// MessageRequest is the structure for message creation requests
type MessageRequest struct {
	ReceiverID uuid.UUID  `json:"receiver_id" binding:"required"`
	Content    string     `json:"content" binding:"required,min=1"`
	TripID     *uuid.UUID `json:"trip_id"`
}

// ConversationKey identifies one conversation: a counterparty plus an
// optional trip. Trip-scoped and trip-less threads never share a key.
type ConversationKey struct {
	CounterpartyID uuid.UUID
	TripID         uuid.UUID // uuid.Nil for the trip-less thread
}

// KeyFor returns the conversation key of the message as seen by viewer
func (m *Message) KeyFor(viewer uuid.UUID) ConversationKey {
	k := ConversationKey{CounterpartyID: m.Counterparty(viewer)}
	if m.TripID != nil {
		k.TripID = *m.TripID
	}
	return k
}

// ConversationSummary is the derived preview of one conversation
type ConversationSummary struct {
	Counterparty       *Profile   `json:"counterparty"`
	TripID             *uuid.UUID `json:"trip_id,omitempty"`
	TripOrigin         string     `json:"trip_origin,omitempty"`
	TripDestination    string     `json:"trip_destination,omitempty"`
	LastMessageID      uuid.UUID  `json:"last_message_id"`
	LastMessageContent string     `json:"last_message_content"`
	LastMessageAt      *time.Time `json:"last_message_at"`
	UnreadCount        int        `json:"unread_count"`
}
