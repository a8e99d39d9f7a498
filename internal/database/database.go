package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ammar1510/rideshare/internal/models"
)

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrUserAlreadyExists     = errors.New("user already exists")
	ErrMessageNotFound       = errors.New("message not found")
	ErrNotificationNotFound  = errors.New("notification not found")
	ErrTripNotFound          = errors.New("trip not found")
	ErrBookingNotFound       = errors.New("booking not found")
	ErrInsufficientSeats     = errors.New("insufficient seats")
	ErrBookingStatusConflict = errors.New("booking status changed concurrently")
)

type UserRepository interface {
	// CreateUser stores the account and an initial profile row
	CreateUser(ctx context.Context, email, passwordHash, firstName, lastName string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type ProfileRepository interface {
	// GetProfiles returns the profiles that exist among ids, in no particular order
	GetProfiles(ctx context.Context, ids []uuid.UUID) ([]*models.Profile, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.Profile, error)
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, senderID, receiverID uuid.UUID, content string, tripID *uuid.UUID) (*models.Message, error)
	GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	// GetConversation returns both directions between two users ordered by
	// created_at ascending. A nil tripID does not filter by trip.
	GetConversation(ctx context.Context, userID1, userID2 uuid.UUID, tripID *uuid.UUID) ([]*models.Message, error)
	// GetMessagesByUser returns every message sent or received by userID,
	// newest first, tombstoned rows included.
	GetMessagesByUser(ctx context.Context, userID uuid.UUID) ([]*models.Message, error)
	// MarkMessagesRead sets read on the given ids addressed to receiverID that
	// are still unread, in one batched update.
	MarkMessagesRead(ctx context.Context, receiverID uuid.UUID, ids []uuid.UUID) (int64, error)
	// SetMessageDeleted sets the tombstone column of one side only
	SetMessageDeleted(ctx context.Context, id uuid.UUID, role models.ParticipantRole) (*models.Message, error)
	CountUnreadMessages(ctx context.Context, receiverID uuid.UUID) (int, error)
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) (*models.Notification, error)
	GetNotificationByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	// GetNotificationsByUser returns the user's notifications newest first
	GetNotificationsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id uuid.UUID) error
	// MarkAllNotificationsRead flips every unread notification of userID in a
	// single statement
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int, error)
}

type TripRepository interface {
	CreateTrip(ctx context.Context, t *models.Trip) (*models.Trip, error)
	GetTripByID(ctx context.Context, id uuid.UUID) (*models.Trip, error)
	GetTripsByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Trip, error)
	// GetTripsByDriver lists driverID's trips, latest departure first
	GetTripsByDriver(ctx context.Context, driverID uuid.UUID) ([]*models.Trip, error)
	// ReserveSeats atomically checks and decrements seats_available and
	// returns the remaining count. ErrInsufficientSeats leaves the trip as is.
	ReserveSeats(ctx context.Context, tripID uuid.UUID, seats int) (int, error)
	ReleaseSeats(ctx context.Context, tripID uuid.UUID, seats int) error
}

type BookingRepository interface {
	CreateBooking(ctx context.Context, tripID, passengerID uuid.UUID, seats int) (*models.Booking, error)
	GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetBookingsByPassenger(ctx context.Context, passengerID uuid.UUID) ([]*models.Booking, error)
	GetBookingsByTrip(ctx context.Context, tripID uuid.UUID) ([]*models.Booking, error)
	GetBookingsByTrips(ctx context.Context, tripIDs []uuid.UUID) ([]*models.Booking, error)
	// UpdateBookingStatus moves a booking from one status to another only if it
	// is still in from; otherwise ErrBookingStatusConflict.
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus) (*models.Booking, error)
}

type DBInterface interface {
	UserRepository
	ProfileRepository
	MessageRepository
	NotificationRepository
	TripRepository
	BookingRepository

	Close() error
}

type DatabaseType string

const (
	PostgreSQL DatabaseType = "postgres"
	Memory     DatabaseType = "memory"
)

func NewDatabase(dbType DatabaseType, connStr string) (DBInterface, error) {
	switch dbType {
	case PostgreSQL:
		return NewPostgresDB(connStr)
	case Memory:
		return NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
