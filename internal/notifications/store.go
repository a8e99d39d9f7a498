// Package notifications owns the per-user log of system notifications.
package notifications

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/database"
	"github.com/ammar1510/rideshare/internal/logger"
	"github.com/ammar1510/rideshare/internal/models"
	"github.com/ammar1510/rideshare/internal/realtime"
)

var log = logger.New("notifications")

var errUnauthenticated = apperr.Unauthorized("sign in to see notifications")

// Outbox receives every notification after it is stored, for delivery
// outside the application (e-mail).
type Outbox interface {
	PublishNotification(ctx context.Context, n *models.Notification) error
}

type Store struct {
	repo   database.NotificationRepository
	outbox Outbox
}

// NewStore creates a store. outbox may be nil.
func NewStore(repo database.NotificationRepository, outbox Outbox) *Store {
	return &Store{repo: repo, outbox: outbox}
}

// List returns the user's notifications, newest first
func (s *Store) List(ctx context.Context, userID uuid.UUID) ([]*models.Notification, error) {
	if userID == uuid.Nil {
		return nil, errUnauthenticated
	}
	list, err := s.repo.GetNotificationsByUser(ctx, userID)
	if err != nil {
		log.Error("Failed to list notifications of %s: %v", userID, err)
		return nil, apperr.Transient("list notifications", err)
	}
	if list == nil {
		list = []*models.Notification{}
	}
	return list, nil
}

// Create stores a notification and hands it to the outbox. An outbox failure
// is logged; the notification is still delivered in-app.
func (s *Store) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	if n.UserID == uuid.Nil || n.Message == "" {
		return nil, apperr.InvalidArg("a notification needs a recipient and a message")
	}

	created, err := s.repo.CreateNotification(ctx, n)
	if err != nil {
		log.Error("Failed to create notification for %s: %v", n.UserID, err)
		return nil, apperr.Transient("create notification", err)
	}

	if s.outbox != nil {
		if err := s.outbox.PublishNotification(ctx, created); err != nil {
			log.Warn("Notification %s not published to outbox: %v", created.ID, err)
		}
	}
	log.Debug("Notification %s created for %s", created.ID, created.UserID)
	return created, nil
}

// MarkRead marks one of the viewer's notifications read. Marking an already
// read notification succeeds without a write.
func (s *Store) MarkRead(ctx context.Context, viewer, id uuid.UUID) error {
	if viewer == uuid.Nil {
		return errUnauthenticated
	}

	n, err := s.repo.GetNotificationByID(ctx, id)
	if errors.Is(err, database.ErrNotificationNotFound) {
		return apperr.ErrNotificationNotFound
	}
	if err != nil {
		log.Error("Failed to look up notification %s: %v", id, err)
		return apperr.Transient("mark notification read", err)
	}
	if n.UserID != viewer {
		return apperr.ErrNotNotificationOwner
	}
	if n.Read {
		return nil
	}

	err = s.repo.MarkNotificationRead(ctx, id)
	if errors.Is(err, database.ErrNotificationNotFound) {
		return apperr.ErrNotificationNotFound
	}
	if err != nil {
		log.Error("Failed to mark notification %s read: %v", id, err)
		return apperr.Transient("mark notification read", err)
	}
	log.Info("Notification %s marked read", id)
	return nil
}

// MarkAllRead marks every unread notification of the viewer read in a single
// backend update, so it either applies to all of them or to none.
func (s *Store) MarkAllRead(ctx context.Context, viewer uuid.UUID) (int64, error) {
	if viewer == uuid.Nil {
		return 0, errUnauthenticated
	}
	n, err := s.repo.MarkAllNotificationsRead(ctx, viewer)
	if err != nil {
		log.Error("Failed to mark all notifications read for %s: %v", viewer, err)
		return 0, apperr.Transient("mark all notifications read", err)
	}
	log.Info("Marked %d notifications read for %s", n, viewer)
	return n, nil
}

func (s *Store) CountUnread(ctx context.Context, viewer uuid.UUID) (int, error) {
	if viewer == uuid.Nil {
		return 0, errUnauthenticated
	}
	n, err := s.repo.CountUnreadNotifications(ctx, viewer)
	if err != nil {
		log.Error("Failed to count unread notifications for %s: %v", viewer, err)
		return 0, apperr.Transient("count unread notifications", err)
	}
	return n, nil
}

// UnreadCounter is the live notification badge, kept apart from the message
// badge.
type UnreadCounter struct {
	*realtime.Counter
}

func (s *Store) WatchUnread(ctx context.Context, hub *realtime.Hub, viewer uuid.UUID) (*UnreadCounter, error) {
	if viewer == uuid.Nil {
		return nil, errUnauthenticated
	}
	c, err := hub.WatchCount(ctx, []realtime.Topic{realtime.NotificationsFor(viewer)}, func(ctx context.Context) (int, error) {
		return s.CountUnread(ctx, viewer)
	})
	if err != nil {
		return nil, err
	}
	return &UnreadCounter{Counter: c}, nil
}
