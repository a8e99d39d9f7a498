// Package messaging implements conversation threads between two users,
// the per-user conversation index and the unread message badge.
package messaging

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/database"
	"github.com/ammar1510/rideshare/internal/logger"
	"github.com/ammar1510/rideshare/internal/models"
)

var log = logger.New("messaging")

var errUnauthenticated = apperr.Unauthorized("sign in to use messaging")

// MaxContentLength is the longest message accepted, in characters
const MaxContentLength = 4000

// Service holds the stateless message operations. Live views (Thread,
// IndexWatcher, UnreadCounter) build on it.
type Service struct {
	repo database.MessageRepository
}

func NewService(repo database.MessageRepository) *Service {
	return &Service{repo: repo}
}

func validateParticipants(viewer, counterparty uuid.UUID) error {
	if viewer == uuid.Nil {
		return errUnauthenticated
	}
	if counterparty == uuid.Nil {
		return apperr.ErrMissingCounterparty
	}
	return nil
}

// LoadThread returns the messages between viewer and counterparty that are
// visible to viewer, oldest first. A nil tripID returns every thread between
// the two. Unread messages addressed to viewer are marked read as a side
// effect; if that update fails the messages are still returned as unread.
func (s *Service) LoadThread(ctx context.Context, viewer, counterparty uuid.UUID, tripID *uuid.UUID) ([]*models.Message, error) {
	if err := validateParticipants(viewer, counterparty); err != nil {
		return nil, err
	}

	rows, err := s.repo.GetConversation(ctx, viewer, counterparty, tripID)
	if err != nil {
		log.Error("Failed to load thread %s/%s: %v", viewer, counterparty, err)
		return nil, apperr.Transient("load thread", err)
	}

	visible := make([]*models.Message, 0, len(rows))
	var unread []uuid.UUID
	for _, m := range rows {
		if !m.VisibleTo(viewer) {
			continue
		}
		visible = append(visible, m)
		if m.UnreadFor(viewer) {
			unread = append(unread, m.ID)
		}
	}

	if len(unread) > 0 {
		if err := s.markRead(ctx, viewer, unread); err != nil {
			log.Warn("Read-on-view failed for %d messages: %v", len(unread), err)
			return visible, nil
		}
		for _, m := range visible {
			if m.ReceiverID == viewer {
				m.Read = true
			}
		}
	}
	return visible, nil
}

func (s *Service) markRead(ctx context.Context, viewer uuid.UUID, ids []uuid.UUID) error {
	n, err := s.repo.MarkMessagesRead(ctx, viewer, ids)
	if err != nil {
		return apperr.Transient("mark read", err)
	}
	log.Debug("Marked %d of %d messages read for %s", n, len(ids), viewer)
	return nil
}

// MarkRead marks the given messages addressed to viewer as read. Ids that are
// already read or addressed to someone else are left alone.
func (s *Service) MarkRead(ctx context.Context, viewer uuid.UUID, ids []uuid.UUID) error {
	if viewer == uuid.Nil {
		return errUnauthenticated
	}
	if len(ids) == 0 {
		return nil
	}
	err := s.markRead(ctx, viewer, ids)
	if err != nil {
		log.Error("Failed to mark messages read for %s: %v", viewer, err)
	}
	return err
}

// Send stores a message from viewer to counterparty. Content is trimmed, and
// whitespace-only or overlong content is rejected before the backend is called.
func (s *Service) Send(ctx context.Context, viewer, counterparty uuid.UUID, content string, tripID *uuid.UUID) (*models.Message, error) {
	if err := validateParticipants(viewer, counterparty); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, apperr.ErrContentTooLong
	}

	msg, err := s.repo.CreateMessage(ctx, viewer, counterparty, content, tripID)
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, apperr.ErrUserNotFound
	}
	if err != nil {
		log.Error("Failed to send message from %s to %s: %v", viewer, counterparty, err)
		return nil, apperr.Transient("send message", err)
	}

	log.Debug("Message %s sent from %s to %s", msg.ID, viewer, counterparty)
	return msg, nil
}

// Delete hides a message from viewer only. Messages viewer does not take
// part in are reported as not found.
func (s *Service) Delete(ctx context.Context, viewer, messageID uuid.UUID) (*models.Message, error) {
	if viewer == uuid.Nil {
		return nil, errUnauthenticated
	}

	msg, err := s.repo.GetMessageByID(ctx, messageID)
	if errors.Is(err, database.ErrMessageNotFound) {
		return nil, apperr.ErrMessageNotFound
	}
	if err != nil {
		log.Error("Failed to look up message %s: %v", messageID, err)
		return nil, apperr.Transient("delete message", err)
	}

	role, ok := msg.RoleOf(viewer)
	if !ok {
		return nil, apperr.ErrMessageNotFound
	}
	return s.setDeleted(ctx, messageID, role)
}

func (s *Service) setDeleted(ctx context.Context, id uuid.UUID, role models.ParticipantRole) (*models.Message, error) {
	msg, err := s.repo.SetMessageDeleted(ctx, id, role)
	if errors.Is(err, database.ErrMessageNotFound) {
		return nil, apperr.ErrMessageNotFound
	}
	if err != nil {
		log.Error("Failed to delete message %s as %s: %v", id, role, err)
		return nil, apperr.Transient("delete message", err)
	}
	log.Debug("Message %s deleted by %s", id, role)
	return msg, nil
}

// CountUnread is the number of visible unread messages addressed to viewer
func (s *Service) CountUnread(ctx context.Context, viewer uuid.UUID) (int, error) {
	if viewer == uuid.Nil {
		return 0, errUnauthenticated
	}
	n, err := s.repo.CountUnreadMessages(ctx, viewer)
	if err != nil {
		log.Error("Failed to count unread messages for %s: %v", viewer, err)
		return 0, apperr.Transient("count unread messages", err)
	}
	return n, nil
}
