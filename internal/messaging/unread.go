package messaging

import (
	"context"

	"github.com/google/uuid"

	"github.com/ammar1510/rideshare/internal/realtime"
)

// UnreadCounter is the live message badge of one user. It is recounted on
// every message event addressed to the user, independently of any open
// thread.
type UnreadCounter struct {
	*realtime.Counter
}

// WatchUnread starts the message badge counter for viewer
func (s *Service) WatchUnread(ctx context.Context, hub *realtime.Hub, viewer uuid.UUID) (*UnreadCounter, error) {
	if viewer == uuid.Nil {
		return nil, errUnauthenticated
	}
	c, err := hub.WatchCount(ctx, []realtime.Topic{realtime.MessagesTo(viewer)}, func(ctx context.Context) (int, error) {
		return s.CountUnread(ctx, viewer)
	})
	if err != nil {
		return nil, err
	}
	return &UnreadCounter{Counter: c}, nil
}
