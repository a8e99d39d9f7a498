package notifications

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/models"
	"github.com/ammar1510/rideshare/internal/realtime"
)

// Feed is a user's live notification list, newest first. Inserts are
// prepended and updates replace the row with the same id.
type Feed struct {
	store  *Store
	userID uuid.UUID

	mu       sync.Mutex
	items    []*models.Notification
	loaded   bool
	closed   bool
	onChange func([]*models.Notification)
	sub      *realtime.Subscription
}

// OpenFeed subscribes to the user's notifications and loads the list
func (s *Store) OpenFeed(ctx context.Context, hub *realtime.Hub, userID uuid.UUID) (*Feed, error) {
	if userID == uuid.Nil {
		return nil, errUnauthenticated
	}

	f := &Feed{store: s, userID: userID}
	sub, err := hub.Subscribe(realtime.NotificationsFor(userID), f.handle)
	if err != nil {
		return nil, apperr.Transient("subscribe", err)
	}
	f.mu.Lock()
	f.sub = sub
	f.mu.Unlock()

	if err := f.load(ctx); err != nil {
		sub.Unsubscribe()
		return nil, err
	}
	return f, nil
}

func (f *Feed) load(ctx context.Context) error {
	list, err := f.store.List(ctx, f.userID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// rows that arrived while listing are newer than the snapshot
	early := f.items
	f.items = list
	for i := len(early) - 1; i >= 0; i-- {
		f.upsert(early[i])
	}
	f.loaded = true
	return nil
}

// upsert replaces by id or prepends; caller holds mu
func (f *Feed) upsert(n *models.Notification) bool {
	for i, existing := range f.items {
		if existing.ID != n.ID {
			continue
		}
		if existing.Read && !n.Read {
			return false
		}
		f.items[i] = n
		return existing.Read != n.Read
	}
	f.items = append([]*models.Notification{n}, f.items...)
	return true
}

func (f *Feed) handle(e realtime.Event) {
	if e.Notification == nil || e.Notification.UserID != f.userID {
		return
	}
	n := e.Notification.Clone()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	var changed bool
	switch e.Kind {
	case realtime.Insert:
		changed = f.upsert(n)
	case realtime.Update:
		changed = f.replace(n)
	}
	snap, fn := f.snapshot(), f.onChange
	f.mu.Unlock()

	if changed && fn != nil {
		fn(snap)
	}
}

// replace updates a row already in the list; caller holds mu
func (f *Feed) replace(n *models.Notification) bool {
	for i, existing := range f.items {
		if existing.ID == n.ID {
			if existing.Read && !n.Read {
				return false
			}
			f.items[i] = n
			return existing.Read != n.Read
		}
	}
	// before the first load completes, keep it for the merge
	if !f.loaded {
		f.items = append([]*models.Notification{n}, f.items...)
		return true
	}
	return false
}

// MarkRead marks one notification of the feed read
func (f *Feed) MarkRead(ctx context.Context, id uuid.UUID) error {
	if err := f.store.MarkRead(ctx, f.userID, id); err != nil {
		return err
	}
	f.setRead(func(n *models.Notification) bool { return n.ID == id })
	return nil
}

// MarkAllRead marks the whole feed read. On failure nothing is changed
// locally.
func (f *Feed) MarkAllRead(ctx context.Context) error {
	if _, err := f.store.MarkAllRead(ctx, f.userID); err != nil {
		return err
	}
	f.setRead(func(*models.Notification) bool { return true })
	return nil
}

func (f *Feed) setRead(match func(*models.Notification) bool) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	changed := false
	for _, n := range f.items {
		if match(n) && !n.Read {
			n.Read = true
			changed = true
		}
	}
	snap, fn := f.snapshot(), f.onChange
	f.mu.Unlock()

	if changed && fn != nil {
		fn(snap)
	}
}

func (f *Feed) snapshot() []*models.Notification {
	out := make([]*models.Notification, len(f.items))
	for i, n := range f.items {
		out[i] = n.Clone()
	}
	return out
}

func (f *Feed) OnChange(fn func([]*models.Notification)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = fn
}

func (f *Feed) Items() []*models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot()
}

func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	sub := f.sub
	f.mu.Unlock()

	sub.Unsubscribe()
}
