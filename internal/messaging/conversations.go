package messaging

import (
	"context"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/database"
	"github.com/ammar1510/rideshare/internal/models"
	"github.com/ammar1510/rideshare/internal/realtime"
)

const previewLength = 50

// ProfileLookup resolves many user ids in one call
type ProfileLookup interface {
	Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Profile, error)
}

// Index derives a viewer's conversation list from their messages
type Index struct {
	messages database.MessageRepository
	trips    database.TripRepository
	profiles ProfileLookup
}

func NewIndex(messages database.MessageRepository, trips database.TripRepository, profiles ProfileLookup) *Index {
	return &Index{messages: messages, trips: trips, profiles: profiles}
}

func truncatePreview(s string) string {
	if utf8.RuneCountInString(s) <= previewLength {
		return s
	}
	return string([]rune(s)[:previewLength]) + "..."
}

type group struct {
	key    models.ConversationKey
	last   *models.Message
	unread int
}

// Build groups the messages visible to viewer by counterparty and trip, most
// recent conversation first. A trip-scoped thread and the trip-less thread
// with the same person are separate conversations.
func (ix *Index) Build(ctx context.Context, viewer uuid.UUID) ([]models.ConversationSummary, error) {
	if viewer == uuid.Nil {
		return nil, errUnauthenticated
	}

	rows, err := ix.messages.GetMessagesByUser(ctx, viewer)
	if err != nil {
		log.Error("Failed to load messages of %s: %v", viewer, err)
		return nil, apperr.Transient("load conversations", err)
	}

	groups := make(map[models.ConversationKey]*group)
	var order []*group
	for _, m := range rows {
		if !m.VisibleTo(viewer) {
			continue
		}
		key := m.KeyFor(viewer)
		g, ok := groups[key]
		if !ok {
			g = &group{key: key}
			groups[key] = g
			order = append(order, g)
		}
		if g.last == nil || !m.CreatedAt.Before(g.last.CreatedAt) {
			g.last = m
		}
		if m.UnreadFor(viewer) {
			g.unread++
		}
	}
	if len(order) == 0 {
		return []models.ConversationSummary{}, nil
	}

	var counterparties, tripIDs []uuid.UUID
	for _, g := range order {
		counterparties = append(counterparties, g.key.CounterpartyID)
		if g.key.TripID != uuid.Nil {
			tripIDs = append(tripIDs, g.key.TripID)
		}
	}
	profiles := ix.lookupProfiles(ctx, counterparties)
	trips := ix.lookupTrips(ctx, tripIDs)

	summaries := make([]models.ConversationSummary, 0, len(order))
	for _, g := range order {
		s := models.ConversationSummary{
			Counterparty:       profiles[g.key.CounterpartyID],
			LastMessageID:      g.last.ID,
			LastMessageContent: truncatePreview(g.last.Content),
			UnreadCount:        g.unread,
		}
		if s.Counterparty == nil {
			s.Counterparty = &models.Profile{ID: g.key.CounterpartyID}
		}
		if !g.last.CreatedAt.IsZero() {
			at := g.last.CreatedAt
			s.LastMessageAt = &at
		}
		if g.key.TripID != uuid.Nil {
			id := g.key.TripID
			s.TripID = &id
			if trip, ok := trips[id]; ok {
				s.TripOrigin = trip.Origin
				s.TripDestination = trip.Destination
			}
		}
		summaries = append(summaries, s)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].LastMessageAt, summaries[j].LastMessageAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})
	return summaries, nil
}

// lookupProfiles degrades to placeholder names when the directory fails
func (ix *Index) lookupProfiles(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]*models.Profile {
	if ix.profiles == nil {
		return nil
	}
	profiles, err := ix.profiles.Lookup(ctx, ids)
	if err != nil {
		log.Warn("Conversation list without profiles: %v", err)
		return nil
	}
	return profiles
}

func (ix *Index) lookupTrips(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]*models.Trip {
	if ix.trips == nil || len(ids) == 0 {
		return nil
	}
	trips, err := ix.trips.GetTripsByIDs(ctx, ids)
	if err != nil {
		log.Warn("Conversation list without trip details: %v", err)
		return nil
	}
	byID := make(map[uuid.UUID]*models.Trip, len(trips))
	for _, t := range trips {
		byID[t.ID] = t
	}
	return byID
}

// IndexWatcher keeps a viewer's conversation list current by rebuilding it on
// every message event that involves the viewer.
type IndexWatcher struct {
	ix     *Index
	viewer uuid.UUID

	mu        sync.Mutex
	started   uint64
	applied   uint64
	summaries []models.ConversationSummary
	err       error
	closed    bool
	onChange  func([]models.ConversationSummary)
	subs      realtime.Group
}

const rebuildTimeout = 10 * time.Second

// Watch subscribes to the viewer's message events and builds the first list
func (ix *Index) Watch(ctx context.Context, hub *realtime.Hub, viewer uuid.UUID) (*IndexWatcher, error) {
	if viewer == uuid.Nil {
		return nil, errUnauthenticated
	}

	w := &IndexWatcher{ix: ix, viewer: viewer}
	subs, err := hub.SubscribeAll([]realtime.Topic{
		realtime.MessagesTo(viewer),
		realtime.MessagesFrom(viewer),
	}, func(realtime.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
		defer cancel()
		w.Rebuild(ctx)
	})
	if err != nil {
		return nil, apperr.Transient("subscribe", err)
	}
	w.mu.Lock()
	w.subs = subs
	w.mu.Unlock()

	if err := w.Rebuild(ctx); err != nil {
		subs.Unsubscribe()
		return nil, err
	}
	return w, nil
}

func (w *IndexWatcher) OnChange(fn func([]models.ConversationSummary)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Rebuild recomputes the list. A failed rebuild keeps the previous list, and
// a rebuild that began before the stored one is discarded.
func (w *IndexWatcher) Rebuild(ctx context.Context) error {
	w.mu.Lock()
	w.started++
	attempt := w.started
	ix := w.ix
	w.mu.Unlock()

	summaries, err := ix.Build(ctx, w.viewer)

	w.mu.Lock()
	if w.closed || attempt < w.applied {
		w.mu.Unlock()
		return nil
	}
	w.err = err
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.summaries = summaries
	w.applied = attempt
	fn := w.onChange
	w.mu.Unlock()

	if fn != nil {
		fn(summaries)
	}
	return nil
}

// Summaries returns the current list
func (w *IndexWatcher) Summaries() []models.ConversationSummary {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.ConversationSummary, len(w.summaries))
	copy(out, w.summaries)
	return out
}

func (w *IndexWatcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *IndexWatcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	subs := w.subs
	w.mu.Unlock()

	subs.Unsubscribe()
}
