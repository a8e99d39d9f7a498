package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ammar1510/rideshare/internal/logger"
	"github.com/ammar1510/rideshare/internal/models"
	"github.com/ammar1510/rideshare/internal/realtime"
)

var listenerLog = logger.New("pg-listener")

const channelSuffix = "_changes"

// Listener turns pg_notify payloads from the row-change triggers into
// realtime events. It implements realtime.Upstream so the hub LISTENs on a
// table only while something is subscribed to it.
type Listener struct {
	l    *pq.Listener
	rows RowFetcher
	done chan struct{}
	once sync.Once
}

// RowFetcher reads back rows whose notification carried only their id
type RowFetcher interface {
	GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	GetNotificationByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
}

const fetchTimeout = 5 * time.Second

func NewListener(connStr string, rows RowFetcher) *Listener {
	report := func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			listenerLog.Warn("Listener disconnected: %v", err)
		case pq.ListenerEventReconnected:
			listenerLog.Info("Listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			listenerLog.Error("Listener connection attempt failed: %v", err)
		}
	}

	return &Listener{
		l:    pq.NewListener(connStr, 500*time.Millisecond, time.Minute, report),
		rows: rows,
		done: make(chan struct{}),
	}
}

func channelFor(c realtime.Collection) string {
	return string(c) + channelSuffix
}

func (l *Listener) Listen(c realtime.Collection) error {
	return l.l.Listen(channelFor(c))
}

func (l *Listener) Unlisten(c realtime.Collection) error {
	return l.l.Unlisten(channelFor(c))
}

// Start delivers decoded events to sink until Close is called. Events are
// delivered from a single goroutine in the order Postgres sent them.
func (l *Listener) Start(sink func(realtime.Event)) {
	go func() {
		ping := time.NewTicker(90 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-l.done:
				return
			case n := <-l.l.Notify:
				// nil after a reconnect; notifications sent meanwhile are lost
				if n == nil {
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
				ev, err := decodeNotification(ctx, l.rows, n.Channel, n.Extra)
				cancel()
				if err != nil {
					listenerLog.Error("Dropping notification on %s: %v", n.Channel, err)
					continue
				}
				sink(ev)
			case <-ping.C:
				go func() {
					if err := l.l.Ping(); err != nil {
						listenerLog.Warn("Listener ping failed: %v", err)
					}
				}()
			}
		}
	}()
}

func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.l.Close()
	})
	return err
}

// notifyPayload carries either the whole row or, for oversized rows, its id
type notifyPayload struct {
	Kind string          `json:"kind"`
	Row  json.RawMessage `json:"row"`
	ID   *uuid.UUID      `json:"id"`
}

func decodeNotification(ctx context.Context, rows RowFetcher, channel, payload string) (realtime.Event, error) {
	if !strings.HasSuffix(channel, channelSuffix) {
		return realtime.Event{}, fmt.Errorf("unexpected channel %q", channel)
	}
	collection := realtime.Collection(strings.TrimSuffix(channel, channelSuffix))

	var p notifyPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return realtime.Event{}, fmt.Errorf("invalid payload: %w", err)
	}

	var kind realtime.Kind
	switch p.Kind {
	case string(realtime.Insert):
		kind = realtime.Insert
	case string(realtime.Update):
		kind = realtime.Update
	default:
		return realtime.Event{}, fmt.Errorf("unsupported operation %q", p.Kind)
	}

	if p.Row == nil && p.ID != nil {
		return fetchRow(ctx, rows, collection, kind, *p.ID)
	}

	switch collection {
	case realtime.Messages:
		var m models.Message
		if err := json.Unmarshal(p.Row, &m); err != nil {
			return realtime.Event{}, fmt.Errorf("invalid message row: %w", err)
		}
		return realtime.MessageEvent(kind, &m), nil
	case realtime.Notifications:
		var n models.Notification
		if err := json.Unmarshal(p.Row, &n); err != nil {
			return realtime.Event{}, fmt.Errorf("invalid notification row: %w", err)
		}
		return realtime.NotificationEvent(kind, &n), nil
	case realtime.Bookings:
		var b models.Booking
		if err := json.Unmarshal(p.Row, &b); err != nil {
			return realtime.Event{}, fmt.Errorf("invalid booking row: %w", err)
		}
		return realtime.BookingEvent(kind, &b), nil
	}
	return realtime.Event{}, fmt.Errorf("unknown collection %q", collection)
}

// fetchRow builds the event from the row's current state
func fetchRow(ctx context.Context, rows RowFetcher, collection realtime.Collection, kind realtime.Kind, id uuid.UUID) (realtime.Event, error) {
	if rows == nil {
		return realtime.Event{}, fmt.Errorf("%s row %s sent by id and no fetcher is set", collection, id)
	}

	switch collection {
	case realtime.Messages:
		m, err := rows.GetMessageByID(ctx, id)
		if err != nil {
			return realtime.Event{}, fmt.Errorf("fetch message %s: %w", id, err)
		}
		return realtime.MessageEvent(kind, m), nil
	case realtime.Notifications:
		n, err := rows.GetNotificationByID(ctx, id)
		if err != nil {
			return realtime.Event{}, fmt.Errorf("fetch notification %s: %w", id, err)
		}
		return realtime.NotificationEvent(kind, n), nil
	case realtime.Bookings:
		b, err := rows.GetBookingByID(ctx, id)
		if err != nil {
			return realtime.Event{}, fmt.Errorf("fetch booking %s: %w", id, err)
		}
		return realtime.BookingEvent(kind, b), nil
	}
	return realtime.Event{}, fmt.Errorf("unknown collection %q", collection)
}
