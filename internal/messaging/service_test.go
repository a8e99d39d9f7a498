package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/database"
	"github.com/ammar1510/rideshare/internal/models"
	"github.com/ammar1510/rideshare/internal/realtime"
)

var errBackend = errors.New("connection reset by peer")

// faultyDB fails selected operations and counts backend writes
type faultyDB struct {
	*database.MemoryDB
	failCreate   bool
	failMarkRead bool
	failLoad     bool
	failDelete   bool
	creates      int
	markReads    int
	// duringLoad runs inside GetConversation before the snapshot is taken
	duringLoad func()
}

func (f *faultyDB) CreateMessage(ctx context.Context, senderID, receiverID uuid.UUID, content string, tripID *uuid.UUID) (*models.Message, error) {
	f.creates++
	if f.failCreate {
		return nil, errBackend
	}
	return f.MemoryDB.CreateMessage(ctx, senderID, receiverID, content, tripID)
}

func (f *faultyDB) MarkMessagesRead(ctx context.Context, receiverID uuid.UUID, ids []uuid.UUID) (int64, error) {
	f.markReads++
	if f.failMarkRead {
		return 0, errBackend
	}
	return f.MemoryDB.MarkMessagesRead(ctx, receiverID, ids)
}

func (f *faultyDB) GetConversation(ctx context.Context, a, b uuid.UUID, tripID *uuid.UUID) ([]*models.Message, error) {
	if f.failLoad {
		return nil, errBackend
	}
	if f.duringLoad != nil {
		hook := f.duringLoad
		f.duringLoad = nil
		hook()
	}
	return f.MemoryDB.GetConversation(ctx, a, b, tripID)
}

func (f *faultyDB) SetMessageDeleted(ctx context.Context, id uuid.UUID, role models.ParticipantRole) (*models.Message, error) {
	if f.failDelete {
		return nil, errBackend
	}
	return f.MemoryDB.SetMessageDeleted(ctx, id, role)
}

type fixture struct {
	db  *faultyDB
	hub *realtime.Hub
	svc *Service
	x   uuid.UUID
	y   uuid.UUID
	z   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := database.NewMemoryDB()
	hub := realtime.NewHub(nil)
	mem.SetPublisher(hub.Publish)

	f := &fixture{db: &faultyDB{MemoryDB: mem}, hub: hub}
	f.svc = NewService(f.db)
	f.x = f.user(t, "Xavier", "Stone")
	f.y = f.user(t, "Yara", "Lee")
	f.z = f.user(t, "Zed", "")
	return f
}

func (f *fixture) user(t *testing.T, first, last string) uuid.UUID {
	t.Helper()
	u, err := f.db.CreateUser(context.Background(), uuid.NewString()+"@example.com", "hash", first, last)
	require.NoError(t, err)
	return u.ID
}

func (f *fixture) trip(t *testing.T, driver uuid.UUID) uuid.UUID {
	t.Helper()
	trip, err := f.db.CreateTrip(context.Background(), &models.Trip{
		DriverID: driver, Origin: "Pune", Destination: "Mumbai", SeatsAvailable: 3,
	})
	require.NoError(t, err)
	return trip.ID
}

func (f *fixture) send(t *testing.T, from, to uuid.UUID, content string, tripID *uuid.UUID) *models.Message {
	t.Helper()
	m, err := f.svc.Send(context.Background(), from, to, content, tripID)
	require.NoError(t, err)
	return m
}

func ids(msgs []*models.Message) []uuid.UUID {
	out := make([]uuid.UUID, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name         string
		viewer       uuid.UUID
		counterparty uuid.UUID
		content      string
		want         error
	}{
		{name: "empty content", viewer: f.x, counterparty: f.y, content: "", want: apperr.ErrEmptyContent},
		{name: "whitespace content", viewer: f.x, counterparty: f.y, content: " \n\t ", want: apperr.ErrEmptyContent},
		{name: "missing counterparty", viewer: f.x, counterparty: uuid.Nil, content: "Hi", want: apperr.ErrMissingCounterparty},
		{name: "content too long", viewer: f.x, counterparty: f.y, content: strings.Repeat("é", MaxContentLength+1), want: apperr.ErrContentTooLong},
		{name: "unauthenticated", viewer: uuid.Nil, counterparty: f.y, content: "Hi", want: errUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := f.svc.Send(ctx, tt.viewer, tt.counterparty, tt.content, nil)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, msg)
		})
	}
	assert.Zero(t, f.db.creates, "validation must happen before the backend is called")
}

func TestSendTrimsAndStores(t *testing.T) {
	f := newFixture(t)

	msg := f.send(t, f.x, f.y, "  Hi there  ", nil)
	assert.Equal(t, "Hi there", msg.Content)
	assert.False(t, msg.Read)
	assert.Nil(t, msg.TripID)

	_, err := f.svc.Send(context.Background(), f.x, uuid.New(), "Hi", nil)
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestSendAcceptsContentAtTheLimit(t *testing.T) {
	f := newFixture(t)

	// surrounding whitespace does not count against the limit
	content := strings.Repeat("é", MaxContentLength)
	msg := f.send(t, f.x, f.y, "  "+content+"  ", nil)
	assert.Equal(t, content, msg.Content)
}

func TestSendBackendFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.db.failCreate = true

	_, err := f.svc.Send(context.Background(), f.x, f.y, "Hi", nil)
	require.Error(t, err)
	assert.True(t, apperr.IsRetryable(err))
	assert.False(t, apperr.IsValidation(err))
	assert.ErrorIs(t, err, errBackend)
}

func TestLoadThreadVisibilityAndReadOnView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m1 := f.send(t, f.x, f.y, "one", nil)
	m2 := f.send(t, f.y, f.x, "two", nil)
	m3 := f.send(t, f.x, f.y, "three", nil)
	f.send(t, f.x, f.z, "not in this thread", nil)

	// y hides m1 from itself only
	_, err := f.svc.Delete(ctx, f.y, m1.ID)
	require.NoError(t, err)

	forY, err := f.svc.LoadThread(ctx, f.y, f.x, nil)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{m2.ID, m3.ID}, ids(forY))
	assert.True(t, forY[1].Read)

	forX, err := f.svc.LoadThread(ctx, f.x, f.y, nil)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{m1.ID, m2.ID, m3.ID}, ids(forX))

	// m1 was hidden from y before it was read, so it stays unread
	stored, err := f.db.GetMessageByID(ctx, m1.ID)
	require.NoError(t, err)
	assert.False(t, stored.Read)
	stored, err = f.db.GetMessageByID(ctx, m3.ID)
	require.NoError(t, err)
	assert.True(t, stored.Read)
}

func TestLoadThreadReadStateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, f.x, f.y, "Hi", nil)

	_, err := f.svc.LoadThread(ctx, f.y, f.x, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.db.markReads)

	var updates int
	sub, err := f.hub.Subscribe(realtime.MessagesTo(f.y), func(e realtime.Event) {
		if e.Kind == realtime.Update {
			updates++
		}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	msgs, err := f.svc.LoadThread(ctx, f.y, f.x, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Read)
	assert.Equal(t, 1, f.db.markReads, "nothing left to mark")
	assert.Zero(t, updates)

	require.NoError(t, f.svc.MarkRead(ctx, f.y, ids(msgs)))
	assert.Zero(t, updates)
}

func TestLoadThreadSenderNeverMarksRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, f.x, f.y, "Hi", nil)

	msgs, err := f.svc.LoadThread(ctx, f.x, f.y, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Read)
	assert.Zero(t, f.db.markReads)

	require.NoError(t, f.svc.MarkRead(ctx, f.x, []uuid.UUID{m.ID}))
	stored, _ := f.db.GetMessageByID(ctx, m.ID)
	assert.False(t, stored.Read)
}

func TestLoadThreadMarkReadFailureStillReturnsMessages(t *testing.T) {
	f := newFixture(t)
	f.send(t, f.x, f.y, "Hi", nil)
	f.db.failMarkRead = true

	msgs, err := f.svc.LoadThread(context.Background(), f.y, f.x, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Read)
}

func TestLoadThreadFailure(t *testing.T) {
	f := newFixture(t)
	f.db.failLoad = true

	_, err := f.svc.LoadThread(context.Background(), f.y, f.x, nil)
	assert.True(t, apperr.IsRetryable(err))

	_, err = f.svc.LoadThread(context.Background(), f.y, uuid.Nil, nil)
	assert.ErrorIs(t, err, apperr.ErrMissingCounterparty)
}

func TestLoadThreadTripScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t, f.x)

	plain := f.send(t, f.x, f.y, "plain", nil)
	scoped := f.send(t, f.x, f.y, "about the ride", &trip)

	inTrip, err := f.svc.LoadThread(ctx, f.x, f.y, &trip)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{scoped.ID}, ids(inTrip))

	all, err := f.svc.LoadThread(ctx, f.x, f.y, nil)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{plain.ID, scoped.ID}, ids(all))
}

func TestDeleteIndependence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, f.x, f.y, "Hi", nil)

	got, err := f.svc.Delete(ctx, f.x, m.ID)
	require.NoError(t, err)
	assert.True(t, got.DeletedBySender)
	assert.False(t, got.DeletedByReceiver)

	forY, err := f.svc.LoadThread(ctx, f.y, f.x, nil)
	require.NoError(t, err)
	assert.Len(t, forY, 1)

	got, err = f.svc.Delete(ctx, f.y, m.ID)
	require.NoError(t, err)
	assert.True(t, got.DeletedBySender)
	assert.True(t, got.DeletedByReceiver)

	forX, err := f.svc.LoadThread(ctx, f.x, f.y, nil)
	require.NoError(t, err)
	assert.Empty(t, forX)
}

func TestDeleteNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, f.x, f.y, "Hi", nil)

	_, err := f.svc.Delete(ctx, f.z, m.ID)
	assert.ErrorIs(t, err, apperr.ErrMessageNotFound)

	_, err = f.svc.Delete(ctx, f.x, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrMessageNotFound)

	stored, _ := f.db.GetMessageByID(ctx, m.ID)
	assert.False(t, stored.DeletedBySender)
	assert.False(t, stored.DeletedByReceiver)
}

func TestCountUnread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, f.x, f.y, "one", nil)
	m2 := f.send(t, f.x, f.y, "two", nil)
	f.send(t, f.y, f.x, "reply", nil)

	n, err := f.svc.CountUnread(ctx, f.y)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.svc.Delete(ctx, f.y, m2.ID)
	require.NoError(t, err)
	n, err = f.svc.CountUnread(ctx, f.y)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
