package database

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/rideshare/internal/models"
	"github.com/ammar1510/rideshare/internal/realtime"
)

func TestDecodeNotification(t *testing.T) {
	sender := uuid.New()
	receiver := uuid.New()
	msgID := uuid.New()

	t.Run("message insert", func(t *testing.T) {
		payload := `{"kind":"INSERT","row":{"id":"` + msgID.String() + `","sender_id":"` + sender.String() +
			`","receiver_id":"` + receiver.String() + `","content":"Hi","created_at":"2024-05-01T10:00:00.123456+00:00",` +
			`"read":false,"trip_id":null,"deleted_by_sender":false,"deleted_by_receiver":false}}`

		ev, err := decodeNotification(context.Background(), nil, "messages_changes", payload)
		require.NoError(t, err)
		assert.Equal(t, realtime.Insert, ev.Kind)
		assert.Equal(t, realtime.Messages, ev.Collection)
		require.NotNil(t, ev.Message)
		assert.Equal(t, msgID, ev.Message.ID)
		assert.Equal(t, receiver, ev.Message.ReceiverID)
		assert.Nil(t, ev.Message.TripID)
		assert.Equal(t, 2024, ev.Message.CreatedAt.Year())
	})

	t.Run("notification update", func(t *testing.T) {
		tripID := uuid.New()
		payload := `{"kind":"UPDATE","row":{"id":"` + uuid.New().String() + `","user_id":"` + receiver.String() +
			`","message":"Booking confirmed","read":true,"created_at":"2024-05-01T10:00:00+00:00",` +
			`"related_trip_id":"` + tripID.String() + `","related_booking_id":null}}`

		ev, err := decodeNotification(context.Background(), nil, "notifications_changes", payload)
		require.NoError(t, err)
		assert.Equal(t, realtime.Update, ev.Kind)
		require.NotNil(t, ev.Notification)
		assert.True(t, ev.Notification.Read)
		require.NotNil(t, ev.Notification.RelatedTripID)
		assert.Equal(t, tripID, *ev.Notification.RelatedTripID)
	})

	t.Run("booking insert", func(t *testing.T) {
		payload := `{"kind":"INSERT","row":{"id":"` + uuid.New().String() + `","trip_id":"` + uuid.New().String() +
			`","passenger_id":"` + sender.String() + `","seats":2,"status":"pending","created_at":"2024-05-01T10:00:00+00:00","updated_at":null}}`

		ev, err := decodeNotification(context.Background(), nil, "bookings_changes", payload)
		require.NoError(t, err)
		require.NotNil(t, ev.Booking)
		assert.Equal(t, models.BookingPending, ev.Booking.Status)
		assert.Equal(t, 2, ev.Booking.Seats)
	})

	errorCases := []struct {
		name    string
		channel string
		payload string
	}{
		{name: "foreign channel", channel: "audit", payload: `{"kind":"INSERT","row":{}}`},
		{name: "unknown table", channel: "trips_changes", payload: `{"kind":"INSERT","row":{}}`},
		{name: "delete is not supported", channel: "messages_changes", payload: `{"kind":"DELETE","row":{}}`},
		{name: "malformed json", channel: "messages_changes", payload: `{"kind":`},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeNotification(context.Background(), nil, tt.channel, tt.payload)
			assert.Error(t, err)
		})
	}
}

func TestDecodeNotificationFetchesOversizedRows(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	a, err := db.CreateUser(ctx, "a@example.com", "hash", "", "")
	require.NoError(t, err)
	b, err := db.CreateUser(ctx, "b@example.com", "hash", "", "")
	require.NoError(t, err)
	long := strings.Repeat("ride details ", 1000)
	m, err := db.CreateMessage(ctx, a.ID, b.ID, long, nil)
	require.NoError(t, err)

	payload := `{"kind":"INSERT","id":"` + m.ID.String() + `"}`
	ev, err := decodeNotification(ctx, db, "messages_changes", payload)
	require.NoError(t, err)
	assert.Equal(t, realtime.Insert, ev.Kind)
	require.NotNil(t, ev.Message)
	assert.Equal(t, long, ev.Message.Content)
	assert.Equal(t, b.ID, ev.Message.ReceiverID)

	_, err = decodeNotification(ctx, db, "messages_changes", `{"kind":"UPDATE","id":"`+uuid.NewString()+`"}`)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	_, err = decodeNotification(ctx, nil, "messages_changes", payload)
	assert.Error(t, err)
}
