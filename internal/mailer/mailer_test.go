package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/rideshare/internal/database"
	"github.com/ammar1510/rideshare/internal/models"
)

const baseURL = "https://rideshare.example"

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, e Email) error {
	return m.Called(ctx, e).Error(0)
}

func testTrip() *models.Trip {
	return &models.Trip{
		ID:            uuid.New(),
		Origin:        "Pune",
		Destination:   "Mumbai",
		DepartureDate: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestComposeSubjects(t *testing.T) {
	trip := testTrip()
	bookingID := uuid.New()
	profile := &models.Profile{FirstName: "Yara", LastName: "Lee"}

	tests := []struct {
		name        string
		trip        *models.Trip
		booking     *uuid.UUID
		wantSubject string
		contains    []string
		excludes    []string
	}{
		{
			name:        "plain",
			wantSubject: SubjectDefault,
			excludes:    []string{"Trip details", "/my-bookings"},
		},
		{
			name:        "trip",
			trip:        trip,
			wantSubject: SubjectTrip,
			contains:    []string{"From: Pune", "To: Mumbai", "Jun 1, 2024", baseURL + "/trips/" + trip.ID.String()},
			excludes:    []string{"/my-bookings"},
		},
		{
			name:        "booking wins over trip",
			trip:        trip,
			booking:     &bookingID,
			wantSubject: SubjectBooking,
			contains:    []string{"From: Pune", baseURL + "/my-bookings"},
		},
		{
			name:        "booking without trip",
			booking:     &bookingID,
			wantSubject: SubjectBooking,
			contains:    []string{baseURL + "/my-bookings"},
			excludes:    []string{"Trip details"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &models.Notification{ID: uuid.New(), Message: "Your booking was confirmed", RelatedBookingID: tt.booking}
			e, err := Compose(n, "yara@example.com", profile, tt.trip, baseURL)
			require.NoError(t, err)

			assert.Equal(t, "yara@example.com", e.To)
			assert.Equal(t, tt.wantSubject, e.Subject)
			assert.Contains(t, e.HTML, "Hello Yara Lee,")
			assert.Contains(t, e.HTML, "Your booking was confirmed")
			for _, s := range tt.contains {
				assert.Contains(t, e.HTML, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, e.HTML, s)
			}
		})
	}
}

func TestComposeEscapesAndDefaultsName(t *testing.T) {
	n := &models.Notification{ID: uuid.New(), Message: "<script>alert(1)</script>"}
	e, err := Compose(n, "x@example.com", nil, nil, baseURL)
	require.NoError(t, err)
	assert.Contains(t, e.HTML, "Hello User,")
	assert.NotContains(t, e.HTML, "<script>")
}

func newDB(t *testing.T) (*database.MemoryDB, *models.User, *models.Trip) {
	t.Helper()
	db := database.NewMemoryDB()
	ctx := context.Background()
	user, err := db.CreateUser(ctx, "yara@example.com", "hash", "Yara", "Lee")
	require.NoError(t, err)
	trip, err := db.CreateTrip(ctx, &models.Trip{DriverID: user.ID, Origin: "Pune", Destination: "Mumbai", SeatsAvailable: 2})
	require.NoError(t, err)
	return db, user, trip
}

func TestNotifierHandle(t *testing.T) {
	db, user, trip := newDB(t)
	mailer := new(MockMailer)
	nt := NewNotifier(db, mailer, baseURL)

	mailer.On("Send", mock.Anything, mock.MatchedBy(func(e Email) bool {
		return e.To == "yara@example.com" &&
			e.Subject == SubjectTrip &&
			strings.Contains(e.HTML, "Hello Yara Lee,") &&
			strings.Contains(e.HTML, "/trips/"+trip.ID.String())
	})).Return(nil).Once()

	tripID := trip.ID
	err := nt.Handle(context.Background(), &models.Notification{ID: uuid.New(), UserID: user.ID, Message: "Trip updated", RelatedTripID: &tripID})
	require.NoError(t, err)
	mailer.AssertExpectations(t)
}

func TestNotifierDegradesOnMissingTrip(t *testing.T) {
	db, user, _ := newDB(t)
	mailer := new(MockMailer)
	nt := NewNotifier(db, mailer, baseURL)

	mailer.On("Send", mock.Anything, mock.MatchedBy(func(e Email) bool {
		return e.Subject == SubjectDefault
	})).Return(nil).Once()

	gone := uuid.New()
	require.NoError(t, nt.Handle(context.Background(), &models.Notification{ID: uuid.New(), UserID: user.ID, Message: "Hi", RelatedTripID: &gone}))
	mailer.AssertExpectations(t)
}

func TestNotifierUnknownRecipient(t *testing.T) {
	db, _, _ := newDB(t)
	mailer := new(MockMailer)
	nt := NewNotifier(db, mailer, baseURL)

	err := nt.Handle(context.Background(), &models.Notification{ID: uuid.New(), UserID: uuid.New(), Message: "Hi"})
	assert.ErrorIs(t, err, database.ErrUserNotFound)
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestSMTPMailer(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Addr: "smtp.example.com:587", Username: "bot", Password: "secret", From: "noreply@example.com"})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	var gotAuth smtp.Auth
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, msg
		return nil
	}

	require.NoError(t, m.Send(context.Background(), Email{To: "yara@example.com", Subject: SubjectBooking, HTML: "<p>hi</p>"}))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"yara@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: "+SubjectBooking+"\r\n")
	assert.True(t, strings.HasSuffix(string(gotMsg), "\r\n\r\n<p>hi</p>"))

	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421 try later") }
	assert.Error(t, m.Send(context.Background(), Email{To: "yara@example.com"}))
}
