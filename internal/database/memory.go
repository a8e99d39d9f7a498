package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/rideshare/internal/models"
	"github.com/ammar1510/rideshare/internal/realtime"
)

// MemoryDB is an in-process backend. Every write is published as a change
// event after the store lock is released, so subscribers observe the same
// feed a Postgres listener would deliver.
type MemoryDB struct {
	mu sync.Mutex

	users         map[uuid.UUID]*models.User
	profiles      map[uuid.UUID]*models.Profile
	messages      []*models.Message // insertion order
	notifications []*models.Notification
	trips         map[uuid.UUID]*models.Trip
	bookings      []*models.Booking

	publish func(realtime.Event)
	now     func() time.Time
	last    time.Time
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:    make(map[uuid.UUID]*models.User),
		profiles: make(map[uuid.UUID]*models.Profile),
		trips:    make(map[uuid.UUID]*models.Trip),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetPublisher sets the sink for change events, usually realtime.Hub.Publish
func (db *MemoryDB) SetPublisher(fn func(realtime.Event)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.publish = fn
}

// SetClock replaces the time source used for created_at
func (db *MemoryDB) SetClock(now func() time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.now = now
}

// timestamp returns a strictly increasing time; caller holds mu
func (db *MemoryDB) timestamp() time.Time {
	t := db.now()
	if !t.After(db.last) {
		t = db.last.Add(time.Microsecond)
	}
	db.last = t
	return t
}

func (db *MemoryDB) emit(events []realtime.Event) {
	db.mu.Lock()
	publish := db.publish
	db.mu.Unlock()

	if publish == nil {
		return
	}
	for _, e := range events {
		publish(e)
	}
}

func (db *MemoryDB) Close() error { return nil }

// Users

func (db *MemoryDB) CreateUser(ctx context.Context, email, passwordHash, firstName, lastName string) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if strings.EqualFold(u.Email, email) {
			return nil, ErrUserAlreadyExists
		}
	}

	now := db.timestamp()
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}
	db.users[user.ID] = user
	db.profiles[user.ID] = &models.Profile{
		ID:        user.ID,
		FirstName: firstName,
		LastName:  lastName,
		UpdatedAt: now,
	}

	u := *user
	return &u, nil
}

func (db *MemoryDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, ErrUserNotFound
}

func (db *MemoryDB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	u, ok := db.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *u
	return &c, nil
}

// Profiles

func (db *MemoryDB) GetProfiles(ctx context.Context, ids []uuid.UUID) ([]*models.Profile, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []*models.Profile
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := db.profiles[id]; ok {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (db *MemoryDB) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.Profile, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, ok := db.profiles[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	update.Apply(p)
	p.UpdatedAt = db.timestamp()
	c := *p
	return &c, nil
}

// Messages

func (db *MemoryDB) CreateMessage(ctx context.Context, senderID, receiverID uuid.UUID, content string, tripID *uuid.UUID) (*models.Message, error) {
	db.mu.Lock()
	if _, ok := db.users[senderID]; !ok {
		db.mu.Unlock()
		return nil, ErrUserNotFound
	}
	if _, ok := db.users[receiverID]; !ok {
		db.mu.Unlock()
		return nil, ErrUserNotFound
	}

	msg := &models.Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  db.timestamp(),
	}
	if tripID != nil {
		id := *tripID
		msg.TripID = &id
	}
	db.messages = append(db.messages, msg)
	out := msg.Clone()
	db.mu.Unlock()

	db.emit([]realtime.Event{realtime.MessageEvent(realtime.Insert, msg.Clone())})
	return out, nil
}

func (db *MemoryDB) findMessage(id uuid.UUID) *models.Message {
	for _, m := range db.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (db *MemoryDB) GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	m := db.findMessage(id)
	if m == nil {
		return nil, ErrMessageNotFound
	}
	return m.Clone(), nil
}

func (db *MemoryDB) GetConversation(ctx context.Context, userID1, userID2 uuid.UUID, tripID *uuid.UUID) ([]*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []*models.Message
	for _, m := range db.messages {
		between := (m.SenderID == userID1 && m.ReceiverID == userID2) ||
			(m.SenderID == userID2 && m.ReceiverID == userID1)
		if between && m.InTrip(tripID) {
			out = append(out, m.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (db *MemoryDB) GetMessagesByUser(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []*models.Message
	for _, m := range db.messages {
		if m.SenderID == userID || m.ReceiverID == userID {
			out = append(out, m.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (db *MemoryDB) MarkMessagesRead(ctx context.Context, receiverID uuid.UUID, ids []uuid.UUID) (int64, error) {
	db.mu.Lock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var events []realtime.Event
	for _, m := range db.messages {
		if want[m.ID] && m.ReceiverID == receiverID && !m.Read {
			m.Read = true
			events = append(events, realtime.MessageEvent(realtime.Update, m.Clone()))
		}
	}
	db.mu.Unlock()

	db.emit(events)
	return int64(len(events)), nil
}

func (db *MemoryDB) SetMessageDeleted(ctx context.Context, id uuid.UUID, role models.ParticipantRole) (*models.Message, error) {
	db.mu.Lock()
	m := db.findMessage(id)
	if m == nil {
		db.mu.Unlock()
		return nil, ErrMessageNotFound
	}
	switch role {
	case models.RoleSender:
		m.DeletedBySender = true
	case models.RoleReceiver:
		m.DeletedByReceiver = true
	}
	out := m.Clone()
	db.mu.Unlock()

	db.emit([]realtime.Event{realtime.MessageEvent(realtime.Update, out.Clone())})
	return out, nil
}

func (db *MemoryDB) CountUnreadMessages(ctx context.Context, receiverID uuid.UUID) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	n := 0
	for _, m := range db.messages {
		if m.ReceiverID == receiverID && !m.Read && !m.DeletedByReceiver {
			n++
		}
	}
	return n, nil
}

// Notifications

func (db *MemoryDB) CreateNotification(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	db.mu.Lock()
	row := n.Clone()
	row.ID = uuid.New()
	row.Read = false
	row.CreatedAt = db.timestamp()
	db.notifications = append(db.notifications, row)
	out := row.Clone()
	db.mu.Unlock()

	db.emit([]realtime.Event{realtime.NotificationEvent(realtime.Insert, row.Clone())})
	return out, nil
}

func (db *MemoryDB) findNotification(id uuid.UUID) *models.Notification {
	for _, n := range db.notifications {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func (db *MemoryDB) GetNotificationByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	n := db.findNotification(id)
	if n == nil {
		return nil, ErrNotificationNotFound
	}
	return n.Clone(), nil
}

func (db *MemoryDB) GetNotificationsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Notification, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []*models.Notification
	for _, n := range db.notifications {
		if n.UserID == userID {
			out = append(out, n.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (db *MemoryDB) MarkNotificationRead(ctx context.Context, id uuid.UUID) error {
	db.mu.Lock()
	n := db.findNotification(id)
	if n == nil {
		db.mu.Unlock()
		return ErrNotificationNotFound
	}
	var events []realtime.Event
	if !n.Read {
		n.Read = true
		events = append(events, realtime.NotificationEvent(realtime.Update, n.Clone()))
	}
	db.mu.Unlock()

	db.emit(events)
	return nil
}

func (db *MemoryDB) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	db.mu.Lock()
	var events []realtime.Event
	for _, n := range db.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			events = append(events, realtime.NotificationEvent(realtime.Update, n.Clone()))
		}
	}
	db.mu.Unlock()

	db.emit(events)
	return int64(len(events)), nil
}

func (db *MemoryDB) CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	count := 0
	for _, n := range db.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

// Trips

func (db *MemoryDB) CreateTrip(ctx context.Context, t *models.Trip) (*models.Trip, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.users[t.DriverID]; !ok {
		return nil, ErrUserNotFound
	}
	row := *t
	row.ID = uuid.New()
	row.CreatedAt = db.timestamp()
	db.trips[row.ID] = &row

	out := row
	return &out, nil
}

func (db *MemoryDB) GetTripByID(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, ok := db.trips[id]
	if !ok {
		return nil, ErrTripNotFound
	}
	c := *t
	return &c, nil
}

func (db *MemoryDB) GetTripsByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Trip, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []*models.Trip
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if t, ok := db.trips[id]; ok {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (db *MemoryDB) GetTripsByDriver(ctx context.Context, driverID uuid.UUID) ([]*models.Trip, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []*models.Trip
	for _, t := range db.trips {
		if t.DriverID == driverID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DepartureDate.Equal(out[j].DepartureDate) {
			return out[i].DepartureDate.After(out[j].DepartureDate)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (db *MemoryDB) ReserveSeats(ctx context.Context, tripID uuid.UUID, seats int) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, ok := db.trips[tripID]
	if !ok {
		return 0, ErrTripNotFound
	}
	if t.SeatsAvailable < seats {
		return t.SeatsAvailable, ErrInsufficientSeats
	}
	t.SeatsAvailable -= seats
	return t.SeatsAvailable, nil
}

func (db *MemoryDB) ReleaseSeats(ctx context.Context, tripID uuid.UUID, seats int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, ok := db.trips[tripID]
	if !ok {
		return ErrTripNotFound
	}
	t.SeatsAvailable += seats
	return nil
}

// Bookings

func (db *MemoryDB) CreateBooking(ctx context.Context, tripID, passengerID uuid.UUID, seats int) (*models.Booking, error) {
	db.mu.Lock()
	if _, ok := db.trips[tripID]; !ok {
		db.mu.Unlock()
		return nil, ErrTripNotFound
	}
	b := &models.Booking{
		ID:          uuid.New(),
		TripID:      tripID,
		PassengerID: passengerID,
		Seats:       seats,
		Status:      models.BookingPending,
		CreatedAt:   db.timestamp(),
	}
	db.bookings = append(db.bookings, b)
	out := *b
	db.mu.Unlock()

	ev := *b
	db.emit([]realtime.Event{realtime.BookingEvent(realtime.Insert, &ev)})
	return &out, nil
}

func (db *MemoryDB) findBooking(id uuid.UUID) *models.Booking {
	for _, b := range db.bookings {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func (db *MemoryDB) GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	b := db.findBooking(id)
	if b == nil {
		return nil, ErrBookingNotFound
	}
	c := *b
	return &c, nil
}

func (db *MemoryDB) bookingsWhere(match func(*models.Booking) bool) []*models.Booking {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []*models.Booking
	for _, b := range db.bookings {
		if match(b) {
			c := *b
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (db *MemoryDB) GetBookingsByPassenger(ctx context.Context, passengerID uuid.UUID) ([]*models.Booking, error) {
	return db.bookingsWhere(func(b *models.Booking) bool { return b.PassengerID == passengerID }), nil
}

func (db *MemoryDB) GetBookingsByTrip(ctx context.Context, tripID uuid.UUID) ([]*models.Booking, error) {
	return db.bookingsWhere(func(b *models.Booking) bool { return b.TripID == tripID }), nil
}

func (db *MemoryDB) GetBookingsByTrips(ctx context.Context, tripIDs []uuid.UUID) ([]*models.Booking, error) {
	want := make(map[uuid.UUID]bool, len(tripIDs))
	for _, id := range tripIDs {
		want[id] = true
	}
	return db.bookingsWhere(func(b *models.Booking) bool { return want[b.TripID] }), nil
}

func (db *MemoryDB) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus) (*models.Booking, error) {
	db.mu.Lock()
	b := db.findBooking(id)
	if b == nil {
		db.mu.Unlock()
		return nil, ErrBookingNotFound
	}
	if b.Status != from {
		db.mu.Unlock()
		return nil, ErrBookingStatusConflict
	}
	now := db.timestamp()
	b.Status = to
	b.UpdatedAt = &now
	out := *b
	db.mu.Unlock()

	ev := out
	db.emit([]realtime.Event{realtime.BookingEvent(realtime.Update, &ev)})
	return &out, nil
}
