package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // PostgreSQL driver

	"github.com/ammar1510/rideshare/internal/models"
)

const uniqueViolation = "23505"

type PostgresDB struct {
	*sql.DB
}

func NewPostgresDB(connStr string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresDB{db}, nil
}

func (db *PostgresDB) Close() error {
	return db.DB.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func uuidArray(ids []uuid.UUID) interface{} {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return pq.Array(strs)
}

func nullableUUID(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}

// Users

func (db *PostgresDB) CreateUser(ctx context.Context, email, passwordHash, firstName, lastName string) (*models.User, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE lower(email) = lower($1)", email).Scan(&count)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUserAlreadyExists
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)",
		user.ID, user.Email, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO profiles (id, first_name, last_name, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)",
		user.ID, firstName, lastName, user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return user, nil
}

func (db *PostgresDB) getUser(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	user := &models.User{}
	err := db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, created_at FROM users WHERE "+where, arg,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.getUser(ctx, "lower(email) = lower($1)", email)
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return db.getUser(ctx, "id = $1", id)
}

// Profiles

const profileColumns = `id, COALESCE(first_name, ''), COALESCE(last_name, ''),
	COALESCE(avatar_url, ''), COALESCE(phone, ''), updated_at`

func scanProfile(row rowScanner) (*models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.AvatarURL, &p.Phone, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *PostgresDB) GetProfiles(ctx context.Context, ids []uuid.UUID) ([]*models.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := db.QueryContext(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE id = ANY($1::uuid[])", uuidArray(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profile rows: %w", err)
	}
	return profiles, nil
}

func (db *PostgresDB) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.Profile, error) {
	p, err := scanProfile(db.QueryRowContext(ctx,
		`UPDATE profiles SET
			first_name = COALESCE($2, first_name),
			last_name  = COALESCE($3, last_name),
			phone      = COALESCE($4, phone),
			avatar_url = COALESCE($5, avatar_url),
			updated_at = now()
		WHERE id = $1
		RETURNING `+profileColumns,
		id, update.FirstName, update.LastName, update.Phone, update.AvatarURL,
	))
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	return p, err
}

// Messages

const messageColumns = `id, sender_id, receiver_id, content, created_at, read,
	trip_id, deleted_by_sender, deleted_by_receiver`

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var tripID uuid.NullUUID
	err := row.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.CreatedAt,
		&msg.Read, &tripID, &msg.DeletedBySender, &msg.DeletedByReceiver)
	if err != nil {
		return nil, err
	}
	msg.TripID = nullableUUID(tripID)
	return &msg, nil
}

func (db *PostgresDB) queryMessages(ctx context.Context, query string, args ...interface{}) ([]*models.Message, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (db *PostgresDB) CreateMessage(ctx context.Context, senderID, receiverID uuid.UUID, content string, tripID *uuid.UUID) (*models.Message, error) {
	msg, err := scanMessage(db.QueryRowContext(ctx,
		`INSERT INTO messages (id, sender_id, receiver_id, content, trip_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+messageColumns,
		uuid.New(), senderID, receiverID, content, tripID,
	))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return msg, nil
}

func (db *PostgresDB) GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	msg, err := scanMessage(db.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = $1", id))
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	return msg, err
}

func (db *PostgresDB) GetConversation(ctx context.Context, userID1, userID2 uuid.UUID, tripID *uuid.UUID) ([]*models.Message, error) {
	return db.queryMessages(ctx,
		`SELECT `+messageColumns+`
		FROM messages
		WHERE ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		  AND ($3::uuid IS NULL OR trip_id = $3)
		ORDER BY created_at ASC, id ASC`,
		userID1, userID2, tripID,
	)
}

func (db *PostgresDB) GetMessagesByUser(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	return db.queryMessages(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE sender_id = $1 OR receiver_id = $1 ORDER BY created_at DESC",
		userID,
	)
}

func (db *PostgresDB) MarkMessagesRead(ctx context.Context, receiverID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := db.ExecContext(ctx,
		"UPDATE messages SET read = true WHERE id = ANY($1::uuid[]) AND receiver_id = $2 AND NOT read",
		uuidArray(ids), receiverID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (db *PostgresDB) SetMessageDeleted(ctx context.Context, id uuid.UUID, role models.ParticipantRole) (*models.Message, error) {
	var column string
	switch role {
	case models.RoleSender:
		column = "deleted_by_sender"
	case models.RoleReceiver:
		column = "deleted_by_receiver"
	default:
		return nil, fmt.Errorf("unknown participant role: %q", role)
	}

	msg, err := scanMessage(db.QueryRowContext(ctx,
		"UPDATE messages SET "+column+" = true WHERE id = $1 RETURNING "+messageColumns, id))
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	return msg, err
}

func (db *PostgresDB) CountUnreadMessages(ctx context.Context, receiverID uuid.UUID) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND NOT read AND NOT deleted_by_receiver",
		receiverID,
	).Scan(&count)
	return count, err
}

// Notifications

const notificationColumns = `id, user_id, message, read, created_at, related_trip_id, related_booking_id`

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var tripID, bookingID uuid.NullUUID
	err := row.Scan(&n.ID, &n.UserID, &n.Message, &n.Read, &n.CreatedAt, &tripID, &bookingID)
	if err != nil {
		return nil, err
	}
	n.RelatedTripID = nullableUUID(tripID)
	n.RelatedBookingID = nullableUUID(bookingID)
	return &n, nil
}

func (db *PostgresDB) CreateNotification(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	return scanNotification(db.QueryRowContext(ctx,
		`INSERT INTO notifications (id, user_id, message, related_trip_id, related_booking_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+notificationColumns,
		uuid.New(), n.UserID, n.Message, n.RelatedTripID, n.RelatedBookingID,
	))
}

func (db *PostgresDB) GetNotificationByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	n, err := scanNotification(db.QueryRowContext(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE id = $1", id))
	if err == sql.ErrNoRows {
		return nil, ErrNotificationNotFound
	}
	return n, err
}

func (db *PostgresDB) GetNotificationsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Notification, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE user_id = $1 ORDER BY created_at DESC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (db *PostgresDB) MarkNotificationRead(ctx context.Context, id uuid.UUID) error {
	// The unread guard keeps a repeated call from emitting another change event.
	result, err := db.ExecContext(ctx,
		"UPDATE notifications SET read = true WHERE id = $1 AND NOT read", id)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		var exists bool
		if err := db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM notifications WHERE id = $1)", id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotificationNotFound
		}
	}
	return nil
}

func (db *PostgresDB) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := db.ExecContext(ctx,
		"UPDATE notifications SET read = true WHERE user_id = $1 AND NOT read", userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (db *PostgresDB) CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read", userID).Scan(&count)
	return count, err
}

// Trips

const tripColumns = `id, driver_id, origin, destination, departure_date, price,
	seats_available, COALESCE(description, ''), created_at`

func scanTrip(row rowScanner) (*models.Trip, error) {
	var t models.Trip
	err := row.Scan(&t.ID, &t.DriverID, &t.Origin, &t.Destination, &t.DepartureDate, &t.Price,
		&t.SeatsAvailable, &t.Description, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (db *PostgresDB) CreateTrip(ctx context.Context, t *models.Trip) (*models.Trip, error) {
	trip, err := scanTrip(db.QueryRowContext(ctx,
		`INSERT INTO trips (id, driver_id, origin, destination, departure_date, price, seats_available, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
		RETURNING `+tripColumns,
		uuid.New(), t.DriverID, t.Origin, t.Destination, t.DepartureDate, t.Price, t.SeatsAvailable, t.Description,
	))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return trip, nil
}

func (db *PostgresDB) GetTripByID(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	t, err := scanTrip(db.QueryRowContext(ctx, "SELECT "+tripColumns+" FROM trips WHERE id = $1", id))
	if err == sql.ErrNoRows {
		return nil, ErrTripNotFound
	}
	return t, err
}

func (db *PostgresDB) GetTripsByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Trip, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx,
		"SELECT "+tripColumns+" FROM trips WHERE id = ANY($1::uuid[])", uuidArray(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []*models.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return trips, nil
}

func (db *PostgresDB) GetTripsByDriver(ctx context.Context, driverID uuid.UUID) ([]*models.Trip, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+tripColumns+" FROM trips WHERE driver_id = $1 ORDER BY departure_date DESC, created_at DESC", driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []*models.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return trips, nil
}

func (db *PostgresDB) ReserveSeats(ctx context.Context, tripID uuid.UUID, seats int) (int, error) {
	var remaining int
	err := db.QueryRowContext(ctx,
		`UPDATE trips SET seats_available = seats_available - $2, updated_at = now()
		WHERE id = $1 AND seats_available >= $2
		RETURNING seats_available`,
		tripID, seats,
	).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	err = db.QueryRowContext(ctx, "SELECT seats_available FROM trips WHERE id = $1", tripID).Scan(&remaining)
	if err == sql.ErrNoRows {
		return 0, ErrTripNotFound
	}
	if err != nil {
		return 0, err
	}
	return remaining, ErrInsufficientSeats
}

func (db *PostgresDB) ReleaseSeats(ctx context.Context, tripID uuid.UUID, seats int) error {
	result, err := db.ExecContext(ctx,
		"UPDATE trips SET seats_available = seats_available + $2, updated_at = now() WHERE id = $1",
		tripID, seats)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrTripNotFound
	}
	return nil
}

// Bookings

const bookingColumns = `id, trip_id, passenger_id, seats, status, created_at, updated_at`

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var status string
	var updatedAt sql.NullTime
	err := row.Scan(&b.ID, &b.TripID, &b.PassengerID, &b.Seats, &status, &b.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	b.Status = models.BookingStatus(status)
	if updatedAt.Valid {
		b.UpdatedAt = &updatedAt.Time
	}
	return &b, nil
}

func (db *PostgresDB) queryBookings(ctx context.Context, where string, arg interface{}) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE "+where+" ORDER BY created_at DESC", arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (db *PostgresDB) CreateBooking(ctx context.Context, tripID, passengerID uuid.UUID, seats int) (*models.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx,
		`INSERT INTO bookings (id, trip_id, passenger_id, seats, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+bookingColumns,
		uuid.New(), tripID, passengerID, seats, string(models.BookingPending),
	))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" && strings.Contains(pqErr.Constraint, "trip") {
			return nil, ErrTripNotFound
		}
		return nil, err
	}
	return b, nil
}

func (db *PostgresDB) GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = $1", id))
	if err == sql.ErrNoRows {
		return nil, ErrBookingNotFound
	}
	return b, err
}

func (db *PostgresDB) GetBookingsByPassenger(ctx context.Context, passengerID uuid.UUID) ([]*models.Booking, error) {
	return db.queryBookings(ctx, "passenger_id = $1", passengerID)
}

func (db *PostgresDB) GetBookingsByTrip(ctx context.Context, tripID uuid.UUID) ([]*models.Booking, error) {
	return db.queryBookings(ctx, "trip_id = $1", tripID)
}

func (db *PostgresDB) GetBookingsByTrips(ctx context.Context, tripIDs []uuid.UUID) ([]*models.Booking, error) {
	if len(tripIDs) == 0 {
		return nil, nil
	}
	return db.queryBookings(ctx, "trip_id = ANY($1::uuid[])", uuidArray(tripIDs))
}

func (db *PostgresDB) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus) (*models.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx,
		`UPDATE bookings SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+bookingColumns,
		id, string(from), string(to),
	))
	if err == nil {
		return b, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	if _, err := db.GetBookingByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrBookingStatusConflict
}
