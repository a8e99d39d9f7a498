// Package booking implements trips and the seat reservation lifecycle:
// pending -> confirmed and pending -> cancelled.
package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/database"
	"github.com/ammar1510/rideshare/internal/logger"
	"github.com/ammar1510/rideshare/internal/models"
)

var log = logger.New("booking")

var errUnauthenticated = apperr.Unauthorized("sign in to manage bookings")

// Notifier delivers system notifications. notifications.Store satisfies it.
type Notifier interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)
}

// Repository is the part of the backend the lifecycle writes to
type Repository interface {
	database.TripRepository
	database.BookingRepository
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ProfileLookup resolves drivers for the passenger's booking list.
// directory.Directory satisfies it.
type ProfileLookup interface {
	Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Profile, error)
}

type Lifecycle struct {
	repo     Repository
	notify   Notifier
	profiles ProfileLookup
}

// NewLifecycle creates the booking lifecycle. profiles may be nil, in which
// case bookings are listed without the driver.
func NewLifecycle(repo Repository, notify Notifier, profiles ProfileLookup) *Lifecycle {
	return &Lifecycle{repo: repo, notify: notify, profiles: profiles}
}

func (l *Lifecycle) trip(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	trip, err := l.repo.GetTripByID(ctx, id)
	if errors.Is(err, database.ErrTripNotFound) {
		return nil, apperr.ErrTripNotFound
	}
	if err != nil {
		log.Error("Failed to load trip %s: %v", id, err)
		return nil, apperr.Transient("load trip", err)
	}
	return trip, nil
}

// Create books seats on a trip for passenger. Every precondition is checked
// before the first write. Seats are reserved with one atomic conditional
// decrement and the booking row is only inserted once that succeeded, so a
// failure leaves no booking behind.
func (l *Lifecycle) Create(ctx context.Context, passenger, tripID uuid.UUID, seats int) (*models.Booking, error) {
	if passenger == uuid.Nil {
		return nil, errUnauthenticated
	}
	if seats == 0 {
		seats = 1
	}
	if seats < 1 {
		return nil, apperr.ErrInvalidSeatCount
	}

	trip, err := l.trip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.DriverID == passenger {
		log.Debug("Rejected self-booking of trip %s by %s", tripID, passenger)
		return nil, apperr.ErrSelfBooking
	}
	if trip.SeatsAvailable < seats {
		log.Debug("Rejected booking of %d seats on trip %s: %d left", seats, tripID, trip.SeatsAvailable)
		return nil, apperr.ErrNoSeatsAvailable
	}

	left, err := l.repo.ReserveSeats(ctx, tripID, seats)
	switch {
	case errors.Is(err, database.ErrInsufficientSeats):
		// lost the race to a concurrent booking
		return nil, apperr.ErrNoSeatsAvailable
	case errors.Is(err, database.ErrTripNotFound):
		return nil, apperr.ErrTripNotFound
	case err != nil:
		log.Error("Failed to reserve %d seats on trip %s: %v", seats, tripID, err)
		return nil, apperr.Transient("reserve seats", err)
	}

	booking, err := l.repo.CreateBooking(ctx, tripID, passenger, seats)
	if err != nil {
		log.Error("Failed to create booking on trip %s: %v", tripID, err)
		if rerr := l.repo.ReleaseSeats(ctx, tripID, seats); rerr != nil {
			log.Error("Failed to release %d seats on trip %s: %v", seats, tripID, rerr)
		}
		return nil, apperr.Transient("create booking", err)
	}
	log.Info("Booking %s created on trip %s (%d seats, %d left)", booking.ID, tripID, seats, left)

	l.notifyDriver(ctx, trip, booking)
	return booking, nil
}

func (l *Lifecycle) notifyDriver(ctx context.Context, trip *models.Trip, b *models.Booking) {
	who := "a passenger"
	if u, err := l.repo.GetUserByID(ctx, b.PassengerID); err == nil {
		who = u.Email
	}
	tripID, bookingID := trip.ID, b.ID
	l.send(ctx, &models.Notification{
		UserID:           trip.DriverID,
		Message:          fmt.Sprintf("New booking request for your trip from %s", who),
		RelatedTripID:    &tripID,
		RelatedBookingID: &bookingID,
	})
}

func (l *Lifecycle) send(ctx context.Context, n *models.Notification) {
	if l.notify == nil {
		return
	}
	if _, err := l.notify.Create(ctx, n); err != nil {
		log.Warn("Notification for %s not created: %v", n.UserID, err)
	}
}

// SetStatus lets the trip's driver confirm or decline a pending booking.
// Declining does not return the seats to the trip.
func (l *Lifecycle) SetStatus(ctx context.Context, actor, bookingID uuid.UUID, status models.BookingStatus) (*models.Booking, error) {
	if actor == uuid.Nil {
		return nil, errUnauthenticated
	}
	if status != models.BookingConfirmed && status != models.BookingCancelled {
		return nil, apperr.ErrInvalidStatus
	}

	b, err := l.booking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	trip, err := l.trip(ctx, b.TripID)
	if err != nil {
		return nil, err
	}
	if trip.DriverID != actor {
		return nil, apperr.ErrNotTripDriver
	}
	if b.Status != models.BookingPending {
		return nil, apperr.ErrInvalidTransition
	}

	updated, err := l.repo.UpdateBookingStatus(ctx, bookingID, models.BookingPending, status)
	switch {
	case errors.Is(err, database.ErrBookingStatusConflict):
		return nil, apperr.ErrInvalidTransition
	case errors.Is(err, database.ErrBookingNotFound):
		return nil, apperr.ErrBookingNotFound
	case err != nil:
		log.Error("Failed to set booking %s to %s: %v", bookingID, status, err)
		return nil, apperr.Transient("update booking", err)
	}
	log.Info("Booking %s %s by driver %s", bookingID, status, actor)

	tripID, id := trip.ID, updated.ID
	l.send(ctx, &models.Notification{
		UserID:           updated.PassengerID,
		Message:          statusMessage(trip, status),
		RelatedTripID:    &tripID,
		RelatedBookingID: &id,
	})
	return updated, nil
}

func statusMessage(trip *models.Trip, status models.BookingStatus) string {
	verb := "confirmed"
	if status == models.BookingCancelled {
		verb = "declined"
	}
	return fmt.Sprintf("Your booking for the trip from %s to %s was %s", trip.Origin, trip.Destination, verb)
}

func (l *Lifecycle) booking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	b, err := l.repo.GetBookingByID(ctx, id)
	if errors.Is(err, database.ErrBookingNotFound) {
		return nil, apperr.ErrBookingNotFound
	}
	if err != nil {
		log.Error("Failed to load booking %s: %v", id, err)
		return nil, apperr.Transient("load booking", err)
	}
	return b, nil
}

// ListForPassenger returns the passenger's bookings, newest first
func (l *Lifecycle) ListForPassenger(ctx context.Context, passenger uuid.UUID) ([]*models.Booking, error) {
	if passenger == uuid.Nil {
		return nil, errUnauthenticated
	}
	list, err := l.repo.GetBookingsByPassenger(ctx, passenger)
	if err != nil {
		log.Error("Failed to list bookings of %s: %v", passenger, err)
		return nil, apperr.Transient("list bookings", err)
	}
	if list == nil {
		list = []*models.Booking{}
	}
	return list, nil
}

// ListPassengerBookings returns the passenger's bookings, newest first, each
// with its trip and driver. A failed profile lookup leaves Driver nil.
func (l *Lifecycle) ListPassengerBookings(ctx context.Context, passenger uuid.UUID) ([]models.PassengerBooking, error) {
	bookings, err := l.ListForPassenger(ctx, passenger)
	if err != nil {
		return nil, err
	}
	out := make([]models.PassengerBooking, 0, len(bookings))
	if len(bookings) == 0 {
		return out, nil
	}

	tripIDs := make([]uuid.UUID, 0, len(bookings))
	for _, b := range bookings {
		tripIDs = append(tripIDs, b.TripID)
	}
	trips, err := l.repo.GetTripsByIDs(ctx, tripIDs)
	if err != nil {
		log.Error("Failed to load trips for bookings of %s: %v", passenger, err)
		return nil, apperr.Transient("list bookings", err)
	}
	byID := make(map[uuid.UUID]*models.Trip, len(trips))
	drivers := make([]uuid.UUID, 0, len(trips))
	for _, t := range trips {
		byID[t.ID] = t
		drivers = append(drivers, t.DriverID)
	}

	var profiles map[uuid.UUID]*models.Profile
	if l.profiles != nil {
		profiles, err = l.profiles.Lookup(ctx, drivers)
		if err != nil {
			log.Warn("Driver lookup failed for bookings of %s: %v", passenger, err)
		}
	}

	for _, b := range bookings {
		pb := models.PassengerBooking{Booking: *b, Trip: byID[b.TripID]}
		if pb.Trip != nil {
			pb.Driver = profiles[pb.Trip.DriverID]
		}
		out = append(out, pb)
	}
	return out, nil
}

// ListForTrip returns the bookings on a trip. Only its driver may see them.
func (l *Lifecycle) ListForTrip(ctx context.Context, actor, tripID uuid.UUID) ([]*models.Booking, error) {
	if actor == uuid.Nil {
		return nil, errUnauthenticated
	}
	trip, err := l.trip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.DriverID != actor {
		return nil, apperr.ErrNotTripDriver
	}
	list, err := l.repo.GetBookingsByTrip(ctx, tripID)
	if err != nil {
		log.Error("Failed to list bookings of trip %s: %v", tripID, err)
		return nil, apperr.Transient("list bookings", err)
	}
	if list == nil {
		list = []*models.Booking{}
	}
	return list, nil
}
