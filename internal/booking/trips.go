package booking

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/database"
	"github.com/ammar1510/rideshare/internal/models"
)

var errInvalidTrip = apperr.InvalidArg("a trip needs an origin, a destination and at least one seat")

// CreateTrip offers a ride driven by driver
func (l *Lifecycle) CreateTrip(ctx context.Context, driver uuid.UUID, req models.TripRequest) (*models.Trip, error) {
	if driver == uuid.Nil {
		return nil, errUnauthenticated
	}
	origin := strings.TrimSpace(req.Origin)
	destination := strings.TrimSpace(req.Destination)
	if origin == "" || destination == "" || req.SeatsAvailable < 1 || req.Price < 0 {
		return nil, errInvalidTrip
	}

	trip, err := l.repo.CreateTrip(ctx, &models.Trip{
		DriverID:       driver,
		Origin:         origin,
		Destination:    destination,
		DepartureDate:  req.DepartureDate,
		Price:          req.Price,
		SeatsAvailable: req.SeatsAvailable,
		Description:    strings.TrimSpace(req.Description),
	})
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, apperr.ErrUserNotFound
	}
	if err != nil {
		log.Error("Failed to create trip for %s: %v", driver, err)
		return nil, apperr.Transient("create trip", err)
	}
	log.Info("Trip %s offered by %s: %s -> %s", trip.ID, driver, origin, destination)
	return trip, nil
}

func (l *Lifecycle) GetTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	return l.trip(ctx, id)
}

// ListDriverTrips returns the driver's trips, latest departure first, each
// with all of its bookings
func (l *Lifecycle) ListDriverTrips(ctx context.Context, driver uuid.UUID) ([]models.DriverTrip, error) {
	if driver == uuid.Nil {
		return nil, errUnauthenticated
	}
	trips, err := l.repo.GetTripsByDriver(ctx, driver)
	if err != nil {
		log.Error("Failed to list trips of %s: %v", driver, err)
		return nil, apperr.Transient("list trips", err)
	}
	out := make([]models.DriverTrip, 0, len(trips))
	if len(trips) == 0 {
		return out, nil
	}

	ids := make([]uuid.UUID, len(trips))
	for i, t := range trips {
		ids[i] = t.ID
	}
	bookings, err := l.repo.GetBookingsByTrips(ctx, ids)
	if err != nil {
		log.Error("Failed to list bookings on trips of %s: %v", driver, err)
		return nil, apperr.Transient("list trips", err)
	}
	byTrip := make(map[uuid.UUID][]*models.Booking, len(trips))
	for _, b := range bookings {
		byTrip[b.TripID] = append(byTrip[b.TripID], b)
	}

	for _, t := range trips {
		list := byTrip[t.ID]
		if list == nil {
			list = []*models.Booking{}
		}
		out = append(out, models.DriverTrip{Trip: *t, Bookings: list})
	}
	return out, nil
}
