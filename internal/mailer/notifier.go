package mailer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ammar1510/rideshare/internal/database"
	"github.com/ammar1510/rideshare/internal/models"
)

// Repository is what the notifier reads to address and enrich an e-mail
type Repository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetProfiles(ctx context.Context, ids []uuid.UUID) ([]*models.Profile, error)
	GetTripByID(ctx context.Context, id uuid.UUID) (*models.Trip, error)
}

var _ Repository = (database.DBInterface)(nil)

// Notifier e-mails the recipient of each notification it is handed
type Notifier struct {
	repo    Repository
	mailer  Mailer
	baseURL string
}

func NewNotifier(repo Repository, mailer Mailer, baseURL string) *Notifier {
	return &Notifier{repo: repo, mailer: mailer, baseURL: baseURL}
}

// Handle sends the e-mail for n. A missing profile or trip only makes the
// e-mail less detailed; a missing recipient address is an error.
func (nt *Notifier) Handle(ctx context.Context, n *models.Notification) error {
	user, err := nt.repo.GetUserByID(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("recipient %s: %w", n.UserID, err)
	}

	var profile *models.Profile
	if profiles, err := nt.repo.GetProfiles(ctx, []uuid.UUID{n.UserID}); err != nil {
		log.Warn("No profile for %s: %v", n.UserID, err)
	} else if len(profiles) > 0 {
		profile = profiles[0]
	}

	var trip *models.Trip
	if n.RelatedTripID != nil {
		trip, err = nt.repo.GetTripByID(ctx, *n.RelatedTripID)
		if err != nil {
			log.Warn("Trip %s of notification %s not loaded: %v", *n.RelatedTripID, n.ID, err)
			trip = nil
		}
	}

	email, err := Compose(n, user.Email, profile, trip, nt.baseURL)
	if err != nil {
		return err
	}
	return nt.mailer.Send(ctx, email)
}
