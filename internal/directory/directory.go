// Package directory resolves user ids to display profiles.
package directory

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/database"
	"github.com/ammar1510/rideshare/internal/logger"
	"github.com/ammar1510/rideshare/internal/models"
)

var log = logger.New("directory")

const maxNameLength = 100

// Cache stores profiles between lookups. Get returns only the hits.
type Cache interface {
	Get(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Profile, error)
	Set(ctx context.Context, profiles []*models.Profile) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

type Directory struct {
	repo  database.ProfileRepository
	cache Cache
}

// New creates a directory. cache may be nil.
func New(repo database.ProfileRepository, cache Cache) *Directory {
	return &Directory{repo: repo, cache: cache}
}

// Lookup resolves every distinct id with at most one cache read and one
// backend query. Unknown ids are absent from the result.
func (d *Directory) Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Profile, error) {
	result := make(map[uuid.UUID]*models.Profile, len(ids))
	distinct := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		distinct = append(distinct, id)
	}
	if len(distinct) == 0 {
		return result, nil
	}

	missing := distinct
	if d.cache != nil {
		hits, err := d.cache.Get(ctx, distinct)
		if err != nil {
			log.Warn("Profile cache read failed: %v", err)
		}
		if len(hits) > 0 {
			missing = missing[:0:0]
			for _, id := range distinct {
				if p, ok := hits[id]; ok {
					result[id] = p
				} else {
					missing = append(missing, id)
				}
			}
		}
	}
	if len(missing) == 0 {
		return result, nil
	}

	profiles, err := d.repo.GetProfiles(ctx, missing)
	if err != nil {
		log.Error("Failed to load %d profiles: %v", len(missing), err)
		return nil, apperr.Transient("profile lookup", err)
	}
	for _, p := range profiles {
		result[p.ID] = p
	}

	if d.cache != nil && len(profiles) > 0 {
		if err := d.cache.Set(ctx, profiles); err != nil {
			log.Warn("Profile cache write failed: %v", err)
		}
	}
	return result, nil
}

// Get returns one profile or apperr.ErrUserNotFound
func (d *Directory) Get(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	profiles, err := d.Lookup(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	p, ok := profiles[id]
	if !ok {
		return nil, apperr.ErrUserNotFound
	}
	return p, nil
}

// Update edits the caller's own profile and drops the cached copy
func (d *Directory) Update(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.Profile, error) {
	for _, name := range []*string{update.FirstName, update.LastName} {
		if name != nil && utf8.RuneCountInString(*name) > maxNameLength {
			return nil, apperr.ErrInvalidProfile
		}
	}

	p, err := d.repo.UpdateProfile(ctx, id, update)
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, apperr.ErrUserNotFound
	}
	if err != nil {
		log.Error("Failed to update profile %s: %v", id, err)
		return nil, apperr.Transient("profile update", err)
	}

	if d.cache != nil {
		if err := d.cache.Invalidate(ctx, id); err != nil {
			log.Warn("Failed to invalidate cached profile %s: %v", id, err)
		}
	}
	log.Info("Profile %s updated", id)
	return p, nil
}
