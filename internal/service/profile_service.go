package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"autocare/internal/events"
	"autocare/internal/metrics"
	"autocare/internal/models"
)

var ErrForbidden = errors.New("not allowed to access this row")

type ProfileStore interface {
	Get(ctx context.Context, id string) (models.Profile, error)
	Insert(ctx context.Context, p models.Profile) (models.Profile, error)
	Update(ctx context.Context, id string, u models.ProfileUpdate) (models.Profile, error)
}

// ProfileService guards the profiles table: a caller only sees and
// changes its own row.
type ProfileService struct {
	profiles ProfileStore
	events   events.Publisher
	log      zerolog.Logger
}

func NewProfileService(profiles ProfileStore, publisher events.Publisher, log zerolog.Logger) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		events:   publisher,
		log:      log.With().Str("component", "profile_service").Logger(),
	}
}

func (s *ProfileService) Get(ctx context.Context, caller models.User, id string) (models.Profile, error) {
	if id != caller.ID {
		return models.Profile{}, ErrForbidden
	}
	return s.profiles.Get(ctx, id)
}

// Insert creates the caller's profile. The id defaults to the caller and the
// email to the caller's address.
func (s *ProfileService) Insert(ctx context.Context, caller models.User, p models.Profile) (models.Profile, error) {
	if p.ID == "" {
		p.ID = caller.ID
	}
	if p.ID != caller.ID {
		return models.Profile{}, ErrForbidden
	}
	if strings.TrimSpace(p.Email) == "" {
		p.Email = caller.Email
	}
	p.CreatedAt = nil
	p.UpdatedAt = nil
	return s.profiles.Insert(ctx, p)
}

// Update applies an allow-listed partial update and announces USER_UPDATED
// when something changed.
func (s *ProfileService) Update(ctx context.Context, caller models.User, id string, u models.ProfileUpdate) (models.Profile, error) {
	if id != caller.ID {
		return models.Profile{}, ErrForbidden
	}

	updated, err := s.profiles.Update(ctx, id, u)
	if err != nil {
		return models.Profile{}, err
	}
	if u.Empty() {
		return updated, nil
	}

	metrics.AuthEvent(models.EventUserUpdated)
	if s.events != nil {
		msg := models.AuthEventMessage{Event: models.EventUserUpdated, UserID: caller.ID}
		if err := s.events.Publish(ctx, msg); err != nil {
			s.log.Error().Err(err).Str("user_id", caller.ID).Msg("publish user updated failed")
		}
	}
	return updated, nil
}
