package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/repository"
)

// UserService mirrors identity-provider profiles so display names can be
// resolved without calling the provider.
type UserService struct {
	users UserStore
	log   zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(users UserStore, log zerolog.Logger) *UserService {
	return &UserService{
		users: users,
		log:   log.With().Str("component", "user_service").Logger(),
	}
}

// SyncProfile upserts the caller's profile. displayName overrides the name
// carried by the token when non-empty.
func (s *UserService) SyncProfile(ctx context.Context, caller Identity, displayName string) (*model.User, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = strings.TrimSpace(caller.DisplayName)
	}
	u := &model.User{ID: caller.ID, DisplayName: name, Role: caller.Role}
	if err := s.users.Upsert(ctx, u); err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	s.log.Debug().Str("user_id", u.ID).Str("role", string(u.Role)).Msg("Profile synced")
	return u, nil
}

// GetProfile returns a mirrored profile.
func (s *UserService) GetProfile(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return u, nil
}
