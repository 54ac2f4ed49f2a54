package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/codecollab/collab-server/internal/document"
	"github.com/codecollab/collab-server/internal/models"
	"github.com/samber/lo"
)

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// UpsertFromClaims creates or updates a user using OIDC claims map
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*models.User, error) {
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	username, _ := claims["preferred_username"].(string)
	if sub == "" {
		return nil, nil
	}
	u := &models.User{
		Sub:      sub,
		Username: username,
		Email:    strings.ToLower(email),
		Name:     name,
	}
	return s.repo.UpsertBySub(ctx, u)
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return s.repo.GetBySub(ctx, sub)
}

// Resolve maps a username or email to the user's stable id.
func (s *Service) Resolve(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", fmt.Errorf("%w: identifier is required", document.ErrValidation)
	}
	u, err := s.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		return "", document.Transient("find user", err)
	}
	if u == nil {
		return "", document.ErrUserNotFound
	}
	return u.Sub, nil
}

// Profiles returns the public profile of every known user among subs, keyed
// by sub. Unknown subs are absent from the result.
func (s *Service) Profiles(ctx context.Context, subs []string) (map[string]document.Person, error) {
	subs = lo.Uniq(lo.Compact(subs))
	found, err := s.repo.FindBySubs(ctx, subs)
	if err != nil {
		return nil, document.Transient("find users", err)
	}
	return lo.SliceToMap(found, func(u *models.User) (string, document.Person) {
		return u.Sub, document.Person{ID: u.Sub, Username: u.Username, Email: u.Email}
	}), nil
}
