package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codecollab/collab-server/internal/document"
	"github.com/codecollab/collab-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	lastUpsert *models.User
	upsertErr  error
}

func (f *fakeRepo) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	f.lastUpsert = u
	// simulate repository behavior: ensure timestamps are set
	now := time.Now().UTC()
	if f.lastUpsert.CreatedAt.IsZero() {
		f.lastUpsert.CreatedAt = now
	}
	f.lastUpsert.UpdatedAt = now
	// return a copy with an ID set
	ret := *f.lastUpsert
	ret.ID = "abcd1234"
	return &ret, f.upsertErr
}

func (f *fakeRepo) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return nil, nil
}

func (f *fakeRepo) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	return nil, f.upsertErr
}

func (f *fakeRepo) FindBySubs(ctx context.Context, subs []string) ([]*models.User, error) {
	return nil, f.upsertErr
}

func TestUpsertFromClaims(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()
	claims := map[string]interface{}{
		"sub":                "sub-123",
		"email":              "X@Example.com",
		"name":               "X User",
		"preferred_username": "xuser",
	}

	u, err := svc.UpsertFromClaims(ctx, claims)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "sub-123", u.Sub)
	assert.Equal(t, "x@example.com", u.Email)
	assert.Equal(t, "X User", u.Name)
	assert.Equal(t, "xuser", u.Username)
	require.NotNil(t, repo.lastUpsert, "expected repository UpsertBySub to be called")
	assert.False(t, repo.lastUpsert.UpdatedAt.IsZero())
	assert.NotEmpty(t, u.ID)

	// missing sub => nil user
	u2, err := svc.UpsertFromClaims(ctx, map[string]interface{}{"email": "y@e.com"})
	require.NoError(t, err)
	assert.Nil(t, u2)
}

func TestResolve(t *testing.T) {
	repo := NewMemoryUserRepository()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.UpsertFromClaims(ctx, map[string]interface{}{
		"sub": "u-bob", "email": "bob@example.com", "preferred_username": "bob",
	})
	require.NoError(t, err)

	id, err := svc.Resolve(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "u-bob", id)

	id, err = svc.Resolve(ctx, "BOB@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-bob", id)

	_, err = svc.Resolve(ctx, "nobody")
	assert.ErrorIs(t, err, document.ErrUserNotFound)
	assert.ErrorIs(t, err, document.ErrNotFound)

	_, err = svc.Resolve(ctx, "  ")
	assert.ErrorIs(t, err, document.ErrValidation)
}

func TestMemoryUserRepository_UpsertKeepsCreatedAt(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	first, err := repo.UpsertBySub(ctx, &models.User{Sub: "s1", Username: "alice", Email: "a@example.com"})
	require.NoError(t, err)

	second, err := repo.UpsertBySub(ctx, &models.User{Sub: "s1", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, "alice", second.Username)
	assert.Equal(t, "alice@example.com", second.Email)

	got, err := repo.GetBySub(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice@example.com", got.Email)

	missing, err := repo.GetBySub(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestProfiles(t *testing.T) {
	repo := NewMemoryUserRepository()
	svc := NewService(repo)
	ctx := context.Background()
	for _, claims := range []map[string]interface{}{
		{"sub": "u1", "preferred_username": "alice", "email": "Alice@Example.com"},
		{"sub": "u2", "preferred_username": "bob", "email": "bob@example.com"},
	} {
		_, err := svc.UpsertFromClaims(ctx, claims)
		require.NoError(t, err)
	}

	people, err := svc.Profiles(ctx, []string{"u1", "u1", "", "ghost", "u2"})
	require.NoError(t, err)
	require.Len(t, people, 2)
	assert.Equal(t, document.Person{ID: "u1", Username: "alice", Email: "alice@example.com"}, people["u1"])
	assert.Equal(t, "bob", people["u2"].Username)

	failing := NewService(&fakeRepo{upsertErr: errors.New("mongo down")})
	_, err = failing.Profiles(ctx, []string{"u1"})
	assert.ErrorIs(t, err, document.ErrTransient)
}
