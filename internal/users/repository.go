package users

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/codecollab/collab-server/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserRepository defines persistence operations for users.
// Lookups return (nil, nil) when no user matches.
type UserRepository interface {
	UpsertBySub(ctx context.Context, u *models.User) (*models.User, error)
	GetBySub(ctx context.Context, sub string) (*models.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	// FindBySubs returns the known users among subs; unknown subs are skipped.
	FindBySubs(ctx context.Context, subs []string) ([]*models.User, error)
}

// MongoUserRepository implements UserRepository using MongoDB
type MongoUserRepository struct {
	col *mongo.Collection
}

// NewMongoUserRepository creates a new repository for the given collection
func NewMongoUserRepository(col *mongo.Collection) *MongoUserRepository {
	return &MongoUserRepository{col: col}
}

// EnsureIndexes creates the lookup indexes used by FindByIdentifier.
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sub", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}},
	})
	return err
}

func (r *MongoUserRepository) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now().UTC()
	u.UpdatedAt = now

	filter := bson.M{"sub": u.Sub}
	set := bson.M{
		"email":     u.Email,
		"name":      u.Name,
		"updatedAt": u.UpdatedAt,
	}
	if u.Username != "" {
		set["username"] = u.Username
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var updated models.User
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated); err != nil {
		if err == mongo.ErrNoDocuments {
			// Shouldn't happen because of upsert, but handle gracefully
			u.CreatedAt = now
			return u, nil
		}
		return nil, err
	}
	return &updated, nil
}

func (r *MongoUserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"sub": sub})
}

func (r *MongoUserRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"username": identifier},
		bson.M{"email": strings.ToLower(identifier)},
	}})
}

func (r *MongoUserRepository) FindBySubs(ctx context.Context, subs []string) ([]*models.User, error) {
	if len(subs) == 0 {
		return nil, nil
	}
	cur, err := r.col.Find(ctx, bson.M{"sub": bson.M{"$in": subs}})
	if err != nil {
		return nil, err
	}
	var out []*models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// MemoryUserRepository keeps users in process memory. Used when no MongoDB
// is configured and in tests.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User // by sub
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*models.User)}
}

func (r *MemoryUserRepository) UpsertBySub(_ context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	cp := *u
	if existing, ok := r.users[u.Sub]; ok {
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
		if cp.Username == "" {
			cp.Username = existing.Username
		}
	} else {
		cp.ID = u.Sub
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.users[u.Sub] = &cp
	out := cp
	return &out, nil
}

func (r *MemoryUserRepository) GetBySub(_ context.Context, sub string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.users[sub]; ok {
		out := *u
		return &out, nil
	}
	return nil, nil
}

func (r *MemoryUserRepository) FindByIdentifier(_ context.Context, identifier string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if (u.Username != "" && u.Username == identifier) || (u.Email != "" && strings.EqualFold(u.Email, identifier)) {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

func (r *MemoryUserRepository) FindBySubs(_ context.Context, subs []string) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.User
	for _, sub := range subs {
		if u, ok := r.users[sub]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}
