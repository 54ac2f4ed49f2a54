package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codecollab/collab-server/internal/document"
	"github.com/codecollab/collab-server/internal/document/repository"
)

const (
	shareTokenBytes      = 16
	defaultShareAttempts = 5
)

// ShareGateway issues and resolves capability tokens granting anonymous
// read access to a single document.
type ShareGateway struct {
	repo     repository.Repository
	attempts int
	log      *slog.Logger
	newToken func() (string, error)
}

func NewShareGateway(repo repository.Repository, attempts int, log *slog.Logger) *ShareGateway {
	if attempts <= 0 {
		attempts = defaultShareAttempts
	}
	return &ShareGateway{repo: repo, attempts: attempts, log: log, newToken: randomToken}
}

func randomToken() (string, error) {
	b := make([]byte, shareTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Generate replaces any existing token with a fresh one. Collisions with a
// live token are retried.
func (g *ShareGateway) Generate(ctx context.Context, documentID, userID string) (string, error) {
	doc, err := g.repo.Get(ctx, documentID)
	if err != nil {
		return "", err
	}
	if err := document.Evaluate(doc, userID).RequireOwner(); err != nil {
		return "", err
	}
	for i := 0; i < g.attempts; i++ {
		token, err := g.newToken()
		if err != nil {
			return "", fmt.Errorf("generate share token: %w", err)
		}
		_, err = g.repo.SetShareToken(ctx, documentID, token)
		if errors.Is(err, document.ErrShareTokenTaken) {
			g.log.Warn("share token collision, retrying", "document", documentID, "attempt", i+1)
			continue
		}
		if err != nil {
			return "", err
		}
		g.log.Info("document shared", "document", documentID)
		return token, nil
	}
	return "", document.ErrShareTokenTaken
}

func (g *ShareGateway) Revoke(ctx context.Context, documentID, userID string) error {
	doc, err := g.repo.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if err := document.Evaluate(doc, userID).RequireOwner(); err != nil {
		return err
	}
	if _, err := g.repo.SetShareToken(ctx, documentID, ""); err != nil {
		return err
	}
	g.log.Info("document unshared", "document", documentID)
	return nil
}

// Resolve performs no identity or access check.
func (g *ShareGateway) Resolve(ctx context.Context, token string) (*document.Document, error) {
	return g.repo.GetByShareToken(ctx, token)
}
