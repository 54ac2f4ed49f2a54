package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/codecollab/collab-server/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDoc(t *testing.T, r *MemoryRepo, owner string) *document.Document {
	t.Helper()
	d, err := r.Create(context.Background(), &document.Document{Title: "T", Content: "", Language: "js", OwnerID: owner})
	require.NoError(t, err)
	return d
}

func TestMemoryRepoCreate(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()

	d := newDoc(t, r, "u1")
	require.NotEmpty(t, d.ID)
	require.Len(t, d.Versions, 1)
	require.Equal(t, "", d.Versions[0].Content)
	require.Equal(t, "u1", d.Versions[0].EditedBy)
	require.Empty(t, d.Collaborators)
	require.Empty(t, d.ShareToken)

	plain, err := r.Create(ctx, &document.Document{Title: "notes", OwnerID: "u1"})
	require.NoError(t, err)
	require.Equal(t, document.DefaultLanguage, plain.Language)

	_, err = r.Create(ctx, &document.Document{OwnerID: "u1"})
	require.ErrorIs(t, err, document.ErrValidation)

	_, err = r.Get(ctx, "missing")
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestMemoryRepoUpdateAndRevert(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	d := newDoc(t, r, "u1")

	_, err := r.Update(ctx, d.ID, "x=1", "u1")
	require.NoError(t, err)
	got, err := r.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "x=1", got.Content)
	require.Len(t, got.Versions, 2)
	require.Equal(t, "x=1", got.Versions[1].Content)

	reverted, err := r.Revert(ctx, d.ID, 0)
	require.NoError(t, err)
	require.Equal(t, "", reverted.Content)
	require.Len(t, reverted.Versions, 2)

	_, err = r.Revert(ctx, d.ID, 2)
	require.ErrorIs(t, err, document.ErrVersionOutOfRange)
	_, err = r.Revert(ctx, d.ID, -1)
	require.ErrorIs(t, err, document.ErrVersionOutOfRange)
	_, err = r.Update(ctx, "missing", "x", "u1")
	require.ErrorIs(t, err, document.ErrDocumentNotFound)
}

func TestMemoryRepoConcurrentUpdatesStayConsistent(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	d := newDoc(t, r, "u1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Update(ctx, d.ID, fmt.Sprintf("v%d", i), "u1")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := r.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, got.Versions, 51)
	last, _ := got.LastVersion()
	require.Equal(t, last.Content, got.Content)
}

func TestMemoryRepoCollaborators(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	d := newDoc(t, r, "u1")

	got, err := r.AddCollaborator(ctx, d.ID, "u2")
	require.NoError(t, err)
	require.Equal(t, []string{"u2"}, got.Collaborators)

	_, err = r.AddCollaborator(ctx, d.ID, "u2")
	require.ErrorIs(t, err, document.ErrAlreadyCollaborator)
	_, err = r.AddCollaborator(ctx, d.ID, "u1")
	require.ErrorIs(t, err, document.ErrOwnerCollaborator)

	_, err = r.AddCollaborator(ctx, d.ID, "u3")
	require.NoError(t, err)
	got, err = r.RemoveCollaborator(ctx, d.ID, "u2")
	require.NoError(t, err)
	require.Equal(t, []string{"u3"}, got.Collaborators)

	_, err = r.RemoveCollaborator(ctx, d.ID, "u2")
	require.ErrorIs(t, err, document.ErrNotCollaborator)

	list, err := r.ListForUser(ctx, "u3")
	require.NoError(t, err)
	require.Len(t, list, 1)
	list, err = r.ListForUser(ctx, "u2")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestMemoryRepoShareToken(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	a := newDoc(t, r, "u1")
	b := newDoc(t, r, "u1")

	_, err := r.SetShareToken(ctx, a.ID, "tok")
	require.NoError(t, err)
	got, err := r.GetByShareToken(ctx, "tok")
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)

	_, err = r.SetShareToken(ctx, b.ID, "tok")
	require.ErrorIs(t, err, document.ErrShareTokenTaken)

	// absence of a token is never a collision
	_, err = r.SetShareToken(ctx, b.ID, "")
	require.NoError(t, err)

	_, err = r.SetShareToken(ctx, a.ID, "")
	require.NoError(t, err)
	_, err = r.GetByShareToken(ctx, "tok")
	require.ErrorIs(t, err, document.ErrNotFound)
	_, err = r.GetByShareToken(ctx, "")
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestMemoryRepoChatMessagesOrdered(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	r.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }

	_, err := r.AppendChatMessage(ctx, "d1", "u1", "first")
	require.NoError(t, err)
	_, err = r.AppendChatMessage(ctx, "d2", "u1", "elsewhere")
	require.NoError(t, err)
	_, err = r.AppendChatMessage(ctx, "d1", "u2", "second")
	require.NoError(t, err)

	msgs, err := r.ListChatMessages(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "first", msgs[0].Message)
	require.Equal(t, "second", msgs[1].Message)
	require.Equal(t, "u2", msgs[1].User)
}

func TestMemoryRepoChatMessagesSameInstant(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return frozen }

	for i := 0; i < 20; i++ {
		_, err := r.AppendChatMessage(ctx, "d1", "u1", fmt.Sprintf("m%02d", i))
		require.NoError(t, err)
	}
	msgs, err := r.ListChatMessages(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, msgs, 20)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("m%02d", i), m.Message)
		assert.Equal(t, int64(i+1), m.Seq)
	}
}
