package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iris0/iris/internal/chain"
)

func TestNewSession(t *testing.T) {
	t.Parallel()

	a := NewSession()
	b := NewSession()
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Empty(t, a.History)
}

func TestAppendTurn(t *testing.T) {
	t.Parallel()

	sess := NewSession()
	sess.AppendTurn("What is a corneal abrasion?", "A scratch on the cornea.")
	sess.AppendTurn("How is it treated?", "Lubrication.")

	require.Len(t, sess.History, 2)
	assert.Equal(t, chain.Turn{Question: "What is a corneal abrasion?", Answer: "A scratch on the cornea."}, sess.History[0])
	assert.Equal(t, "How is it treated?", sess.History[1].Question)
}

func TestMemoryStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	sess := NewSession()
	require.NoError(t, store.Create(ctx, sess))
	assert.Equal(t, int64(1), sess.Version)
	assert.False(t, sess.CreatedAt.IsZero())

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Empty(t, got.History)

	got.AppendTurn("q1", "a1")
	require.NoError(t, store.Update(ctx, got))
	assert.Equal(t, int64(2), got.Version)

	again, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, again.History, 1)
	assert.Equal(t, "q1", again.History[0].Question)

	require.NoError(t, store.Delete(ctx, sess.ID))
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCreateDuplicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	sess := NewSession()
	require.NoError(t, store.Create(ctx, sess))

	dup := &Session{ID: sess.ID}
	assert.ErrorIs(t, store.Create(ctx, dup), ErrExists)
}

func TestMemoryStoreVersionConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	sess := NewSession()
	require.NoError(t, store.Create(ctx, sess))

	first, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	second, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)

	first.AppendTurn("q1", "a1")
	require.NoError(t, store.Update(ctx, first))

	second.AppendTurn("q1-concurrent", "a1-concurrent")
	assert.ErrorIs(t, store.Update(ctx, second), ErrVersionConflict)

	// The losing write must not have clobbered the winner.
	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.History, 1)
	assert.Equal(t, "q1", got.History[0].Question)
}

func TestMemoryStoreUpdateMissing(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	err := store.Update(context.Background(), NewSession())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreNoAliasing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	sess := NewSession()
	require.NoError(t, store.Create(ctx, sess))

	// Mutating a retrieved copy must not leak into the store.
	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	got.AppendTurn("uncommitted", "turn")

	fresh, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, fresh.History)
}

func TestMemoryStoreConcurrentSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := NewSession()
			if err := store.Create(ctx, sess); err != nil {
				t.Error(err)
				return
			}
			sess.AppendTurn("q", "a")
			if err := store.Update(ctx, sess); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
}
