package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekreap/engagement-hub/internal/domain/engagement"
)

func TestInsertAndGet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	e := engagement.New("s1", 30*time.Minute)
	require.NoError(t, store.Insert(ctx, e))

	got, err := store.GetByID(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, e.ID, got.ID)

	// Duplicate ids are rejected.
	require.Error(t, store.Insert(ctx, e))

	missing, err := store.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateUnknown(t *testing.T) {
	store := NewStore()
	e := engagement.New("s1", 30*time.Minute)
	require.Error(t, store.Update(context.Background(), e))
}

func TestFindActiveBySession(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	e, err := store.FindActiveBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, e)

	first := engagement.New("s1", 30*time.Minute)
	require.NoError(t, store.Insert(ctx, first))

	e, err = store.FindActiveBySession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, first.ID, e.ID)

	// Terminal records are not active.
	first.Transition(engagement.StateFailed, "system", nil)
	require.NoError(t, store.Update(ctx, first))

	e, err = store.FindActiveBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, e)

	second := engagement.New("s1", 30*time.Minute)
	require.NoError(t, store.Insert(ctx, second))

	e, err = store.FindActiveBySession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, second.ID, e.ID)
}

func TestReturnsClones(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	e := engagement.New("s1", 30*time.Minute)
	require.NoError(t, store.Insert(ctx, e))

	got, err := store.GetByID(ctx, e.ID)
	require.NoError(t, err)
	got.CurrentState = engagement.StateFailed

	again, err := store.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, engagement.StateCreated, again.CurrentState)

	// The inserted original is also detached from canonical state.
	e.CurrentState = engagement.StateFailed
	again, err = store.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, engagement.StateCreated, again.CurrentState)
}

func TestListAndAll(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	a := engagement.New("s1", 30*time.Minute)
	a.Transition(engagement.StateFailed, "system", nil)
	require.NoError(t, store.Insert(ctx, a))
	require.NoError(t, store.Insert(ctx, engagement.New("s1", 30*time.Minute)))
	require.NoError(t, store.Insert(ctx, engagement.New("s2", 30*time.Minute)))

	list, err := store.ListBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
