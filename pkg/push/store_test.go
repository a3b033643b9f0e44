package push

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/pkg/protocol"
)

func TestMemoryStoreCRUD(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, err := store.Create(ctx, "t1", protocol.PushNotificationConfig{URL: "https://hooks.example.com/a"})
	require.NoError(t, err)
	assert.Equal(t, "t1", created.TaskID)
	require.NotEmpty(t, created.ConfigID, "missing config id must be generated")

	got, err := store.Get(ctx, "t1", created.ConfigID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = store.Create(ctx, "t1", protocol.PushNotificationConfig{ConfigID: "fixed", URL: "https://hooks.example.com/b"})
	require.NoError(t, err)

	list, err := store.List(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, store.Delete(ctx, "t1", "fixed"))
	_, err = store.Get(ctx, "t1", "fixed")
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestMemoryStoreIsolatesTasks(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "t1", protocol.PushNotificationConfig{ConfigID: "c1", URL: "https://a"})
	require.NoError(t, err)

	_, err = store.Get(ctx, "t2", "c1")
	assert.ErrorIs(t, err, ErrConfigNotFound)

	list, err := store.List(ctx, "t2")
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, store.Delete(ctx, "t2", "c1"), ErrConfigNotFound)
}
