package eventstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/pkg/protocol"
)

// collect drains a subscription channel with a timeout so broken streams
// fail the test instead of hanging it.
func collect(t *testing.T, ch <-chan Envelope) []Envelope {
	t.Helper()
	var envs []Envelope
	for {
		select {
		case env, ok := <-ch:
			if !ok {
				return envs
			}
			envs = append(envs, env)
		case <-time.After(5 * time.Second):
			t.Fatalf("subscription did not close; got %d envelopes", len(envs))
		}
	}
}

func TestSubscribeCatchUpThenLive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, "t1", snapshotEvent("t1", "c1", protocol.TaskStateSubmitted), nil)
	require.NoError(t, err)
	_, err = store.Append(ctx, "t1", statusEvent("t1", protocol.TaskStateWorking, false), nil)
	require.NoError(t, err)

	ch, err := store.Subscribe(ctx, "t1", -1)
	require.NoError(t, err)

	go func() {
		_, _ = store.Append(ctx, "t1", artifactEvent("t1", "a1", "out", false), nil)
		_, _ = store.Append(ctx, "t1", statusEvent("t1", protocol.TaskStateCompleted, true), nil)
	}()

	envs := collect(t, ch)
	require.Len(t, envs, 4)
	for i, env := range envs {
		assert.Equal(t, i, env.Version, "versions must be gap-free and ordered")
	}
	assert.True(t, envs[3].Event.IsFinal())
}

func TestSubscribeAfterVersionSkipsOldEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, "t1", snapshotEvent("t1", "c1", protocol.TaskStateSubmitted), nil)
	require.NoError(t, err)
	_, err = store.Append(ctx, "t1", statusEvent("t1", protocol.TaskStateWorking, false), nil)
	require.NoError(t, err)
	_, err = store.Append(ctx, "t1", statusEvent("t1", protocol.TaskStateCompleted, true), nil)
	require.NoError(t, err)

	ch, err := store.Subscribe(ctx, "t1", 0)
	require.NoError(t, err)
	envs := collect(t, ch)
	require.Len(t, envs, 2)
	assert.Equal(t, 1, envs[0].Version)
	assert.Equal(t, 2, envs[1].Version)
}

func TestSubscribeTerminalTaskReplaysAndCloses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, "t1", snapshotEvent("t1", "c1", protocol.TaskStateSubmitted), nil)
	require.NoError(t, err)
	_, err = store.Append(ctx, "t1", statusEvent("t1", protocol.TaskStateCanceled, true), nil)
	require.NoError(t, err)

	ch, err := store.Subscribe(ctx, "t1", -1)
	require.NoError(t, err)
	envs := collect(t, ch)
	require.Len(t, envs, 2)
	assert.True(t, envs[1].Event.IsFinal())
}

func TestSubscribeUnknownTask(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Subscribe(context.Background(), "nope", -1)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestSubscribeExactlyOnceUnderConcurrentAppends(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, "t1", snapshotEvent("t1", "c1", protocol.TaskStateSubmitted), nil)
	require.NoError(t, err)

	// Appends race the subscriber's catch-up read; the register-then-read
	// discipline plus version dedup must still deliver each version once.
	const extra = 50
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < extra; i++ {
			_, err := store.Append(ctx, "t1", artifactEvent("t1", "a1", "chunk", true), nil)
			if err != nil {
				t.Error(err)
				return
			}
		}
		_, err := store.Append(ctx, "t1", statusEvent("t1", protocol.TaskStateCompleted, true), nil)
		if err != nil {
			t.Error(err)
		}
	}()

	ch, err := store.Subscribe(ctx, "t1", -1)
	require.NoError(t, err)
	envs := collect(t, ch)
	<-done

	require.Len(t, envs, extra+2)
	seen := map[int]bool{}
	prev := -1
	for _, env := range envs {
		assert.False(t, seen[env.Version], "version %d delivered twice", env.Version)
		seen[env.Version] = true
		assert.Greater(t, env.Version, prev, "versions must arrive in order")
		prev = env.Version
	}
}

func TestSubscribeContextCancelDoesNotAffectTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, "t1", snapshotEvent("t1", "c1", protocol.TaskStateSubmitted), nil)
	require.NoError(t, err)

	subCtx, cancel := context.WithCancel(ctx)
	ch, err := store.Subscribe(subCtx, "t1", -1)
	require.NoError(t, err)

	// Drain the catch-up event, then drop the subscription.
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no catch-up event")
	}
	cancel()
	collect(t, ch)

	// The task still accepts appends.
	_, err = store.Append(ctx, "t1", statusEvent("t1", protocol.TaskStateWorking, false), nil)
	assert.NoError(t, err)
}

func TestMultipleSubscribersSeeSameStream(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, "t1", snapshotEvent("t1", "c1", protocol.TaskStateSubmitted), nil)
	require.NoError(t, err)

	ch1, err := store.Subscribe(ctx, "t1", -1)
	require.NoError(t, err)
	ch2, err := store.Subscribe(ctx, "t1", -1)
	require.NoError(t, err)

	go func() {
		_, _ = store.Append(ctx, "t1", statusEvent("t1", protocol.TaskStateCompleted, true), nil)
	}()

	envs1 := collect(t, ch1)
	envs2 := collect(t, ch2)
	assert.Equal(t, envs1, envs2)
	require.Len(t, envs1, 2)
}
