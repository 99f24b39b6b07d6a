package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := New("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("not a url")
	assert.Error(t, err)
}

func TestTrigger_PopDue(t *testing.T) {
	ctx := context.Background()
	r := newTestRedis(t)
	require.NoError(t, r.Ping(ctx))

	now := time.Unix(1_700_000_000, 0)
	require.NoError(t, Trigger(ctx, r, UnmuteTriggers, now.Add(-time.Minute)))
	require.NoError(t, Trigger(ctx, r, UnmuteTriggers, now.Add(-time.Minute)))
	require.NoError(t, Trigger(ctx, r, UnmuteTriggers, now.Add(time.Hour)))

	next, ok, err := NextTrigger(ctx, r, UnmuteTriggers)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now.Add(-time.Minute).UTC(), next)

	due, err := PopDue(ctx, r, UnmuteTriggers, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, now.Add(-time.Minute).UTC(), due[0])

	due, err = PopDue(ctx, r, UnmuteTriggers, now)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = PopDue(ctx, r, UnmuteTriggers, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, due, 1)

	_, ok, err = NextTrigger(ctx, r, UnmuteTriggers)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPublishSubscribe(t *testing.T) {
	r := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- r.Subscribe(ctx, "discuss:test", func(b []byte) { received <- string(b) })
	}()

	require.Eventually(t, func() bool {
		n, err := r.client.PubSubNumSub(ctx, "discuss:test").Result()
		return err == nil && n["discuss:test"] == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, r.Publish(ctx, "discuss:test", []byte("ping")))
	select {
	case got := <-received:
		assert.Equal(t, "ping", got)
	case <-time.After(time.Second):
		t.Fatal("message not received")
	}

	cancel()
	assert.NoError(t, <-done)
}
