package cronService

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/discuss/internal/cache"
	database "github.com/nikhil/discuss/internal/database.go"
	"github.com/nikhil/discuss/internal/logger"
	"github.com/nikhil/discuss/internal/models"
	"github.com/nikhil/discuss/internal/store"
)

type recordingBus struct {
	mu      sync.Mutex
	targets []models.Target
}

func (b *recordingBus) SendOne(_ context.Context, target models.Target, _ string, _ interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.targets = append(b.targets, target)
	return nil
}

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// mutedMember creates a member of a fresh channel muted until the given time.
func mutedMember(t *testing.T, st *store.SQLStore, until int64) models.Persona {
	t.Helper()
	ctx := context.Background()
	channelID, err := st.CreateChannel(ctx, &models.Channel{Name: "general"})
	require.NoError(t, err)
	partnerID, err := st.CreatePartner(ctx, "Alice", "")
	require.NoError(t, err)
	p := models.Persona{UserID: partnerID, PartnerID: partnerID}
	m, err := st.AddMember(ctx, channelID, p)
	require.NoError(t, err)
	require.NoError(t, st.SetMuteUntil(ctx, m.ID, &until))
	return p
}

func newUnmuter(t *testing.T, r *cache.Redis) (*Unmuter, *store.SQLStore, *recordingBus) {
	t.Helper()
	db, err := database.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.NewSQLStore(db)
	b := &recordingBus{}
	u := NewUnmuter(st, b, r, time.Minute, logger.NewNop())
	u.now = func() time.Time { return now }
	return u, st, b
}

func TestRunOnce_WithoutRedisSweepsEveryTime(t *testing.T) {
	u, st, b := newUnmuter(t, nil)
	expired := mutedMember(t, st, now.Add(-time.Minute).Unix())
	mutedMember(t, st, now.Add(time.Hour).Unix())
	mutedMember(t, st, models.MuteForever)

	require.NoError(t, u.ScheduleUnmute(context.Background(), now))
	n, err := u.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []models.Target{models.PartnerTarget(expired.PartnerID)}, b.targets)

	n, err = u.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunOnce_WithRedisWaitsForTrigger(t *testing.T) {
	srv := miniredis.RunT(t)
	r, err := cache.New("redis://" + srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	ctx := context.Background()
	u, st, b := newUnmuter(t, r)
	mutedMember(t, st, now.Add(-time.Minute).Unix())

	n, err := u.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "no trigger is due")

	require.NoError(t, u.ScheduleUnmute(ctx, now.Add(time.Hour)))
	n, err = u.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, u.ScheduleUnmute(ctx, now.Add(-time.Second)))
	n, err = u.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, b.targets, 1)

	next, ok, err := cache.NextTrigger(ctx, r, cache.UnmuteTriggers)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Hour), next)
}

func TestRun_StopsOnCancel(t *testing.T) {
	u, st, b := newUnmuter(t, nil)
	mutedMember(t, st, now.Add(-time.Minute).Unix())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Run(ctx) }()

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.targets) == 1
	}, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("unmuter did not stop")
	}
}
