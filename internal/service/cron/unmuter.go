package cronService

import (
	"context"
	"time"

	"github.com/nikhil/discuss/internal/bus"
	"github.com/nikhil/discuss/internal/cache"
	"github.com/nikhil/discuss/internal/logger"
	"github.com/nikhil/discuss/internal/models"
	"github.com/nikhil/discuss/internal/store"
)

// Unmuter clears expired channel mutes. With Redis it only wakes up when a
// trigger set by ScheduleUnmute is due; without Redis it sweeps on every tick.
type Unmuter struct {
	Store    store.Store
	Bus      bus.Bus
	Redis    *cache.Redis
	Interval time.Duration
	Log      *logger.Logger
	now      func() time.Time
}

func NewUnmuter(st store.Store, b bus.Bus, r *cache.Redis, interval time.Duration, log *logger.Logger) *Unmuter {
	return &Unmuter{
		Store:    st,
		Bus:      b,
		Redis:    r,
		Interval: interval,
		Log:      log,
		now:      time.Now,
	}
}

// ScheduleUnmute asks for a run at the given time.
func (u *Unmuter) ScheduleUnmute(ctx context.Context, at time.Time) error {
	if u.Redis == nil {
		return nil
	}
	return cache.Trigger(ctx, u.Redis, cache.UnmuteTriggers, at)
}

// Run sweeps once to catch up on mutes that expired while no instance was
// running, then processes due triggers until ctx is cancelled.
func (u *Unmuter) Run(ctx context.Context) error {
	if _, err := u.sweep(ctx); err != nil {
		u.Log.Error("Initial unmute sweep failed", "error", err)
	}

	ticker := time.NewTicker(u.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := u.RunOnce(ctx); err != nil {
				u.Log.Error("Unmute run failed", "error", err)
			}
		}
	}
}

// RunOnce clears expired mutes if a run is due and returns how many members
// were unmuted.
func (u *Unmuter) RunOnce(ctx context.Context) (int, error) {
	if u.Redis != nil {
		due, err := cache.PopDue(ctx, u.Redis, cache.UnmuteTriggers, u.now())
		if err != nil {
			return 0, err
		}
		if len(due) == 0 {
			return 0, nil
		}
	}
	n, err := u.sweep(ctx)
	if err != nil {
		return n, err
	}
	if u.Redis != nil {
		if next, ok, err := cache.NextTrigger(ctx, u.Redis, cache.UnmuteTriggers); err == nil && ok {
			u.Log.Debug("Next unmute trigger", "at", next)
		}
	}
	return n, nil
}

func (u *Unmuter) sweep(ctx context.Context) (int, error) {
	members, err := u.Store.UnmuteExpired(ctx, u.now())
	if err != nil {
		return 0, err
	}
	for _, m := range members {
		target, ok := m.Persona().Target()
		if !ok {
			continue
		}
		payload := map[string]interface{}{
			"Thread": map[string]interface{}{
				"id":            m.ChannelID,
				"model":         models.ChannelModel,
				"mute_until_dt": false,
			},
		}
		if err := u.Bus.SendOne(ctx, target, bus.TypeRecordInsert, payload); err != nil {
			u.Log.Warn("Failed to notify unmute", "member_id", m.ID, "error", err)
		}
	}
	if len(members) > 0 {
		u.Log.Info("Unmuted channel members", "count", len(members))
	}
	return len(members), nil
}
