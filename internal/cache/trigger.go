package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// UnmuteTriggers is the sorted set holding the wake-up times of the unmute job.
const UnmuteTriggers = "discuss:cron:unmute"

// Trigger schedules a wake-up of the job owning key at the given time.
// Triggers at the same second collapse into one.
func Trigger(ctx context.Context, r *Redis, key string, at time.Time) error {
	ts := at.UTC().Unix()
	err := r.client.ZAdd(ctx, key, redis.Z{Score: float64(ts), Member: strconv.FormatInt(ts, 10)}).Err()
	if err != nil {
		return fmt.Errorf("trigger %s: %w", key, err)
	}
	return nil
}

// PopDue removes and returns the triggers of key due at or before now. A
// trigger is returned to exactly one caller even when several instances poll.
func PopDue(ctx context.Context, r *Redis, key string, now time.Time) ([]time.Time, error) {
	max := strconv.FormatInt(now.UTC().Unix(), 10)
	members, err := r.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return nil, fmt.Errorf("due triggers %s: %w", key, err)
	}

	var due []time.Time
	for _, m := range members {
		removed, err := r.client.ZRem(ctx, key, m).Result()
		if err != nil {
			return nil, fmt.Errorf("claim trigger %s: %w", key, err)
		}
		// another instance claimed it first
		if removed == 0 {
			continue
		}
		ts, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		due = append(due, time.Unix(ts, 0).UTC())
	}
	return due, nil
}

// NextTrigger returns the earliest pending trigger of key, if any.
func NextTrigger(ctx context.Context, r *Redis, key string) (time.Time, bool, error) {
	res, err := r.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("next trigger %s: %w", key, err)
	}
	if len(res) == 0 {
		return time.Time{}, false, nil
	}
	return time.Unix(int64(res[0].Score), 0).UTC(), true, nil
}
