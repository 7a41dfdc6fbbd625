package activity_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/portal/internal/portal/activity"
	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/pkg/clockx"
)

var start = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

var testConfig = activity.Config{
	IdleTimeout: 15 * time.Minute,
	Retention:   15 * time.Minute,
	RecordTTL:   168 * time.Hour,
}

type trackerFactory func(t *testing.T, clock *clockx.FakeClock) activity.Tracker

func trackers() map[string]trackerFactory {
	return map[string]trackerFactory{
		"memory": func(t *testing.T, clock *clockx.FakeClock) activity.Tracker {
			return activity.NewMemoryTracker(testConfig, clock)
		},
		"redis": func(t *testing.T, clock *clockx.FakeClock) activity.Tracker {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return activity.NewRedisTracker(rdb, "test", testConfig, clock)
		},
	}
}

func TestTracker(t *testing.T) {
	for name, newTracker := range trackers() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("first sight is allowed", func(t *testing.T) {
				tr := newTracker(t, clockx.Fake(start))
				require.NoError(t, tr.Check(ctx, "u1"))
			})

			t.Run("activity keeps the session alive", func(t *testing.T) {
				clock := clockx.Fake(start)
				tr := newTracker(t, clock)
				require.NoError(t, tr.Begin(ctx, "u1"))
				for i := 0; i < 8; i++ {
					clock.Advance(10 * time.Minute)
					require.NoError(t, tr.Check(ctx, "u1"))
					require.NoError(t, tr.Touch(ctx, "u1"))
				}
			})

			t.Run("exactly the timeout is still allowed", func(t *testing.T) {
				clock := clockx.Fake(start)
				tr := newTracker(t, clock)
				require.NoError(t, tr.Begin(ctx, "u1"))
				clock.Advance(15 * time.Minute)
				require.NoError(t, tr.Check(ctx, "u1"))
			})

			t.Run("idle past the timeout expires and stays expired", func(t *testing.T) {
				clock := clockx.Fake(start)
				tr := newTracker(t, clock)
				require.NoError(t, tr.Begin(ctx, "u1"))
				clock.Advance(15*time.Minute + time.Millisecond)

				err := tr.Check(ctx, "u1")
				require.ErrorIs(t, err, domain.ErrSessionExpired)
				require.ErrorIs(t, err, activity.ErrIdleTimeout)

				require.NoError(t, tr.Touch(ctx, "u1"))
				for range 3 {
					err = tr.Check(ctx, "u1")
					assert.ErrorIs(t, err, activity.ErrSessionExpired)
					assert.NotErrorIs(t, err, activity.ErrIdleTimeout)
				}
			})

			t.Run("begin revives an ended session", func(t *testing.T) {
				clock := clockx.Fake(start)
				tr := newTracker(t, clock)
				require.NoError(t, tr.Begin(ctx, "u1"))
				clock.Advance(time.Hour)
				require.Error(t, tr.Check(ctx, "u1"))

				require.NoError(t, tr.Begin(ctx, "u1"))
				assert.NoError(t, tr.Check(ctx, "u1"))
			})

			t.Run("subjects are independent", func(t *testing.T) {
				clock := clockx.Fake(start)
				tr := newTracker(t, clock)
				require.NoError(t, tr.Begin(ctx, "idle"))
				clock.Advance(10 * time.Minute)
				require.NoError(t, tr.Begin(ctx, "busy"))
				clock.Advance(10 * time.Minute)

				assert.Error(t, tr.Check(ctx, "idle"))
				assert.NoError(t, tr.Check(ctx, "busy"))
			})

			t.Run("end forgets the subject", func(t *testing.T) {
				clock := clockx.Fake(start)
				tr := newTracker(t, clock)
				require.NoError(t, tr.Begin(ctx, "u1"))
				require.NoError(t, tr.End(ctx, "u1"))
				clock.Advance(time.Hour)
				assert.NoError(t, tr.Check(ctx, "u1"))
			})
		})
	}
}

func TestMemoryTrackerSweep(t *testing.T) {
	ctx := context.Background()
	clock := clockx.Fake(start)
	tr := activity.NewMemoryTracker(activity.Config{
		IdleTimeout: time.Minute,
		Retention:   5 * time.Minute,
		RecordTTL:   10 * time.Minute,
	}, clock)

	require.NoError(t, tr.Begin(ctx, "ended"))
	require.NoError(t, tr.Begin(ctx, "abandoned"))
	clock.Advance(2 * time.Minute)
	require.Error(t, tr.Check(ctx, "ended"))

	records, ended := tr.Len()
	assert.Equal(t, 1, records)
	assert.Equal(t, 1, ended)

	n, err := tr.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(10 * time.Minute)
	n, err = tr.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, ended = tr.Len()
	assert.Zero(t, records)
	assert.Zero(t, ended)
}

func TestConfigDefaults(t *testing.T) {
	ctx := context.Background()
	clock := clockx.Fake(start)
	tr := activity.NewMemoryTracker(activity.Config{}, clock)

	require.NoError(t, tr.Begin(ctx, "u1"))
	clock.Advance(activity.DefaultIdleTimeout)
	require.NoError(t, tr.Check(ctx, "u1"))
	clock.Advance(activity.DefaultIdleTimeout + time.Second)
	assert.Error(t, tr.Check(ctx, "u1"))
}

func TestRedisTrackerKeysExpire(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	clock := clockx.Fake(start)
	tr := activity.NewRedisTracker(rdb, "", activity.Config{
		IdleTimeout: time.Minute,
		Retention:   5 * time.Minute,
		RecordTTL:   10 * time.Minute,
	}, clock)

	require.NoError(t, tr.Begin(ctx, "u1"))
	assert.True(t, mr.Exists("portal:activity:last:u1"))

	clock.Advance(2 * time.Minute)
	require.Error(t, tr.Check(ctx, "u1"))
	assert.False(t, mr.Exists("portal:activity:last:u1"))
	assert.True(t, mr.Exists("portal:activity:ended:u1"))

	mr.FastForward(6 * time.Minute)
	assert.False(t, mr.Exists("portal:activity:ended:u1"))

	n, err := tr.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
