package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// scheduleTracker persists when the scheduled job last started
type scheduleTracker interface {
	// GetLastRun returns zero time if the job has never run
	GetLastRun(ctx context.Context) (time.Time, error)
	SetLastRun(ctx context.Context, timestamp time.Time) error
}

type redisScheduleTracker struct {
	log   logrus.FieldLogger
	redis *redis.Client
	key   string
}

// newScheduleTracker creates a Redis-backed schedule tracker storing under key
func newScheduleTracker(log logrus.FieldLogger, redisClient *redis.Client, key string) scheduleTracker {
	return &redisScheduleTracker{
		log:   log.WithField("component", "schedule_tracker"),
		redis: redisClient,
		key:   key,
	}
}

func (r *redisScheduleTracker) GetLastRun(ctx context.Context) (time.Time, error) {
	val, err := r.redis.Get(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}

		return time.Time{}, fmt.Errorf("failed to get last run: %w", err)
	}

	timestamp, err := time.Parse(time.RFC3339, val)
	if err != nil {
		r.log.WithError(err).WithField("raw_value", val).Error("Failed to parse timestamp")

		return time.Time{}, fmt.Errorf("failed to parse last run timestamp: %w", err)
	}

	return timestamp, nil
}

func (r *redisScheduleTracker) SetLastRun(ctx context.Context, timestamp time.Time) error {
	if err := r.redis.Set(ctx, r.key, timestamp.UTC().Format(time.RFC3339), 0).Err(); err != nil {
		return fmt.Errorf("failed to set last run: %w", err)
	}

	r.log.WithField("timestamp", timestamp).Debug("Updated last run")

	return nil
}

// memoryScheduleTracker is used when Redis is not configured; the last run is
// forgotten on restart, so a restarted watcher runs immediately.
type memoryScheduleTracker struct {
	mu      sync.Mutex
	lastRun time.Time
}

func (m *memoryScheduleTracker) GetLastRun(context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastRun, nil
}

func (m *memoryScheduleTracker) SetLastRun(_ context.Context, timestamp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastRun = timestamp

	return nil
}
