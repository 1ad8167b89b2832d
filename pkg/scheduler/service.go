package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is one scheduled pipeline run
type Job func(ctx context.Context) error

// Service runs a job whenever its schedule comes due
type Service interface {
	// Run blocks until ctx is canceled
	Run(ctx context.Context) error
}

type service struct {
	log     logrus.FieldLogger
	cfg     *Config
	sched   cron.Schedule
	tracker scheduleTracker
	elector LeaderElector
	job     Job
}

// NewService creates a scheduler. With a Redis client, the last run survives
// restarts and only the elected leader among watchers sharing prefix runs the
// job. Without one, the schedule is tracked in memory.
func NewService(log logrus.FieldLogger, cfg *Config, client *redis.Client, prefix string, job Job) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}

	log = log.WithField("component", "scheduler")

	var (
		tracker scheduleTracker = &memoryScheduleTracker{}
		elector LeaderElector
	)

	if client != nil {
		tracker = newScheduleTracker(log, client, prefix+":watch:last_run")
		elector = NewLeaderElector(log, client, prefix+":watch:leader")
	}

	return newService(log, cfg, tracker, elector, job)
}

func newService(log logrus.FieldLogger, cfg *Config, tracker scheduleTracker, elector LeaderElector, job Job) (*service, error) {
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	return &service{
		log:     log,
		cfg:     cfg,
		sched:   sched,
		tracker: tracker,
		elector: elector,
		job:     job,
	}, nil
}

func (s *service) Run(ctx context.Context) error {
	s.log.WithField("schedule", s.cfg.Schedule).Info("Starting scheduler")

	if s.elector != nil {
		if err := s.elector.Start(ctx); err != nil {
			return fmt.Errorf("failed to start leader election: %w", err)
		}

		defer func() {
			if err := s.elector.Stop(); err != nil {
				s.log.WithError(err).Warn("Failed to stop leader election")
			}
		}()
	}

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		s.check(ctx)

		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// check runs the job inline when due, so runs never overlap
func (s *service) check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if s.elector != nil && !s.elector.IsLeader() {
		return
	}

	lastRun, err := s.tracker.GetLastRun(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to get last run, will retry next tick")
		return
	}

	now := time.Now().UTC()
	if !IsDue(s.sched, lastRun, now) {
		return
	}

	if err := s.tracker.SetLastRun(ctx, now); err != nil {
		s.log.WithError(err).Error("Failed to update last run timestamp")
		return
	}

	runCtx := ctx
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	log := s.log.WithField("last_run", lastRun)
	log.Info("Scheduled run starting")

	if err := s.job(runCtx); err != nil {
		log.WithError(err).Error("Scheduled run failed")
	} else {
		log.WithField("duration", time.Since(now)).Info("Scheduled run finished")
	}

	s.log.WithField("next_run", s.sched.Next(now)).Info("Next run scheduled")
}
