package sessionstore

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSweepSchedule is how often expired SQL sessions are purged
const DefaultSweepSchedule = "@every 15m"

// ExpiredDeleter removes expired sessions in bulk
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Sweeper runs DeleteExpired on a cron schedule. Backends that expire keys on their own
// do not need one.
type Sweeper struct {
	store   ExpiredDeleter
	cron    *cron.Cron
	logger  logrus.FieldLogger
	timeout time.Duration
}

// NewSweeper schedules store cleanup. schedule accepts standard cron specs and @every.
func NewSweeper(store ExpiredDeleter, schedule string, logger logrus.FieldLogger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	s := &Sweeper{
		store:   store,
		cron:    cron.New(),
		logger:  logger.WithField("component", "session_sweeper"),
		timeout: time.Minute,
	}
	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins running sweeps in the background
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep, or for ctx to end
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep removes expired sessions once
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.store.DeleteExpired(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to purge expired sessions")
		return
	}
	if n > 0 {
		s.logger.WithField("removed", n).Info("Purged expired sessions")
	}
}
