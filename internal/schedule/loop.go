package schedule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultPollInterval caps each sleep so wall-clock jumps (suspend,
	// NTP step) are noticed within one interval.
	DefaultPollInterval = 20 * time.Second

	// DefaultGrace is how late a trigger may be noticed and still fire.
	DefaultGrace = 2 * time.Minute
)

// Job is invoked once per trigger. Its error is logged, never propagated.
type Job func(ctx context.Context) error

// Loop runs Job at each trigger of Schedule, one invocation at a time.
type Loop struct {
	Schedule     *Schedule
	Job          Job
	PollInterval time.Duration
	Grace        time.Duration

	// LockPath, when set, is held with an exclusive file lock for the
	// lifetime of Run so only one process posts from the same state.
	LockPath string

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// Run blocks until ctx is canceled. It returns an error only when the
// instance lock cannot be taken.
func (l *Loop) Run(ctx context.Context) error {
	if l.LockPath != "" {
		unlock, err := AcquireLock(l.LockPath)
		if err != nil {
			return err
		}
		defer unlock()
	}

	now, after := l.clock()
	poll := l.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	grace := l.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}

	next := l.Schedule.Next(now())
	log.Info().Str("schedule", l.Schedule.String()).Time("nextRun", next).Msg("Scheduler started")

	for {
		if ctx.Err() != nil {
			log.Info().Msg("Scheduler stopped")
			return nil
		}

		wait := min(poll, next.Sub(now()))
		if wait > 0 {
			select {
			case <-ctx.Done():
				log.Info().Msg("Scheduler stopped")
				return nil
			case <-after(wait):
			}
			continue
		}

		late := now().Sub(next)
		if late > grace {
			log.Warn().Time("trigger", next).Dur("late", late).Msg("Missed trigger skipped")
		} else {
			l.fire(ctx, next)
		}

		next = l.Schedule.Next(now())
		log.Info().Time("nextRun", next).Msg("Next trigger scheduled")
	}
}

// fire runs the job and contains any error or panic it produces.
func (l *Loop) fire(ctx context.Context, trigger time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Str("stack", string(debug.Stack())).Time("trigger", trigger).Msg("Scheduled job panicked")
		}
	}()

	log.Info().Time("trigger", trigger).Msg("Trigger fired")
	if err := l.Job(ctx); err != nil {
		log.Error().Err(err).Time("trigger", trigger).Msg("Scheduled job failed")
	}
}

func (l *Loop) clock() (func() time.Time, func(time.Duration) <-chan time.Time) {
	now, after := l.now, l.after
	if now == nil {
		now = time.Now
	}
	if after == nil {
		after = time.After
	}
	return now, after
}

// AcquireLock takes an exclusive, non-blocking lock on path and returns the
// function that releases it.
func AcquireLock(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("another reelbot instance holds %s", path)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			log.Warn().Err(err).Str("lock", path).Msg("Failed to release lock")
		}
	}, nil
}
