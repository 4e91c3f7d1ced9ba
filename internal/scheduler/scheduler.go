// Package scheduler implements the two decoupled periodic timers
// spec.md requires: a pull tick driving the source pollers and an
// update tick driving the governor/submitter chain. Each is an
// independent Scheduler instance so that neither starves the other,
// following the aligned-bucket ticking pattern used elsewhere in the
// retrieved example pack.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// TickFunc is invoked on every tick. An error, or a panic recovered
// from the tick, is logged but never stops the loop, matching spec.md section 7's "recoverable in-loop errors
// never unwind the task" propagation policy.
type TickFunc func(ctx context.Context) error

// Options configure a Scheduler.
type Options struct {
	Interval      time.Duration
	AlignToBucket bool
	StartupDelay  time.Duration
}

// Scheduler drives a TickFunc on a fixed interval.
type Scheduler struct {
	opts Options
	log  *logrus.Entry
}

// New constructs a Scheduler. It panics if Interval is non-positive,
// since that is a startup-time configuration error, not a runtime
// condition to recover from.
func New(opts Options, log *logrus.Entry) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler: interval must be positive")
	}
	return &Scheduler{opts: opts, log: log}
}

// Run blocks, invoking tick on every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) {
	if s.opts.StartupDelay > 0 {
		select {
		case <-time.After(s.opts.StartupDelay):
		case <-ctx.Done():
			return
		}
	}

	next := s.nextTick(time.Now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("tick panicked: %v", r)
					}
				}()
				return tick(ctx)
			}()
			if err != nil {
				s.log.WithError(err).Warn("tick returned an error, continuing on schedule")
			}
			next = s.nextTick(time.Now())
			timer.Reset(time.Until(next))
		}
	}
}

// nextTick returns the next time the scheduler should fire, aligned to
// an interval-sized bucket boundary of the wall clock when configured,
// otherwise exactly one interval from now.
func (s *Scheduler) nextTick(from time.Time) time.Time {
	if !s.opts.AlignToBucket {
		return from.Add(s.opts.Interval)
	}
	bucket := s.bucketStart(from)
	next := bucket.Add(s.opts.Interval)
	if !next.After(from) {
		next = next.Add(s.opts.Interval)
	}
	return next
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	return t.Truncate(s.opts.Interval)
}
