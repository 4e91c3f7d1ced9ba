package source

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/concordium/eur2ccd-service/internal/history"
	"github.com/concordium/eur2ccd-service/internal/metrics"
	"github.com/concordium/eur2ccd-service/internal/model"
	"github.com/concordium/eur2ccd-service/internal/scheduler"
	"github.com/concordium/eur2ccd-service/internal/telemetry"
)

// Run drives one poller's long-lived polling task: it fetches once per
// pull tick with a bounded per-request timeout, feeds the ring on
// success, and on failure logs at a severity below warning, counts the
// failure, and leaves the ring untouched (spec.md 4.1). It never
// terminates the process — a panic inside FetchOnce is recovered and
// treated as a failure, matching spec.md section 7's "a panic or
// unexpected fault in one task must not take down others".
func Run(ctx context.Context, sched *scheduler.Scheduler, poller Poller, ring *history.Ring, m *metrics.Metrics, fetchTimeout time.Duration) {
	log := logrus.WithFields(logrus.Fields{"component": "poller", "source": poller.Describe()})
	limiter := newLimiter()

	sched.Run(ctx, func(ctx context.Context) error {
		tickCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()

		if err := limiter.Wait(tickCtx); err != nil {
			log.WithError(err).Debug("rate limiter wait aborted, skipping this tick")
			return nil
		}

		tickCtx, span := startSpan(tickCtx, "poll."+poller.Describe())
		defer span()

		rate, err := safeFetchOnce(tickCtx, poller)
		if err != nil {
			log.WithError(err).Debug("source poll failed, will retry next tick")
			telemetry.RecordError(tickCtx, err)
			ring.RecordFailure()
			m.ReadFailuresPerSource.WithLabelValues(poller.Describe()).Inc()
			return nil
		}

		ring.Push(rate)
		if f, ok := rate.Rat().Float64(); ok {
			m.LastReadPerSource.WithLabelValues(poller.Describe()).Set(f)
		}
		return nil
	})
}

// safeFetchOnce recovers a panic from a misbehaving poller implementation
// and turns it into an ordinary error, so one bad source cannot take the
// whole poller loop down.
func safeFetchOnce(ctx context.Context, poller Poller) (rate model.Rate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poller panicked: %v", r)
		}
	}()
	return poller.FetchOnce(ctx)
}

func startSpan(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := telemetry.Tracer().Start(ctx, name)
	return ctx, func() { span.End() }
}
