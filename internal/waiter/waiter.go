package waiter

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ostapkh/cloud-hibernator/internal/cloud"
)

type StatusSource interface {
	Describe(ctx context.Context) (cloud.ServiceStatus, error)
}

type DBStatusSource interface {
	DescribeDBInstance(ctx context.Context) (cloud.DBInstanceStatus, error)
}

// DrainWaiter polls the service until every task stopped after the desired
// count was set to zero.
type DrainWaiter struct {
	src      StatusSource
	interval time.Duration
	budget   time.Duration
}

func NewDrainWaiter(src StatusSource, interval, budget time.Duration) *DrainWaiter {
	if interval == 0 {
		interval = 5 * time.Second
	}
	if budget == 0 {
		budget = 2 * time.Minute
	}
	return &DrainWaiter{src: src, interval: interval, budget: budget}
}

// WaitUntilDrained reports whether running and desired both reached zero
// within the budget. Exhaustion is not an error: the caller powers the
// database down regardless and only logs the stuck drain.
func (w *DrainWaiter) WaitUntilDrained(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, w.budget)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(w.interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return false
		}
		status, err := w.src.Describe(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("failed to describe service while draining")
			continue
		}
		if status.Running == 0 && status.Desired == 0 {
			return true
		}
		log.Debug().Msgf("service not drained yet: running=%d pending=%d", status.Running, status.Pending)
	}
}

// ReadinessWaiter polls until the service converged on at least one running
// task and, when a database source is wired, the instance is serving.
type ReadinessWaiter struct {
	src      StatusSource
	db       DBStatusSource
	interval time.Duration
	budget   time.Duration
}

func NewReadinessWaiter(src StatusSource, db DBStatusSource, interval, budget time.Duration) *ReadinessWaiter {
	if interval == 0 {
		interval = 5 * time.Second
	}
	if budget == 0 {
		budget = 3 * time.Minute
	}
	return &ReadinessWaiter{src: src, db: db, interval: interval, budget: budget}
}

// WaitUntilReady returns an error on budget exhaustion: replaying a request
// against a service that never became ready cannot succeed, so the wake flow
// must surface a retryable failure instead.
func (w *ReadinessWaiter) WaitUntilReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.budget)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(w.interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("service not ready within %s: %w", w.budget, err)
		}
		status, err := w.src.Describe(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("failed to describe service while waiting for readiness")
			continue
		}
		if status.Desired < 1 || status.Running != status.Desired || status.Pending != 0 {
			log.Debug().Msgf(
				"service not ready yet: desired=%d running=%d pending=%d",
				status.Desired, status.Running, status.Pending,
			)
			continue
		}
		if w.db != nil {
			dbStatus, err := w.db.DescribeDBInstance(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("failed to describe db instance while waiting for readiness")
				continue
			}
			if dbStatus != cloud.DBStatusAvailable {
				log.Debug().Msgf("db instance not ready yet: %q", dbStatus)
				continue
			}
		}
		return nil
	}
}
