package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ostapkh/cloud-hibernator/internal/metrics"
	"github.com/ostapkh/cloud-hibernator/internal/models"
)

// Hibernate quiesces traffic onto the placeholder, scales the backend to
// zero and powers its database down. Triggered once per idle-alarm breach;
// every step except the desired-count update is best-effort, since
// completing the cost-saving action beats blocking on a stuck drain or a
// database that refuses to stop.
type Hibernate struct {
	swapper  RuleSwapper
	scaler   Scaler
	drain    DrainWaiter
	db       PowerController
	recorder TransitionRecorder
	notifier LifecycleNotifier
	metrics  metrics.Metrics
}

func NewHibernate(
	swapper RuleSwapper,
	scaler Scaler,
	drain DrainWaiter,
	db PowerController,
	recorder TransitionRecorder,
	notifier LifecycleNotifier,
	mtr metrics.Metrics,
) *Hibernate {
	return &Hibernate{
		swapper:  swapper,
		scaler:   scaler,
		drain:    drain,
		db:       db,
		recorder: recorder,
		notifier: notifier,
		metrics:  mtr,
	}
}

func (h *Hibernate) Run(ctx context.Context) error {
	var (
		runID   = newRunID()
		logger  = log.With().Str("run_id", runID).Str("flow", string(models.FlowHibernate)).Logger()
		started = time.Now()
	)
	logger.Info().Msg("idle alarm received, hibernating backend")
	h.notifier.NotifyLifecycle(ctx, models.LifecycleEvent{
		RunID: runID, Flow: models.FlowHibernate, Stage: models.StageStarted, At: started,
	})

	desiredBefore := observeDesired(ctx, h.scaler, logger)

	err := runSteps(ctx, logger, []step{
		{name: "promote placeholder rule", policy: BestEffort, run: h.swapper.PromotePlaceholder},
		{name: "scale service to zero", policy: Required, run: func(ctx context.Context) error {
			return h.scaler.SetDesiredCount(ctx, 0)
		}},
		{name: "wait for drain", policy: BestEffort, run: func(ctx context.Context) error {
			if !h.drain.WaitUntilDrained(ctx) {
				return errors.New("service did not drain within budget")
			}
			return nil
		}},
		{name: "stop db instance", policy: BestEffort, run: h.db.StopIfAvailable},
	})

	// a failed run records what the control plane actually holds, not the
	// count the flow was driving toward
	desiredAfter := 0
	if err != nil {
		desiredAfter = observeDesired(ctx, h.scaler, logger)
	}
	h.finish(ctx, logger, runID, started, desiredBefore, desiredAfter, err)
	return err
}

func (h *Hibernate) finish(
	ctx context.Context,
	logger zerolog.Logger,
	runID string,
	started time.Time,
	desiredBefore, desiredAfter int,
	err error,
) {
	duration := time.Since(started)
	outcome := models.OutcomeSucceeded
	stage := models.StageCompleted
	errStr := ""
	if err != nil {
		outcome = models.OutcomeFailed
		stage = models.StageFailed
		errStr = err.Error()
	}

	h.metrics.Increment("hibernate." + string(outcome))
	h.metrics.Duration("hibernate.duration", duration)

	recordErr := h.recorder.RecordTransition(ctx, models.Transition{
		RunID:         runID,
		Flow:          models.FlowHibernate,
		Outcome:       outcome,
		DesiredBefore: desiredBefore,
		DesiredAfter:  desiredAfter,
		Duration:      duration,
		LastError:     errStr,
		At:            time.Now(),
	})
	if recordErr != nil {
		logger.Warn().Err(recordErr).Msg("failed to record hibernate transition")
	}
	h.notifier.NotifyLifecycle(ctx, models.LifecycleEvent{
		RunID: runID, Flow: models.FlowHibernate, Stage: stage, Detail: errStr, At: time.Now(),
	})

	if err != nil {
		// the alarm trigger has no caller to answer, logging is the surface
		logger.Error().Err(err).Msgf("hibernate run failed after %s", duration)
		return
	}
	logger.Info().Msgf("backend hibernated in %s", duration)
}
