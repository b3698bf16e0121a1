package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ostapkh/cloud-hibernator/internal/metrics"
	"github.com/ostapkh/cloud-hibernator/internal/models"
	"github.com/ostapkh/cloud-hibernator/internal/replay"
)

// Wake powers the backend back up and replays the request that hit the
// placeholder. Concurrent cold requests each run their own Wake: the
// underlying resource operations are idempotent, so racing runs all drive
// the shared state toward the same target and then replay their own request.
type Wake struct {
	scaler    Scaler
	db        PowerController
	swapper   RuleSwapper
	readiness ReadinessWaiter
	replayer  Replayer
	recorder  TransitionRecorder
	notifier  LifecycleNotifier
	metrics   metrics.Metrics

	// waitForReady enables the readiness wait before replaying. Off by
	// default: the replay loop's capped retry budget already absorbs the
	// backend's startup latency.
	waitForReady bool
}

func NewWake(
	scaler Scaler,
	db PowerController,
	swapper RuleSwapper,
	readiness ReadinessWaiter,
	replayer Replayer,
	recorder TransitionRecorder,
	notifier LifecycleNotifier,
	mtr metrics.Metrics,
	waitForReady bool,
) *Wake {
	return &Wake{
		scaler:       scaler,
		db:           db,
		swapper:      swapper,
		readiness:    readiness,
		replayer:     replayer,
		recorder:     recorder,
		notifier:     notifier,
		metrics:      mtr,
		waitForReady: waitForReady,
	}
}

func (w *Wake) Run(ctx context.Context, captured *replay.Request) (*replay.Response, error) {
	var (
		runID   = newRunID()
		logger  = log.With().Str("run_id", runID).Str("flow", string(models.FlowWake)).Logger()
		started = time.Now()
	)
	logger.Info().Msgf("cold %s %s received, waking backend", captured.Method, captured.URL)
	w.notifier.NotifyLifecycle(ctx, models.LifecycleEvent{
		RunID: runID, Flow: models.FlowWake, Stage: models.StageStarted, At: started,
	})

	desiredBefore := observeDesired(ctx, w.scaler, logger)

	steps := []step{
		{name: "scale service to one", policy: Required, run: func(ctx context.Context) error {
			return w.scaler.SetDesiredCount(ctx, 1)
		}},
		{name: "start db instance", policy: BestEffort, run: w.db.StartIfStopped},
		{name: "promote backend rule", policy: Required, run: w.swapper.PromoteBackend},
	}
	if w.waitForReady {
		steps = append(steps, step{name: "wait for readiness", policy: Required, run: w.readiness.WaitUntilReady})
	}

	if err := runSteps(ctx, logger, steps); err != nil {
		w.finish(ctx, logger, runID, started, desiredBefore, observeDesired(ctx, w.scaler, logger), err)
		return nil, err
	}

	resp, err := w.replayer.Replay(ctx, captured)
	if err != nil {
		err = fmt.Errorf("wake replay: %w", err)
		w.finish(ctx, logger, runID, started, desiredBefore, observeDesired(ctx, w.scaler, logger), err)
		return nil, err
	}

	w.finish(ctx, logger, runID, started, desiredBefore, 1, nil)
	logger.Info().Msgf("backend answered %d", resp.StatusCode)
	return resp, nil
}

func (w *Wake) finish(
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

	w.metrics.Increment("wake." + string(outcome))
	w.metrics.Duration("wake.duration", duration)

	recordErr := w.recorder.RecordTransition(ctx, models.Transition{
		RunID:         runID,
		Flow:          models.FlowWake,
		Outcome:       outcome,
		DesiredBefore: desiredBefore,
		DesiredAfter:  desiredAfter,
		Duration:      duration,
		LastError:     errStr,
		At:            time.Now(),
	})
	if recordErr != nil {
		logger.Warn().Err(recordErr).Msg("failed to record wake transition")
	}
	w.notifier.NotifyLifecycle(ctx, models.LifecycleEvent{
		RunID: runID, Flow: models.FlowWake, Stage: stage, Detail: errStr, At: time.Now(),
	})

	if err != nil {
		logger.Error().Err(err).Msgf("wake run failed after %s", duration)
	}
}
