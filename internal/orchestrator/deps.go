package orchestrator

import (
	"context"

	"github.com/ostapkh/cloud-hibernator/internal/cloud"
	"github.com/ostapkh/cloud-hibernator/internal/models"
	"github.com/ostapkh/cloud-hibernator/internal/replay"
)

type RuleSwapper interface {
	PromotePlaceholder(ctx context.Context) error
	PromoteBackend(ctx context.Context) error
}

type Scaler interface {
	SetDesiredCount(ctx context.Context, desired int) error
	Describe(ctx context.Context) (cloud.ServiceStatus, error)
}

type PowerController interface {
	StopIfAvailable(ctx context.Context) error
	StartIfStopped(ctx context.Context) error
}

type DrainWaiter interface {
	WaitUntilDrained(ctx context.Context) bool
}

type ReadinessWaiter interface {
	WaitUntilReady(ctx context.Context) error
}

type Replayer interface {
	Replay(ctx context.Context, req *replay.Request) (*replay.Response, error)
}

type TransitionRecorder interface {
	RecordTransition(ctx context.Context, t models.Transition) error
}

type LifecycleNotifier interface {
	NotifyLifecycle(ctx context.Context, event models.LifecycleEvent)
}

// NopRecorder and NopNotifier stand in when history persistence or the
// event bus are not configured.
type NopRecorder struct{}

func (NopRecorder) RecordTransition(context.Context, models.Transition) error { return nil }

type NopNotifier struct{}

func (NopNotifier) NotifyLifecycle(context.Context, models.LifecycleEvent) {}
