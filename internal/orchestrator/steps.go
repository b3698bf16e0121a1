package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/rs/zerolog"
)

// Policy controls how a step failure affects the rest of the flow.
type Policy int

const (
	// BestEffort steps log their failure and let the flow continue: they
	// guard lower-value side effects (database power, routing cosmetics)
	// that must never block the traffic path.
	BestEffort Policy = iota
	// Required steps abort the flow on failure.
	Required
)

type step struct {
	name   string
	policy Policy
	run    func(ctx context.Context) error
}

func runSteps(ctx context.Context, logger zerolog.Logger, steps []step) error {
	for _, st := range steps {
		err := st.run(ctx)
		if err == nil {
			logger.Info().Msgf("step %q done", st.name)
			continue
		}
		if st.policy == BestEffort {
			logger.Warn().Err(err).Msgf("step %q failed, continuing", st.name)
			continue
		}
		return fmt.Errorf("step %q: %w", st.name, err)
	}
	return nil
}

// observeDesired reads the live desired count for the audit row only, a read
// failure here must not influence the flow.
func observeDesired(ctx context.Context, scaler Scaler, logger zerolog.Logger) int {
	status, err := scaler.Describe(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to observe desired count")
		return -1
	}
	return status.Desired
}

func newRunID() string {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return id
}
