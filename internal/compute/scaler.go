package compute

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ostapkh/cloud-hibernator/internal/cloud"
)

type ServiceAPI interface {
	DescribeService(ctx context.Context) (cloud.ServiceStatus, error)
	SetDesiredCount(ctx context.Context, desired int) error
}

// Scaler issues desired-count transitions for the backend service.
// Setting the count is fire-and-forget; convergence is observed via Describe.
type Scaler struct {
	api ServiceAPI
}

func NewScaler(api ServiceAPI) *Scaler {
	return &Scaler{api: api}
}

// SetDesiredCount propagates control-plane errors to the caller: an
// incorrect desired count must abort the surrounding flow.
func (s *Scaler) SetDesiredCount(ctx context.Context, desired int) error {
	if desired < 0 {
		return fmt.Errorf("desired count must be non-negative, got %d", desired)
	}
	if err := s.api.SetDesiredCount(ctx, desired); err != nil {
		return fmt.Errorf("failed to set desired count to %d: %w", desired, err)
	}
	log.Info().Msgf("set service desired count to %d", desired)
	return nil
}

func (s *Scaler) Describe(ctx context.Context) (cloud.ServiceStatus, error) {
	status, err := s.api.DescribeService(ctx)
	if err != nil {
		return cloud.ServiceStatus{}, fmt.Errorf("failed to describe service: %w", err)
	}
	return status, nil
}
