package dbpower

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ostapkh/cloud-hibernator/internal/cloud"
)

type InstanceAPI interface {
	DescribeDBInstance(ctx context.Context) (cloud.DBInstanceStatus, error)
	StopDBInstance(ctx context.Context) error
	StartDBInstance(ctx context.Context) error
}

// Controller transitions the managed database instance between running and
// stopped. Transitions are only issued from the expected precondition state;
// anything else is a successful no-op so an instance that is already
// stopping or starting is never double-triggered.
type Controller struct {
	api InstanceAPI
}

func NewController(api InstanceAPI) *Controller {
	return &Controller{api: api}
}

func (c *Controller) StopIfAvailable(ctx context.Context) error {
	status, err := c.api.DescribeDBInstance(ctx)
	if err != nil {
		return fmt.Errorf("failed to read db instance status: %w", err)
	}
	if status != cloud.DBStatusAvailable {
		log.Info().Msgf("db instance is %q, skipping stop", status)
		return nil
	}
	if err := c.api.StopDBInstance(ctx); err != nil {
		return fmt.Errorf("failed to stop db instance: %w", err)
	}
	log.Info().Msg("db instance stop issued")
	return nil
}

func (c *Controller) StartIfStopped(ctx context.Context) error {
	status, err := c.api.DescribeDBInstance(ctx)
	if err != nil {
		return fmt.Errorf("failed to read db instance status: %w", err)
	}
	if status != cloud.DBStatusStopped {
		log.Info().Msgf("db instance is %q, skipping start", status)
		return nil
	}
	if err := c.api.StartDBInstance(ctx); err != nil {
		return fmt.Errorf("failed to start db instance: %w", err)
	}
	log.Info().Msg("db instance start issued")
	return nil
}
