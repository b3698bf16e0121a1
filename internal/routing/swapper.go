package routing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ostapkh/cloud-hibernator/internal/cloud"
)

type RuleAPI interface {
	ListRules(ctx context.Context) ([]cloud.RoutingRule, error)
	SetRulePriorities(ctx context.Context, assignments []cloud.PriorityAssignment) error
}

const (
	topPriority  = 1
	nextPriority = 2
)

// ManagedRule names one of the two rules under control. RuleID is used when
// the provisioning layer supplied it; otherwise the rule is discovered by its
// configured target pool.
type ManagedRule struct {
	Pool   string
	RuleID cloud.RuleID
}

// Swapper reorders the placeholder and backend listener rules so that exactly
// one of them holds the top priority at a time. It never touches rule match
// conditions: the control plane's priority update is priority-only.
type Swapper struct {
	api         RuleAPI
	placeholder ManagedRule
	backend     ManagedRule
}

func NewSwapper(api RuleAPI, placeholder, backend ManagedRule) *Swapper {
	return &Swapper{
		api:         api,
		placeholder: placeholder,
		backend:     backend,
	}
}

// PromotePlaceholder routes matching traffic to the placeholder endpoint.
func (s *Swapper) PromotePlaceholder(ctx context.Context) error {
	return s.promote(ctx, s.placeholder, s.backend)
}

// PromoteBackend routes matching traffic to the real backend pool.
func (s *Swapper) PromoteBackend(ctx context.Context) error {
	return s.promote(ctx, s.backend, s.placeholder)
}

// promote re-derives the desired priorities from current listener state on
// every call, so repeated invocations and re-runs after partial application
// converge to the same assignment.
func (s *Swapper) promote(ctx context.Context, winner, loser ManagedRule) error {
	rules, err := s.api.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list listener rules: %w", err)
	}

	winRule, winFound := findRule(rules, winner)
	loseRule, loseFound := findRule(rules, loser)
	if !winFound || !loseFound {
		log.Warn().Msgf(
			"rule discovery incomplete (%s found=%t, %s found=%t), leaving traffic as-is",
			winner.Pool, winFound, loser.Pool, loseFound,
		)
		return nil
	}

	if winRule.Priority == topPriority && loseRule.Priority == nextPriority {
		log.Debug().Msgf("rule for %s already has top priority", winner.Pool)
		return nil
	}

	err = s.api.SetRulePriorities(ctx, []cloud.PriorityAssignment{
		{RuleID: winRule.ID, Priority: topPriority},
		{RuleID: loseRule.ID, Priority: nextPriority},
	})
	if err != nil {
		return fmt.Errorf("failed to update rule priorities: %w", err)
	}
	log.Info().Msgf("promoted rule %s (%s) to priority %d", winRule.ID, winner.Pool, topPriority)
	return nil
}

func findRule(rules []cloud.RoutingRule, managed ManagedRule) (cloud.RoutingRule, bool) {
	for _, rule := range rules {
		if managed.RuleID != "" && rule.ID == managed.RuleID {
			return rule, true
		}
		if managed.RuleID == "" && rule.TargetPool == managed.Pool {
			return rule, true
		}
	}
	return cloud.RoutingRule{}, false
}
