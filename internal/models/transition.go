package models

import "time"

type Flow string

const (
	FlowHibernate Flow = "hibernate"
	FlowWake      Flow = "wake"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Transition is one completed orchestration run, persisted for audit and
// served back on the introspection endpoint.
type Transition struct {
	RunID         string        `json:"run_id"`
	Flow          Flow          `json:"flow"`
	Outcome       Outcome       `json:"outcome"`
	DesiredBefore int           `json:"desired_before"`
	DesiredAfter  int           `json:"desired_after"`
	Duration      time.Duration `json:"duration"`
	LastError     string        `json:"last_error,omitempty"`
	At            time.Time     `json:"at"`
}

// LifecycleEvent is published to the platform bus on every flow stage change.
type LifecycleEvent struct {
	RunID  string    `json:"run_id"`
	Flow   Flow      `json:"flow"`
	Stage  string    `json:"stage"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

const (
	StageStarted   = "started"
	StageCompleted = "completed"
	StageFailed    = "failed"
)
