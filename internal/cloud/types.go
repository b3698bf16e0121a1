package cloud

type RuleID string

// RoutingRule is one listener rule as reported by the control plane.
// Lower priority values are evaluated first.
type RoutingRule struct {
	ID         RuleID   `json:"id"`
	Priority   int      `json:"priority"`
	Hosts      []string `json:"hosts,omitempty"`
	Paths      []string `json:"paths,omitempty"`
	TargetPool string   `json:"target_pool"`
}

// PriorityAssignment updates a rule's priority and nothing else, so the
// rule's match conditions and actions survive the update untouched.
type PriorityAssignment struct {
	RuleID   RuleID `json:"rule_id"`
	Priority int    `json:"priority"`
}

// ServiceStatus is a point-in-time observation of a compute service.
// Desired is the only field this system ever writes back.
type ServiceStatus struct {
	Desired int `json:"desired_count"`
	Running int `json:"running_count"`
	Pending int `json:"pending_count"`
}

type DBInstanceStatus string

const (
	DBStatusAvailable DBInstanceStatus = "available"
	DBStatusStopping  DBInstanceStatus = "stopping"
	DBStatusStopped   DBInstanceStatus = "stopped"
	DBStatusStarting  DBInstanceStatus = "starting"
)
