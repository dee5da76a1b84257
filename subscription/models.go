// Package subscription holds the per-subscriber billing record.
package subscription

import (
	"github.com/xraph/subledger/id"
)

// Status is the lifecycle state of a subscription as reported to callers.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// Subscription is the single billing slot of one subscriber. Subscribing
// again after a cancellation replaces the record.
type Subscription struct {
	Subscriber id.Principal `json:"subscriber"`
	PlanID     uint32       `json:"plan_id"`
	StartedAt  uint32       `json:"started_at"`
	NextDueAt  uint32       `json:"next_due_at"`
	Active     bool         `json:"active"`
}

// Status returns StatusActive until the subscription is cancelled.
func (s *Subscription) Status() Status {
	if s.Active {
		return StatusActive
	}
	return StatusCancelled
}

// Due reports whether a renewal may be charged at tick now.
func (s *Subscription) Due(now uint32) bool {
	return now >= s.NextDueAt
}
