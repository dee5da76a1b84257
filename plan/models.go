// Package plan holds the billing plan record and its storage helpers.
package plan

import (
	"math"

	"github.com/xraph/subledger/types"
)

// Status is whether a plan accepts new subscriptions and renewals.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Plan is a recurring charge of Price every Period ticks. ID is chosen by
// the administrator. Period and Price never change after creation.
type Plan struct {
	ID     uint32       `json:"id"`
	Name   string       `json:"name,omitempty"`
	Period uint32       `json:"period"`
	Price  types.Amount `json:"price"`
	Active bool         `json:"active"`
}

// Status returns the plan's availability for new subscriptions and renewals.
func (p *Plan) Status() Status {
	if p.Active {
		return StatusActive
	}
	return StatusInactive
}

// DueAfter returns the tick one period after from, and false if that tick
// does not fit the tick range.
func (p *Plan) DueAfter(from uint32) (uint32, bool) {
	if from > math.MaxUint32-p.Period {
		return 0, false
	}
	return from + p.Period, true
}
