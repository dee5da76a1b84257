package subledger

import (
	"github.com/xraph/subledger/plan"
	"github.com/xraph/subledger/subscription"
	"github.com/xraph/subledger/types"
)

// Re-export common types for convenience so users don't have to import
// every subpackage.

// Amount is re-exported from types package.
type Amount = types.Amount

// Plan is re-exported from plan package.
type Plan = plan.Plan

// Subscription is re-exported from subscription package.
type Subscription = subscription.Subscription
