// Package plugin provides an extensible plugin system for subledger.
// Plugins hook into lifecycle events after the corresponding state change
// has been committed; a failing hook never undoes a committed change.
package plugin

import (
	"context"

	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/payment"
	"github.com/xraph/subledger/plan"
	"github.com/xraph/subledger/subscription"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// Configuration is the one-time ledger configuration written by Init.
type Configuration struct {
	Admin        id.Principal `json:"admin"`
	PaymentToken id.TokenID   `json:"payment_token"`
	Treasury     id.Principal `json:"treasury"`
	Tick         uint32       `json:"tick"`
}

// OnLedgerInitialized is called once the ledger configuration is stored.
type OnLedgerInitialized interface {
	Plugin
	OnLedgerInitialized(ctx context.Context, cfg Configuration) error
}

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanCreated is called when a new plan is created.
type OnPlanCreated interface {
	Plugin
	OnPlanCreated(ctx context.Context, p *plan.Plan) error
}

// OnPlanStatusChanged is called after a plan's active flag is written.
type OnPlanStatusChanged interface {
	Plugin
	OnPlanStatusChanged(ctx context.Context, p *plan.Plan, wasActive bool) error
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscribed is called when a subscriber starts (or restarts) a plan.
type OnSubscribed interface {
	Plugin
	OnSubscribed(ctx context.Context, sub *subscription.Subscription, p *plan.Plan) error
}

// OnRenewed is called after a renewal advanced the due tick.
type OnRenewed interface {
	Plugin
	OnRenewed(ctx context.Context, sub *subscription.Subscription, p *plan.Plan, previousDue uint32) error
}

// OnCanceled is called when a subscription is cancelled.
type OnCanceled interface {
	Plugin
	OnCanceled(ctx context.Context, sub *subscription.Subscription) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnCharged is called for every charge that was part of a committed call.
type OnCharged interface {
	Plugin
	OnCharged(ctx context.Context, charge payment.Charge) error
}

// OnRejected is called when an operation aborts. Nothing was written.
type OnRejected interface {
	Plugin
	OnRejected(ctx context.Context, op string, err error) error
}
