package subledger

import (
	"context"

	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/index"
	"github.com/xraph/subledger/plan"
	"github.com/xraph/subledger/types"
)

// ──────────────────────────────────────────────────
// Plan Management
// ──────────────────────────────────────────────────

// CreatePlan defines a new active plan charging price every period ticks.
// Only the administrator may create plans, and planID must be unused.
func (e *Engine) CreatePlan(ctx context.Context, caller id.Principal, planID uint32, name string, period uint32, price types.Amount) (*plan.Plan, error) {
	var created *plan.Plan
	err := e.invoke(ctx, "create_plan", func(ctx context.Context, c *call) error {
		if err := e.requireAdmin(ctx, c, caller); err != nil {
			return err
		}
		if period == 0 {
			return ErrInvalidPeriod
		}
		if !price.IsPositive() {
			return ErrInvalidPrice
		}

		exists, err := plan.Exists(ctx, c.tx, planID)
		if err != nil {
			return err
		}
		if exists {
			return ErrPlanAlreadyExists
		}

		p := &plan.Plan{ID: planID, Name: name, Period: period, Price: price, Active: true}
		if err := plan.Put(ctx, c.tx, p); err != nil {
			return err
		}
		if err := index.AppendPlan(ctx, c.tx, planID); err != nil {
			return err
		}

		created = p
		c.emit(func(ctx context.Context) { e.plugins.EmitPlanCreated(ctx, p) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SetPlanStatus activates or deactivates a plan. Period and price are
// never changed.
func (e *Engine) SetPlanStatus(ctx context.Context, caller id.Principal, planID uint32, active bool) (*plan.Plan, error) {
	var updated *plan.Plan
	err := e.invoke(ctx, "set_plan_status", func(ctx context.Context, c *call) error {
		if err := e.requireAdmin(ctx, c, caller); err != nil {
			return err
		}

		p, err := plan.Get(ctx, c.tx, planID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrPlanNotFound
		}

		wasActive := p.Active
		p.Active = active
		if err := plan.Put(ctx, c.tx, p); err != nil {
			return err
		}

		updated = p
		c.emit(func(ctx context.Context) { e.plugins.EmitPlanStatusChanged(ctx, p, wasActive) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetPlan returns the plan with planID.
func (e *Engine) GetPlan(ctx context.Context, planID uint32) (*plan.Plan, error) {
	var found *plan.Plan
	err := e.invoke(ctx, "get_plan", func(ctx context.Context, c *call) error {
		p, err := plan.Get(ctx, c.tx, planID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrPlanNotFound
		}
		found = p
		return plan.Touch(ctx, c.tx, planID)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
