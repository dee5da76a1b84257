package plan

import (
	"context"

	"github.com/xraph/subledger/state"
)

// Get loads the plan with planID. A missing plan yields (nil, nil).
func Get(ctx context.Context, tx *state.Tx, planID uint32) (*Plan, error) {
	var p Plan
	ok, err := tx.Get(ctx, state.PlanKey(planID), &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

// Exists reports whether a plan with planID is stored.
func Exists(ctx context.Context, tx *state.Tx, planID uint32) (bool, error) {
	return tx.Has(ctx, state.PlanKey(planID))
}

// Put writes p and extends its lifetime.
func Put(ctx context.Context, tx *state.Tx, p *Plan) error {
	if err := tx.Set(ctx, state.PlanKey(p.ID), p); err != nil {
		return err
	}
	return Touch(ctx, tx, p.ID)
}

// Touch extends the lifetime of the stored plan.
func Touch(ctx context.Context, tx *state.Tx, planID uint32) error {
	return tx.Bump(ctx, state.PlanKey(planID))
}
