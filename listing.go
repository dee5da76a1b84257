package subledger

import (
	"context"

	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/index"
	"github.com/xraph/subledger/plan"
	"github.com/xraph/subledger/subscription"
)

// ──────────────────────────────────────────────────
// Listing
// ──────────────────────────────────────────────────

func validatePageSize(limit uint32) error {
	if limit > index.MaxPageSize {
		return ErrInvalidPageSize
	}
	return nil
}

// ListPlans returns up to limit plans in creation order, starting at offset.
func (e *Engine) ListPlans(ctx context.Context, offset, limit uint32) ([]*plan.Plan, error) {
	out := []*plan.Plan{}
	err := e.invoke(ctx, "list_plans", func(ctx context.Context, c *call) error {
		if err := validatePageSize(limit); err != nil {
			return err
		}
		if limit == 0 {
			return nil
		}
		count, err := index.PlanCount(ctx, c.tx)
		if err != nil {
			return err
		}
		start, end, ok := index.Window(offset, limit, count)
		if !ok {
			return nil
		}

		for i := start; i < end; i++ {
			planID, ok, err := index.PlanAt(ctx, c.tx, i)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			p, err := plan.Get(ctx, c.tx, planID)
			if err != nil {
				return err
			}
			if p == nil {
				continue
			}
			if err := plan.Touch(ctx, c.tx, planID); err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListSubscribers returns up to limit principals in first-subscription
// order, starting at offset. Every principal appears once.
func (e *Engine) ListSubscribers(ctx context.Context, offset, limit uint32) ([]id.Principal, error) {
	out := []id.Principal{}
	err := e.invoke(ctx, "list_subscribers", func(ctx context.Context, c *call) error {
		if err := validatePageSize(limit); err != nil {
			return err
		}
		if limit == 0 {
			return nil
		}
		count, err := index.SubscriberCount(ctx, c.tx)
		if err != nil {
			return err
		}
		start, end, ok := index.Window(offset, limit, count)
		if !ok {
			return nil
		}

		for i := start; i < end; i++ {
			p, ok, err := index.SubscriberAt(ctx, c.tx, i)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListSubscriptions returns the current records of up to limit subscribers,
// in the same order as ListSubscribers.
func (e *Engine) ListSubscriptions(ctx context.Context, offset, limit uint32) ([]*subscription.Subscription, error) {
	out := []*subscription.Subscription{}
	err := e.invoke(ctx, "list_subscriptions", func(ctx context.Context, c *call) error {
		if err := validatePageSize(limit); err != nil {
			return err
		}
		if limit == 0 {
			return nil
		}
		count, err := index.SubscriberCount(ctx, c.tx)
		if err != nil {
			return err
		}
		start, end, ok := index.Window(offset, limit, count)
		if !ok {
			return nil
		}

		for i := start; i < end; i++ {
			p, ok, err := index.SubscriberAt(ctx, c.tx, i)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			sub, err := subscription.Get(ctx, c.tx, p)
			if err != nil {
				return err
			}
			if sub == nil {
				continue
			}
			if err := subscription.Touch(ctx, c.tx, p); err != nil {
				return err
			}
			out = append(out, sub)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
