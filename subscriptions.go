package subledger

import (
	"context"
	"fmt"

	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/index"
	"github.com/xraph/subledger/payment"
	"github.com/xraph/subledger/plan"
	"github.com/xraph/subledger/state"
	"github.com/xraph/subledger/subscription"
	"github.com/xraph/subledger/types"
)

// ──────────────────────────────────────────────────
// Subscription Management
// ──────────────────────────────────────────────────

// Subscribe starts subscriber on planID and charges the first period
// directly from the subscriber's balance. A cancelled subscriber may
// subscribe again; an active one may not.
func (e *Engine) Subscribe(ctx context.Context, subscriber id.Principal, planID uint32) (*subscription.Subscription, error) {
	var created *subscription.Subscription
	err := e.invoke(ctx, "subscribe", func(ctx context.Context, c *call) error {
		if err := e.requireAuth(ctx, subscriber); err != nil {
			return err
		}

		p, err := plan.Get(ctx, c.tx, planID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrPlanNotFound
		}
		if !p.Active {
			return ErrPlanInactive
		}

		existing, err := subscription.Get(ctx, c.tx, subscriber)
		if err != nil {
			return err
		}
		if existing != nil && existing.Active {
			return ErrSubscriptionAlreadyExists
		}

		due, ok := p.DueAfter(c.now)
		if !ok {
			return ErrTickOverflow
		}
		if err := e.charge(ctx, c, payment.ModeDirect, subscriber, p); err != nil {
			return err
		}

		sub := &subscription.Subscription{
			Subscriber: subscriber,
			PlanID:     planID,
			StartedAt:  c.now,
			NextDueAt:  due,
			Active:     true,
		}
		if err := subscription.Put(ctx, c.tx, sub); err != nil {
			return err
		}
		if _, err := index.IndexSubscriber(ctx, c.tx, subscriber); err != nil {
			return err
		}
		if err := plan.Touch(ctx, c.tx, planID); err != nil {
			return err
		}

		created = sub
		c.emit(func(ctx context.Context) { e.plugins.EmitSubscribed(ctx, sub, p) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Renew charges the next period of subscriber's plan under the allowance
// the subscriber granted to the engine's address. Anyone may trigger it,
// but only on or after the due tick. The due tick advances by exactly one
// period from the previous due tick.
func (e *Engine) Renew(ctx context.Context, subscriber id.Principal) (*subscription.Subscription, error) {
	var renewed *subscription.Subscription
	err := e.invoke(ctx, "renew", func(ctx context.Context, c *call) error {
		sub, err := subscription.Get(ctx, c.tx, subscriber)
		if err != nil {
			return err
		}
		if sub == nil {
			return ErrSubscriptionNotFound
		}
		if !sub.Active {
			return ErrSubscriptionCancelled
		}

		p, err := plan.Get(ctx, c.tx, sub.PlanID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrPlanNotFound
		}
		if !p.Active {
			return ErrPlanInactive
		}
		if !sub.Due(c.now) {
			return ErrRenewTooEarly
		}

		previousDue := sub.NextDueAt
		due, ok := p.DueAfter(previousDue)
		if !ok {
			return ErrTickOverflow
		}
		if err := e.charge(ctx, c, payment.ModeDelegated, subscriber, p); err != nil {
			return err
		}

		sub.NextDueAt = due
		if err := subscription.Put(ctx, c.tx, sub); err != nil {
			return err
		}
		if err := plan.Touch(ctx, c.tx, p.ID); err != nil {
			return err
		}

		renewed = sub
		c.emit(func(ctx context.Context) { e.plugins.EmitRenewed(ctx, sub, p, previousDue) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return renewed, nil
}

// Cancel stops future renewals of subscriber's subscription. Cancelling an
// already cancelled subscription succeeds and changes nothing but the
// record's lifetime.
func (e *Engine) Cancel(ctx context.Context, subscriber id.Principal) (*subscription.Subscription, error) {
	var canceled *subscription.Subscription
	err := e.invoke(ctx, "cancel", func(ctx context.Context, c *call) error {
		if err := e.requireAuth(ctx, subscriber); err != nil {
			return err
		}

		sub, err := subscription.Get(ctx, c.tx, subscriber)
		if err != nil {
			return err
		}
		if sub == nil {
			return ErrSubscriptionNotFound
		}

		wasActive := sub.Active
		sub.Active = false
		if err := subscription.Put(ctx, c.tx, sub); err != nil {
			return err
		}

		canceled = sub
		if wasActive {
			c.emit(func(ctx context.Context) { e.plugins.EmitCanceled(ctx, sub) })
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return canceled, nil
}

// GetSubscription returns subscriber's subscription record.
func (e *Engine) GetSubscription(ctx context.Context, subscriber id.Principal) (*subscription.Subscription, error) {
	var found *subscription.Subscription
	err := e.invoke(ctx, "get_subscription", func(ctx context.Context, c *call) error {
		sub, err := subscription.Get(ctx, c.tx, subscriber)
		if err != nil {
			return err
		}
		if sub == nil {
			return ErrSubscriptionNotFound
		}
		found = sub
		return subscription.Touch(ctx, c.tx, subscriber)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// charge queues a payment of p's price from subscriber to the treasury,
// through the payment token the ledger was initialized with.
func (e *Engine) charge(ctx context.Context, c *call, mode payment.Mode, subscriber id.Principal, p *plan.Plan) error {
	treasury, err := readPrincipal(ctx, c, state.TreasuryKey())
	if err != nil {
		return err
	}
	tid, tok, err := e.resolveToken(ctx, c)
	if err != nil {
		return err
	}
	ch := payment.Charge{
		Mode:   mode,
		Token:  tid,
		From:   subscriber,
		To:     treasury,
		PlanID: p.ID,
		Amount: p.Price,
		Tick:   c.now,
	}
	if mode == payment.ModeDelegated {
		ch.Spender = e.address
	}
	c.charges = append(c.charges, pendingCharge{Charge: ch, token: tok})
	return nil
}

// ──────────────────────────────────────────────────
// Renewal capacity
// ──────────────────────────────────────────────────

// Capacity is how many renewals a subscriber's standing allowance covers.
type Capacity struct {
	Subscriber id.Principal `json:"subscriber"`
	Spender    id.Principal `json:"spender"`
	PlanID     uint32       `json:"plan_id"`
	Price      types.Amount `json:"price"`
	Allowance  types.Amount `json:"allowance"`
	Cycles     int64        `json:"cycles"`
	NextDueAt  uint32       `json:"next_due_at"`
}

// RenewalCapacity reports the allowance subscriber has granted the engine
// and how many renewals of the current plan it pays for.
func (e *Engine) RenewalCapacity(ctx context.Context, subscriber id.Principal) (*Capacity, error) {
	var out *Capacity
	err := e.invoke(ctx, "renewal_capacity", func(ctx context.Context, c *call) error {
		sub, err := subscription.Get(ctx, c.tx, subscriber)
		if err != nil {
			return err
		}
		if sub == nil {
			return ErrSubscriptionNotFound
		}
		if !sub.Active {
			return ErrSubscriptionCancelled
		}
		p, err := plan.Get(ctx, c.tx, sub.PlanID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrPlanNotFound
		}

		_, tok, err := e.resolveToken(ctx, c)
		if err != nil {
			return err
		}
		reader, ok := tok.(payment.AllowanceReader)
		if !ok {
			return ErrNoAllowanceReader
		}
		allowance, err := reader.Allowance(ctx, subscriber, e.address)
		if err != nil {
			return err
		}
		out = &Capacity{
			Subscriber: subscriber,
			Spender:    e.address,
			PlanID:     p.ID,
			Price:      p.Price,
			Allowance:  allowance,
			Cycles:     allowance.Cycles(p.Price),
			NextDueAt:  sub.NextDueAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveRenewals grants the engine an allowance covering exactly cycles
// renewals of subscriber's current plan, replacing any earlier grant.
func (e *Engine) ApproveRenewals(ctx context.Context, subscriber id.Principal, cycles, expirationTick uint32) (*Capacity, error) {
	return e.grantRenewals(ctx, "approve_renewals", subscriber, cycles, expirationTick, false)
}

// IncreaseRenewals raises the engine's allowance from subscriber by the
// price of cycles more renewals.
func (e *Engine) IncreaseRenewals(ctx context.Context, subscriber id.Principal, cycles, expirationTick uint32) (*Capacity, error) {
	return e.grantRenewals(ctx, "increase_renewals", subscriber, cycles, expirationTick, true)
}

func (e *Engine) grantRenewals(ctx context.Context, op string, subscriber id.Principal, cycles, expirationTick uint32, increase bool) (*Capacity, error) {
	var out *Capacity
	err := e.invoke(ctx, op, func(ctx context.Context, c *call) error {
		if err := e.requireAuth(ctx, subscriber); err != nil {
			return err
		}
		if cycles == 0 {
			return ErrInvalidCycles
		}
		sub, err := subscription.Get(ctx, c.tx, subscriber)
		if err != nil {
			return err
		}
		if sub == nil {
			return ErrSubscriptionNotFound
		}
		if !sub.Active {
			return ErrSubscriptionCancelled
		}
		p, err := plan.Get(ctx, c.tx, sub.PlanID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrPlanNotFound
		}

		_, tok, err := e.resolveToken(ctx, c)
		if err != nil {
			return err
		}
		approver, ok := tok.(payment.Approver)
		if !ok {
			return ErrNoApprover
		}
		reader, ok := tok.(payment.AllowanceReader)
		if !ok {
			return ErrNoAllowanceReader
		}

		amount := p.Price.Multiply(int64(cycles))
		if increase {
			current, err := reader.Allowance(ctx, subscriber, e.address)
			if err != nil {
				return err
			}
			amount = amount.Add(current)
		}
		if err := approver.Approve(ctx, subscriber, e.address, amount, expirationTick); err != nil {
			return fmt.Errorf("%w: approve %s for %s: %w", ErrPaymentFailed, amount, subscriber, err)
		}

		out = &Capacity{
			Subscriber: subscriber,
			Spender:    e.address,
			PlanID:     p.ID,
			Price:      p.Price,
			Allowance:  amount,
			Cycles:     amount.Cycles(p.Price),
			NextDueAt:  sub.NextDueAt,
		}
		return subscription.Touch(ctx, c.tx, subscriber)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
