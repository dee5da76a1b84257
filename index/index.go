// Package index maintains the dense, insertion-ordered reverse indexes that
// make plans and subscribers enumerable over a key-value store.
//
// Each index is a counter plus one entry per slot 0..count-1. Slots are never
// reused or removed.
package index

import (
	"context"
	"math"

	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/state"
)

// MaxPageSize is the largest page a listing may request.
const MaxPageSize uint32 = 50

// Window returns the half-open slot range [start, end) for a page of limit
// entries beginning at offset, clamped to count. ok is false when the page
// is empty.
func Window(offset, limit, count uint32) (start, end uint32, ok bool) {
	if limit == 0 || offset >= count {
		return 0, 0, false
	}
	end = math.MaxUint32
	if offset <= math.MaxUint32-limit {
		end = offset + limit
	}
	if end > count {
		end = count
	}
	return offset, end, true
}

// Count reads a counter; an absent counter is zero.
func Count(ctx context.Context, tx *state.Tx, counter state.Key) (uint32, error) {
	n, _, err := state.Read[uint32](ctx, tx, counter)
	return n, err
}

// PlanCount returns the number of indexed plans.
func PlanCount(ctx context.Context, tx *state.Tx) (uint32, error) {
	return Count(ctx, tx, state.PlanCountKey())
}

// SubscriberCount returns the number of distinct principals ever indexed.
func SubscriberCount(ctx context.Context, tx *state.Tx) (uint32, error) {
	return Count(ctx, tx, state.SubscriberCountKey())
}

// AppendPlan records planID in the next plan slot and advances the counter.
func AppendPlan(ctx context.Context, tx *state.Tx, planID uint32) error {
	n, err := PlanCount(ctx, tx)
	if err != nil {
		return err
	}
	slot := state.PlanIndexKey(n)
	if err := tx.Set(ctx, slot, planID); err != nil {
		return err
	}
	if err := tx.Bump(ctx, slot); err != nil {
		return err
	}
	return tx.Set(ctx, state.PlanCountKey(), n+1)
}

// IndexSubscriber records p in the next subscriber slot unless p was
// indexed before, in which case only its marker's lifetime is extended.
// It reports whether a new slot was used.
func IndexSubscriber(ctx context.Context, tx *state.Tx, p id.Principal) (bool, error) {
	seen := state.SubscriberSeenKey(p)
	ok, err := tx.Has(ctx, seen)
	if err != nil {
		return false, err
	}
	if ok {
		return false, tx.Bump(ctx, seen)
	}

	n, err := SubscriberCount(ctx, tx)
	if err != nil {
		return false, err
	}
	slot := state.SubscriberIndexKey(n)
	if err := tx.Set(ctx, slot, p); err != nil {
		return false, err
	}
	if err := tx.Bump(ctx, slot); err != nil {
		return false, err
	}
	if err := tx.Set(ctx, seen, true); err != nil {
		return false, err
	}
	if err := tx.Bump(ctx, seen); err != nil {
		return false, err
	}
	return true, tx.Set(ctx, state.SubscriberCountKey(), n+1)
}

// PlanAt returns the plan id in slot i and extends the slot's lifetime.
// ok is false for an absent slot.
func PlanAt(ctx context.Context, tx *state.Tx, i uint32) (uint32, bool, error) {
	k := state.PlanIndexKey(i)
	planID, ok, err := state.Read[uint32](ctx, tx, k)
	if err != nil || !ok {
		return 0, false, err
	}
	return planID, true, tx.Bump(ctx, k)
}

// SubscriberAt returns the principal in slot i and extends the slot's
// lifetime. ok is false for an absent slot.
func SubscriberAt(ctx context.Context, tx *state.Tx, i uint32) (id.Principal, bool, error) {
	k := state.SubscriberIndexKey(i)
	p, ok, err := state.Read[id.Principal](ctx, tx, k)
	if err != nil || !ok {
		return id.Nil, false, err
	}
	return p, true, tx.Bump(ctx, k)
}
