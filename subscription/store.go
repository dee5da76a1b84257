package subscription

import (
	"context"

	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/state"
)

// Get loads the record of subscriber. A missing record yields (nil, nil).
func Get(ctx context.Context, tx *state.Tx, subscriber id.Principal) (*Subscription, error) {
	var s Subscription
	ok, err := tx.Get(ctx, state.SubscriptionKey(subscriber), &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

// Put writes s and extends its lifetime.
func Put(ctx context.Context, tx *state.Tx, s *Subscription) error {
	if err := tx.Set(ctx, state.SubscriptionKey(s.Subscriber), s); err != nil {
		return err
	}
	return Touch(ctx, tx, s.Subscriber)
}

// Touch extends the lifetime of the stored record.
func Touch(ctx context.Context, tx *state.Tx, subscriber id.Principal) error {
	return tx.Bump(ctx, state.SubscriptionKey(subscriber))
}
