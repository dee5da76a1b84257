package state_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/state"
	"github.com/xraph/subledger/store"
	"github.com/xraph/subledger/store/memory"
)

func TestKeyStrings(t *testing.T) {
	p := id.NewPrincipal()

	tests := []struct {
		key   state.Key
		name  string
		class store.Class
	}{
		{state.AdminKey(), "admin", store.ClassInstance},
		{state.PaymentTokenKey(), "payment_token", store.ClassInstance},
		{state.TreasuryKey(), "treasury", store.ClassInstance},
		{state.PlanCountKey(), "plan_count", store.ClassInstance},
		{state.SubscriberCountKey(), "subscriber_count", store.ClassInstance},
		{state.PlanKey(7), "plan/7", store.ClassPersistent},
		{state.PlanIndexKey(0), "plan_index/0", store.ClassPersistent},
		{state.SubscriberIndexKey(3), "subscriber_index/3", store.ClassPersistent},
		{state.SubscriberSeenKey(p), "subscriber_seen/" + p.String(), store.ClassPersistent},
		{state.SubscriptionKey(p), "sub/" + p.String(), store.ClassPersistent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.key.String())
			assert.Equal(t, tt.class, tt.key.Class())
		})
	}
}

func TestPolicyExtend(t *testing.T) {
	p := state.Policy{Threshold: 100_000, ExtendTo: 200_000}

	// Remaining lifetime below threshold: extended.
	assert.Equal(t, uint32(200_010), p.Extend(10, 50_000))
	// Exactly at threshold: unchanged.
	assert.Equal(t, uint32(100_010), p.Extend(10, 100_010))
	// Plenty left: unchanged.
	assert.Equal(t, uint32(150_000), p.Extend(0, 150_000))
	// Saturates at the top of the tick range.
	assert.Equal(t, ^uint32(0), p.Extend(^uint32(0)-5, ^uint32(0)-1))
}

func TestTxSetGetCommit(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()

	tx := state.Begin(backend, 100, state.DefaultPolicies())
	require.NoError(t, tx.Set(ctx, state.PlanKey(1), map[string]int{"period": 30}))
	require.NoError(t, tx.Set(ctx, state.PlanCountKey(), uint32(1)))

	// Visible inside the Tx before commit.
	count, ok, err := state.Read[uint32](ctx, tx, state.PlanCountKey())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint32(1), count)

	// Not visible in the backend yet.
	assert.Equal(t, 0, backend.Len())

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, 2, backend.Len())

	// Instance entries are bumped on write; persistent ones start at the
	// initial lifetime.
	e, err := backend.Get(ctx, store.ClassInstance, "plan_count")
	require.NoError(t, err)
	assert.Equal(t, uint32(100+state.DefaultExtendTo), e.LiveUntil)

	e, err = backend.Get(ctx, store.ClassPersistent, "plan/1")
	require.NoError(t, err)
	assert.Equal(t, uint32(100+state.DefaultInitial), e.LiveUntil)
}

func TestTxAbandonDiscards(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()

	tx := state.Begin(backend, 0, state.DefaultPolicies())
	require.NoError(t, tx.Set(ctx, state.AdminKey(), id.NewPrincipal()))
	assert.Equal(t, 1, tx.Pending())

	// Never committed.
	assert.Equal(t, 0, backend.Len())
}

func TestTxBump(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	require.NoError(t, backend.Apply(ctx, 0, []store.Mutation{
		{Class: store.ClassPersistent, Key: "plan/1", Value: []byte(`{}`), LiveUntil: 1_000},
	}))

	tx := state.Begin(backend, 500, state.DefaultPolicies())
	require.NoError(t, tx.Bump(ctx, state.PlanKey(1)))
	// Bumping an absent key is a no-op.
	require.NoError(t, tx.Bump(ctx, state.PlanKey(2)))

	live, ok, err := tx.LiveUntil(ctx, state.PlanKey(1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint32(200_500), live)
	assert.Equal(t, 1, tx.Pending())

	require.NoError(t, tx.Commit(ctx))
	e, err := backend.Get(ctx, store.ClassPersistent, "plan/1")
	require.NoError(t, err)
	assert.Equal(t, uint32(200_500), e.LiveUntil)
	assert.Equal(t, `{}`, string(e.Value))
}

func TestTxLapsedEntriesAreArchived(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	require.NoError(t, backend.Apply(ctx, 0, []store.Mutation{
		{Class: store.ClassPersistent, Key: "plan/1", Value: []byte(`{}`), LiveUntil: 99},
		{Class: store.ClassPersistent, Key: "plan/2", Value: []byte(`{}`), LiveUntil: 100},
		{Class: store.ClassInstance, Key: "admin", Value: []byte(`"x"`), LiveUntil: 50},
	}))

	tx := state.Begin(backend, 100, state.DefaultPolicies())

	// Lapsed but not yet evicted.
	_, err := tx.Has(ctx, state.PlanKey(1))
	assert.ErrorIs(t, err, state.ErrArchived)
	assert.ErrorIs(t, tx.Set(ctx, state.PlanKey(1), struct{}{}), state.ErrArchived)
	assert.ErrorIs(t, tx.Bump(ctx, state.PlanKey(1)), state.ErrArchived)

	// Live through tick 100 inclusive.
	ok, err := tx.Has(ctx, state.PlanKey(2))
	require.NoError(t, err)
	assert.True(t, ok)

	// Never written.
	ok, err = tx.Has(ctx, state.PlanKey(3))
	require.NoError(t, err)
	assert.False(t, ok)

	// Evicted by the backend.
	_, err = backend.Purge(ctx, 100)
	require.NoError(t, err)
	tx = state.Begin(backend, 100, state.DefaultPolicies())
	_, _, err = state.Read[string](ctx, tx, state.AdminKey())
	assert.ErrorIs(t, err, state.ErrArchived)
	assert.ErrorIs(t, tx.Set(ctx, state.AdminKey(), "attacker"), state.ErrArchived)
	assert.Zero(t, tx.Pending())
}

func TestTxDone(t *testing.T) {
	ctx := context.Background()
	tx := state.Begin(memory.New(), 0, state.DefaultPolicies())
	require.NoError(t, tx.Commit(ctx))

	assert.ErrorIs(t, tx.Commit(ctx), state.ErrTxDone)
	_, err := tx.Has(ctx, state.AdminKey())
	assert.ErrorIs(t, err, state.ErrTxDone)
}

type failingStore struct {
	*memory.Store
}

func (failingStore) Apply(context.Context, uint32, []store.Mutation) error {
	return errors.New("disk full")
}

func TestTxCommitFailure(t *testing.T) {
	ctx := context.Background()
	backend := failingStore{memory.New()}

	tx := state.Begin(backend, 0, state.DefaultPolicies())
	require.NoError(t, tx.Set(ctx, state.PlanCountKey(), uint32(1)))

	err := tx.Commit(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, backend.Len())
}
