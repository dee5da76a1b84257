package subledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/subledger"
	"github.com/xraph/subledger/auth"
	"github.com/xraph/subledger/clock"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/payment"
	"github.com/xraph/subledger/payment/memtoken"
	"github.com/xraph/subledger/plan"
	"github.com/xraph/subledger/state"
	"github.com/xraph/subledger/store"
	"github.com/xraph/subledger/store/memory"
	"github.com/xraph/subledger/subscription"
	"github.com/xraph/subledger/types"
)

type fixture struct {
	ctx      context.Context
	engine   *subledger.Engine
	store    *memory.Store
	clock    *clock.Manual
	token    *memtoken.Token
	admin    id.Principal
	treasury id.Principal
}

func newFixture(t *testing.T, opts ...subledger.Option) *fixture {
	t.Helper()

	f := &fixture{
		ctx:      context.Background(),
		store:    memory.New(),
		clock:    clock.NewManual(1),
		admin:    id.NewPrincipal(),
		treasury: id.NewPrincipal(),
	}
	f.token = memtoken.New(f.clock)

	base := []subledger.Option{
		subledger.WithClock(f.clock),
		subledger.WithAuthorizer(auth.AllowAll{}),
		subledger.WithPayment(f.token),
	}
	f.engine = subledger.New(f.store, append(base, opts...)...)
	require.NoError(t, f.engine.Start(f.ctx))
	t.Cleanup(func() { _ = f.engine.Stop(f.ctx) })
	return f
}

func (f *fixture) init(t *testing.T) {
	t.Helper()
	require.NoError(t, f.engine.Init(f.ctx, f.admin, f.token.ID(), f.treasury))
}

func (f *fixture) user(t *testing.T, funds types.Amount) id.Principal {
	t.Helper()
	u := id.NewPrincipal()
	if funds > 0 {
		require.NoError(t, f.token.Mint(f.ctx, u, funds))
	}
	return u
}

func (f *fixture) balance(t *testing.T, p id.Principal) types.Amount {
	t.Helper()
	b, err := f.token.Balance(f.ctx, p)
	require.NoError(t, err)
	return b
}

func (f *fixture) createPlan(t *testing.T, planID uint32, name string, period uint32, price types.Amount) {
	t.Helper()
	_, err := f.engine.CreatePlan(f.ctx, f.admin, planID, name, period, price)
	require.NoError(t, err)
}

func TestFullSubscriptionLifecycle(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	user := f.user(t, 10_000_000)

	f.createPlan(t, 1, "Starter", 30, 1_000_000)

	p, err := f.engine.GetPlan(f.ctx, 1)
	require.NoError(t, err)
	assert.True(t, p.Active)
	assert.Equal(t, "Starter", p.Name)
	assert.Equal(t, uint32(30), p.Period)
	assert.Equal(t, types.Amount(1_000_000), p.Price)

	_, err = f.engine.Subscribe(f.ctx, user, 1)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(9_000_000), f.balance(t, user))
	assert.Equal(t, types.Amount(1_000_000), f.balance(t, f.treasury))

	sub, err := f.engine.GetSubscription(f.ctx, user)
	require.NoError(t, err)
	assert.True(t, sub.Active)
	assert.Equal(t, uint32(1), sub.PlanID)
	assert.Equal(t, uint32(30), sub.NextDueAt-sub.StartedAt)

	_, err = f.engine.Renew(f.ctx, user)
	assert.ErrorIs(t, err, subledger.ErrRenewTooEarly)

	f.clock.Set(sub.NextDueAt)
	require.NoError(t, f.token.Approve(f.ctx, user, f.engine.Address(), 1_000_000, 1_000_000))
	_, err = f.engine.Renew(f.ctx, user)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(8_000_000), f.balance(t, user))
	assert.Equal(t, types.Amount(2_000_000), f.balance(t, f.treasury))

	sub, err = f.engine.GetSubscription(f.ctx, user)
	require.NoError(t, err)
	assert.Equal(t, uint32(60), sub.NextDueAt-sub.StartedAt)

	_, err = f.engine.Cancel(f.ctx, user)
	require.NoError(t, err)
	sub, err = f.engine.GetSubscription(f.ctx, user)
	require.NoError(t, err)
	assert.False(t, sub.Active)
	assert.Equal(t, subscription.StatusCancelled, sub.Status())
}

func TestInit(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreatePlan(f.ctx, f.admin, 1, "x", 10, 10)
	assert.ErrorIs(t, err, subledger.ErrNotInitialized)

	f.init(t)
	err = f.engine.Init(f.ctx, f.admin, f.token.ID(), f.treasury)
	assert.ErrorIs(t, err, subledger.ErrAlreadyInitialized)

	cfg, err := f.engine.Configuration(f.ctx)
	require.NoError(t, err)
	assert.True(t, cfg.Admin.Equal(f.admin))
	assert.True(t, cfg.Treasury.Equal(f.treasury))
	assert.True(t, cfg.PaymentToken.Equal(f.token.ID()))
}

func TestInitRequiresAdminAuth(t *testing.T) {
	f := newFixture(t, subledger.WithAuthorizer(auth.ContextAuthorizer{}))

	err := f.engine.Init(f.ctx, f.admin, f.token.ID(), f.treasury)
	assert.ErrorIs(t, err, auth.ErrAuthRequired)
	assert.Equal(t, 0, f.store.Len())

	ctx := auth.WithPrincipal(f.ctx, f.admin)
	require.NoError(t, f.engine.Init(ctx, f.admin, f.token.ID(), f.treasury))
}

func TestCreatePlanValidation(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	f.createPlan(t, 1, "Starter", 30, 1_000_000)
	stranger := id.NewPrincipal()

	tests := []struct {
		name   string
		caller id.Principal
		planID uint32
		period uint32
		price  types.Amount
		want   error
		code   uint32
	}{
		{"non admin", stranger, 2, 30, 100, subledger.ErrUnauthorized, 3},
		{"zero period", f.admin, 2, 0, 100, subledger.ErrInvalidPeriod, 6},
		{"zero price", f.admin, 2, 30, 0, subledger.ErrInvalidPrice, 11},
		{"negative price", f.admin, 2, 30, -5, subledger.ErrInvalidPrice, 11},
		{"duplicate", f.admin, 1, 30, 100, subledger.ErrPlanAlreadyExists, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreatePlan(f.ctx, tt.caller, tt.planID, "", tt.period, tt.price)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.code, subledger.Code(err))
		})
	}

	plans, err := f.engine.ListPlans(f.ctx, 0, 50)
	require.NoError(t, err)
	assert.Len(t, plans, 1)
}

func TestSetPlanStatus(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	f.createPlan(t, 1, "Starter", 30, 1_000_000)
	user := f.user(t, 5_000_000)

	_, err := f.engine.SetPlanStatus(f.ctx, id.NewPrincipal(), 1, false)
	assert.ErrorIs(t, err, subledger.ErrUnauthorized)

	_, err = f.engine.SetPlanStatus(f.ctx, f.admin, 9, false)
	assert.ErrorIs(t, err, subledger.ErrPlanNotFound)

	p, err := f.engine.SetPlanStatus(f.ctx, f.admin, 1, false)
	require.NoError(t, err)
	assert.False(t, p.Active)
	assert.Equal(t, plan.StatusInactive, p.Status())
	assert.Equal(t, uint32(30), p.Period)
	assert.Equal(t, types.Amount(1_000_000), p.Price)

	_, err = f.engine.Subscribe(f.ctx, user, 1)
	assert.ErrorIs(t, err, subledger.ErrPlanInactive)
	assert.Equal(t, types.Amount(5_000_000), f.balance(t, user))
}

func TestReactivatedPlanAcceptsSubscriptions(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	f.createPlan(t, 1, "Starter", 30, 1_000_000)
	user := f.user(t, 5_000_000)

	_, err := f.engine.SetPlanStatus(f.ctx, f.admin, 1, false)
	require.NoError(t, err)
	_, err = f.engine.Subscribe(f.ctx, user, 1)
	require.ErrorIs(t, err, subledger.ErrPlanInactive)

	p, err := f.engine.SetPlanStatus(f.ctx, f.admin, 1, true)
	require.NoError(t, err)
	assert.True(t, p.Active)
	assert.Equal(t, plan.StatusActive, p.Status())
	assert.Equal(t, "Starter", p.Name)

	sub, err := f.engine.Subscribe(f.ctx, user, 1)
	require.NoError(t, err)
	assert.True(t, sub.Active)
	assert.Equal(t, uint32(1), sub.PlanID)
	assert.Equal(t, types.Amount(4_000_000), f.balance(t, user))
	assert.Equal(t, types.Amount(1_000_000), f.balance(t, f.treasury))
}

func TestSubscribeRules(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	f.createPlan(t, 1, "Starter", 30, 1_000_000)
	user := f.user(t, 5_000_000)

	_, err := f.engine.Subscribe(f.ctx, user, 42)
	assert.ErrorIs(t, err, subledger.ErrPlanNotFound)

	_, err = f.engine.Subscribe(f.ctx, user, 1)
	require.NoError(t, err)

	// Re-subscribing while active is rejected and charges nothing.
	_, err = f.engine.Subscribe(f.ctx, user, 1)
	assert.ErrorIs(t, err, subledger.ErrSubscriptionAlreadyExists)
	assert.Equal(t, types.Amount(4_000_000), f.balance(t, user))

	// Re-subscribing after cancel overwrites the record at the current tick.
	_, err = f.engine.Cancel(f.ctx, user)
	require.NoError(t, err)
	f.clock.Set(100)
	sub, err := f.engine.Subscribe(f.ctx, user, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), sub.StartedAt)
	assert.Equal(t, uint32(130), sub.NextDueAt)
	assert.Equal(t, types.Amount(3_000_000), f.balance(t, user))

	// Subscriber indexed only once.
	subs, err := f.engine.ListSubscribers(f.ctx, 0, 50)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestSubscribeInsufficientFundsWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	f.createPlan(t, 1, "Starter", 30, 1_000_000)
	before := f.store.Len()
	poor := f.user(t, 10)

	_, err := f.engine.Subscribe(f.ctx, poor, 1)
	require.ErrorIs(t, err, subledger.ErrPaymentFailed)
	assert.ErrorIs(t, err, payment.ErrInsufficientBalance)
	assert.Equal(t, uint32(0), subledger.Code(err))
	assert.False(t, subledger.IsRetryable(err))

	_, err = f.engine.GetSubscription(f.ctx, poor)
	assert.ErrorIs(t, err, subledger.ErrSubscriptionNotFound)
	assert.Equal(t, before, f.store.Len())
}

func TestRenewRequiresDueTickAndAllowance(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	user := f.user(t, 8_000_000)
	f.createPlan(t, 7, "Pro", 15, 2_000_000)
	_, err := f.engine.Subscribe(f.ctx, user, 7)
	require.NoError(t, err)

	_, err = f.engine.Renew(f.ctx, user)
	assert.ErrorIs(t, err, subledger.ErrRenewTooEarly)
	assert.True(t, subledger.IsRetryable(err))

	sub, err := f.engine.GetSubscription(f.ctx, user)
	require.NoError(t, err)
	f.clock.Set(sub.NextDueAt)

	// Without allowance the delegated charge is declined.
	_, err = f.engine.Renew(f.ctx, user)
	assert.ErrorIs(t, err, subledger.ErrPaymentFailed)
	assert.ErrorIs(t, err, payment.ErrInsufficientAllowance)

	require.NoError(t, f.token.Approve(f.ctx, user, f.engine.Address(), 2_000_000, 1_000_000))
	userBefore, treasuryBefore := f.balance(t, user), f.balance(t, f.treasury)
	_, err = f.engine.Renew(f.ctx, user)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(2_000_000), userBefore-f.balance(t, user))
	assert.Equal(t, types.Amount(2_000_000), f.balance(t, f.treasury)-treasuryBefore)
}

func TestRenewIsAdditive(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	user := f.user(t, 10_000_000)
	f.createPlan(t, 1, "Starter", 30, 1_000_000)
	require.NoError(t, f.token.Approve(f.ctx, user, f.engine.Address(), 5_000_000, 1_000_000))

	sub, err := f.engine.Subscribe(f.ctx, user, 1)
	require.NoError(t, err)
	start := sub.StartedAt

	// Renewing late catches up one period at a time.
	f.clock.Set(start + 100)
	for _, want := range []uint32{60, 90, 120} {
		sub, err = f.engine.Renew(f.ctx, user)
		require.NoError(t, err)
		assert.Equal(t, start+want, sub.NextDueAt)
	}
	_, err = f.engine.Renew(f.ctx, user)
	assert.ErrorIs(t, err, subledger.ErrRenewTooEarly)
}

func TestRenewStateChecks(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	user := f.user(t, 10_000_000)
	f.createPlan(t, 1, "Starter", 30, 1_000_000)

	_, err := f.engine.Renew(f.ctx, user)
	assert.ErrorIs(t, err, subledger.ErrSubscriptionNotFound)

	_, err = f.engine.Subscribe(f.ctx, user, 1)
	require.NoError(t, err)
	f.clock.Advance(30)

	_, err = f.engine.SetPlanStatus(f.ctx, f.admin, 1, false)
	require.NoError(t, err)
	_, err = f.engine.Renew(f.ctx, user)
	assert.ErrorIs(t, err, subledger.ErrPlanInactive)

	_, err = f.engine.Cancel(f.ctx, user)
	require.NoError(t, err)
	_, err = f.engine.Renew(f.ctx, user)
	assert.ErrorIs(t, err, subledger.ErrSubscriptionCancelled)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	user := f.user(t, 10_000_000)
	f.createPlan(t, 1, "Starter", 30, 1_000_000)

	_, err := f.engine.Cancel(f.ctx, user)
	assert.ErrorIs(t, err, subledger.ErrSubscriptionNotFound)

	_, err = f.engine.Subscribe(f.ctx, user, 1)
	require.NoError(t, err)
	_, err = f.engine.Cancel(f.ctx, user)
	require.NoError(t, err)

	// Cancelling twice is allowed.
	sub, err := f.engine.Cancel(f.ctx, user)
	require.NoError(t, err)
	assert.False(t, sub.Active)
}

func TestListingIsPaginated(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	f.createPlan(t, 1, "Starter", 30, 1_000_000)
	f.createPlan(t, 2, "Growth", 30, 2_000_000)
	f.createPlan(t, 3, "Scale", 30, 3_000_000)

	page, err := f.engine.ListPlans(f.ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint32(1), page[0].ID)
	assert.Equal(t, uint32(2), page[1].ID)

	page, err = f.engine.ListPlans(f.ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, uint32(3), page[0].ID)

	users := []id.Principal{f.user(t, 5_000_000), f.user(t, 5_000_000), f.user(t, 5_000_000)}
	for i, u := range users {
		_, err := f.engine.Subscribe(f.ctx, u, uint32(i+1))
		require.NoError(t, err)
	}

	subscribers, err := f.engine.ListSubscribers(f.ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, subscribers, 2)
	assert.True(t, subscribers[0].Equal(users[1]))
	assert.True(t, subscribers[1].Equal(users[2]))

	subs, err := f.engine.ListSubscriptions(f.ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, uint32(1), subs[0].PlanID)
	assert.Equal(t, uint32(2), subs[1].PlanID)
}

func TestListingEdges(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	f.createPlan(t, 1, "Starter", 30, 1_000_000)

	_, err := f.engine.ListPlans(f.ctx, 0, 51)
	assert.ErrorIs(t, err, subledger.ErrInvalidPageSize)
	assert.Equal(t, uint32(13), subledger.Code(err))

	_, err = f.engine.ListSubscriptions(f.ctx, 0, 51)
	assert.ErrorIs(t, err, subledger.ErrInvalidPageSize)

	page, err := f.engine.ListPlans(f.ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, page)

	page, err = f.engine.ListPlans(f.ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page)

	page, err = f.engine.ListPlans(f.ctx, ^uint32(0), 50)
	require.NoError(t, err)
	assert.Empty(t, page)

	subs, err := f.engine.ListSubscribers(f.ctx, 0, 50)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestLifetimeExtension(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	f.createPlan(t, 1, "Starter", 30, 1_000_000)

	e, err := f.store.Get(f.ctx, store.ClassPersistent, state.PlanKey(1).String())
	require.NoError(t, err)
	assert.Equal(t, uint32(1)+state.DefaultExtendTo, e.LiveUntil)

	// Still more than the threshold left: reading does not extend.
	f.clock.Set(50_000)
	_, err = f.engine.GetPlan(f.ctx, 1)
	require.NoError(t, err)
	e, err = f.store.Get(f.ctx, store.ClassPersistent, state.PlanKey(1).String())
	require.NoError(t, err)
	assert.Equal(t, uint32(1)+state.DefaultExtendTo, e.LiveUntil)

	// Below the threshold: reading extends to now + 200,000.
	f.clock.Set(150_000)
	_, err = f.engine.GetPlan(f.ctx, 1)
	require.NoError(t, err)
	e, err = f.store.Get(f.ctx, store.ClassPersistent, state.PlanKey(1).String())
	require.NoError(t, err)
	assert.Equal(t, uint32(150_000)+state.DefaultExtendTo, e.LiveUntil)
}

func TestLapsedConfigurationCannotBeReinitialized(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	f.createPlan(t, 1, "Starter", 30, 1_000_000)

	// Nothing touched the ledger for longer than its lifetime.
	f.clock.Set(1 + state.DefaultExtendTo + 1)
	attacker := id.NewPrincipal()

	err := f.engine.Init(f.ctx, attacker, f.token.ID(), attacker)
	assert.ErrorIs(t, err, subledger.ErrArchived)
	assert.Zero(t, subledger.Code(err))
	assert.False(t, subledger.IsRetryable(err))

	_, err = f.engine.CreatePlan(f.ctx, attacker, 1, "Hijack", 1, 1)
	assert.ErrorIs(t, err, subledger.ErrArchived)
	_, err = f.engine.GetPlan(f.ctx, 1)
	assert.ErrorIs(t, err, subledger.ErrArchived)
	_, err = f.engine.Configuration(f.ctx)
	assert.ErrorIs(t, err, subledger.ErrArchived)

	// Evicting the entries does not free them either.
	_, err = f.store.Purge(f.ctx, 1+state.DefaultExtendTo+1)
	require.NoError(t, err)
	err = f.engine.Init(f.ctx, attacker, f.token.ID(), attacker)
	assert.ErrorIs(t, err, subledger.ErrArchived)
	_, err = f.store.Get(f.ctx, store.ClassPersistent, state.PlanKey(1).String())
	assert.ErrorIs(t, err, store.ErrArchived)
}

func TestLapsedPlanCannotBeRecreated(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	f.createPlan(t, 1, "Starter", 30, 1_000_000)

	// Creating another plan keeps the configuration alive; plan 1 is left alone.
	f.clock.Set(150_000)
	f.createPlan(t, 2, "Pro", 30, 2_000_000)

	f.clock.Set(1 + state.DefaultExtendTo + 1)
	_, err := f.engine.CreatePlan(f.ctx, f.admin, 1, "Hijack", 30, 1)
	assert.ErrorIs(t, err, subledger.ErrArchived)
	assert.NotErrorIs(t, err, subledger.ErrPlanAlreadyExists)

	// Plan 2 is still live and untouched by the failed call.
	p, err := f.engine.GetPlan(f.ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Pro", p.Name)

	// The plan counter was not reset: index slot 0 still names plan 1.
	e, err := f.store.Get(f.ctx, store.ClassInstance, state.PlanCountKey().String())
	require.NoError(t, err)
	assert.Equal(t, "2", string(e.Value))
}

func TestRenewalCapacity(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	user := f.user(t, 10_000_000)
	f.createPlan(t, 1, "Starter", 30, 2_000_000)
	_, err := f.engine.Subscribe(f.ctx, user, 1)
	require.NoError(t, err)

	require.NoError(t, f.token.Approve(f.ctx, user, f.engine.Address(), 5_000_000, 1_000_000))
	capacity, err := f.engine.RenewalCapacity(f.ctx, user)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(5_000_000), capacity.Allowance)
	assert.Equal(t, int64(2), capacity.Cycles)
	assert.True(t, capacity.Spender.Equal(f.engine.Address()))

	_, err = f.engine.RenewalCapacity(f.ctx, id.NewPrincipal())
	assert.ErrorIs(t, err, subledger.ErrSubscriptionNotFound)
}

func TestApproveAndIncreaseRenewals(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	user := f.user(t, 10_000_000)
	f.createPlan(t, 1, "Starter", 30, 2_000_000)

	_, err := f.engine.ApproveRenewals(f.ctx, user, 2, 1_000)
	assert.ErrorIs(t, err, subledger.ErrSubscriptionNotFound)

	sub, err := f.engine.Subscribe(f.ctx, user, 1)
	require.NoError(t, err)

	_, err = f.engine.ApproveRenewals(f.ctx, user, 0, 1_000)
	assert.ErrorIs(t, err, subledger.ErrInvalidCycles)
	assert.True(t, subledger.IsValidation(err))

	capacity, err := f.engine.ApproveRenewals(f.ctx, user, 2, 1_000)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(4_000_000), capacity.Allowance)
	assert.Equal(t, int64(2), capacity.Cycles)

	capacity, err = f.engine.IncreaseRenewals(f.ctx, user, 1, 1_000)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(6_000_000), capacity.Allowance)
	assert.Equal(t, int64(3), capacity.Cycles)

	allowance, err := f.token.Allowance(f.ctx, user, f.engine.Address())
	require.NoError(t, err)
	assert.Equal(t, types.Amount(6_000_000), allowance)

	capacity, err = f.engine.ApproveRenewals(f.ctx, user, 1, 1_000)
	require.NoError(t, err)
	assert.Equal(t, int64(1), capacity.Cycles)

	f.clock.Set(sub.NextDueAt)
	_, err = f.engine.Renew(f.ctx, user)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(6_000_000), f.balance(t, user))

	_, err = f.engine.ApproveRenewals(f.ctx, user, 1, sub.NextDueAt-1)
	assert.ErrorIs(t, err, subledger.ErrPaymentFailed)

	_, err = f.engine.Cancel(f.ctx, user)
	require.NoError(t, err)
	_, err = f.engine.IncreaseRenewals(f.ctx, user, 1, 1_000)
	assert.ErrorIs(t, err, subledger.ErrSubscriptionCancelled)
}

type transferOnly struct{ payment.Token }

func TestApproveRenewalsNeedsApprover(t *testing.T) {
	var f *fixture
	f = newFixture(t, subledger.WithPaymentResolver(payment.ResolverFunc(
		func(context.Context, id.TokenID) (payment.Token, error) {
			return transferOnly{f.token}, nil
		})))
	f.init(t)
	user := f.user(t, 10_000_000)
	f.createPlan(t, 1, "Starter", 30, 2_000_000)
	_, err := f.engine.Subscribe(f.ctx, user, 1)
	require.NoError(t, err)

	_, err = f.engine.ApproveRenewals(f.ctx, user, 1, 1_000)
	assert.ErrorIs(t, err, subledger.ErrNoApprover)

	_, err = f.engine.RenewalCapacity(f.ctx, user)
	assert.ErrorIs(t, err, subledger.ErrNoAllowanceReader)
}

func TestChargesUseInitializedToken(t *testing.T) {
	f := newFixture(t)
	other := id.NewTokenID()
	require.NoError(t, f.engine.Init(f.ctx, f.admin, other, f.treasury))
	f.createPlan(t, 1, "Starter", 30, 1_000_000)
	user := f.user(t, 5_000_000)

	_, err := f.engine.Subscribe(f.ctx, user, 1)
	assert.ErrorIs(t, err, subledger.ErrPaymentFailed)
	assert.ErrorIs(t, err, payment.ErrUnknownToken)
	assert.False(t, subledger.IsRetryable(err))

	// Nothing was charged through the registered ledger and nothing was written.
	assert.Equal(t, types.Amount(5_000_000), f.balance(t, user))
	_, err = f.engine.GetSubscription(f.ctx, user)
	assert.ErrorIs(t, err, subledger.ErrSubscriptionNotFound)

	_, err = f.engine.RenewalCapacity(f.ctx, user)
	assert.ErrorIs(t, err, subledger.ErrSubscriptionNotFound)
}

func TestPaymentResolver(t *testing.T) {
	clk := clock.NewManual(1)
	primary, secondary := memtoken.New(clk), memtoken.New(clk)
	ledgers := payment.NewLedgers(primary, secondary)

	ctx := context.Background()
	engine := subledger.New(memory.New(),
		subledger.WithClock(clk),
		subledger.WithAuthorizer(auth.AllowAll{}),
		subledger.WithPaymentResolver(ledgers),
	)
	admin, treasury, user := id.NewPrincipal(), id.NewPrincipal(), id.NewPrincipal()
	require.NoError(t, engine.Init(ctx, admin, secondary.ID(), treasury))
	_, err := engine.CreatePlan(ctx, admin, 1, "Starter", 30, 1_000)
	require.NoError(t, err)
	require.NoError(t, primary.Mint(ctx, user, 10_000))
	require.NoError(t, secondary.Mint(ctx, user, 10_000))

	_, err = engine.Subscribe(ctx, user, 1)
	require.NoError(t, err)

	got, err := secondary.Balance(ctx, treasury)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(1_000), got)
	got, err = primary.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(10_000), got)

	_, err = ledgers.Resolve(ctx, id.NewTokenID())
	assert.ErrorIs(t, err, payment.ErrUnknownToken)
}

func TestAddressOption(t *testing.T) {
	addr := id.NewPrincipal()
	f := newFixture(t, subledger.WithAddress(addr))
	assert.True(t, f.engine.Address().Equal(addr))
}

type hookRecorder struct {
	mu     sync.Mutex
	events []string
}

func (h *hookRecorder) Name() string { return "hooks" }

func (h *hookRecorder) add(ev string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *hookRecorder) OnPlanCreated(context.Context, *plan.Plan) error {
	h.add("plan_created")
	return nil
}

func (h *hookRecorder) OnSubscribed(context.Context, *subscription.Subscription, *plan.Plan) error {
	h.add("subscribed")
	return nil
}

func (h *hookRecorder) OnCharged(_ context.Context, c payment.Charge) error {
	h.add("charged:" + string(c.Mode))
	return nil
}

func (h *hookRecorder) OnRejected(_ context.Context, op string, _ error) error {
	h.add("rejected:" + op)
	return errors.New("ignored")
}

func TestPluginEventsFollowCommit(t *testing.T) {
	hooks := &hookRecorder{}
	f := newFixture(t, subledger.WithPlugin(hooks))
	f.init(t)
	f.createPlan(t, 1, "Starter", 30, 1_000_000)

	_, err := f.engine.Subscribe(f.ctx, f.user(t, 0), 1)
	require.Error(t, err)

	_, err = f.engine.Subscribe(f.ctx, f.user(t, 5_000_000), 1)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"plan_created",
		"rejected:subscribe",
		"charged:direct",
		"subscribed",
	}, hooks.events)
}
