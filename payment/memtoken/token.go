// Package memtoken is an in-memory payment token with balances and
// expiring allowances.
package memtoken

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/subledger/clock"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/payment"
	"github.com/xraph/subledger/types"
)

var (
	_ payment.Ledger          = (*Token)(nil)
	_ payment.AllowanceReader = (*Token)(nil)
	_ payment.Approver        = (*Token)(nil)
	_ payment.BalanceReader   = (*Token)(nil)
	_ payment.Minter          = (*Token)(nil)
)

type allowanceKey struct {
	from, spender string
}

type allowance struct {
	amount     types.Amount
	expiration uint32
}

// Token keeps balances and allowances in memory. Allowance expiry is
// evaluated against clk.
type Token struct {
	mu sync.Mutex

	id         id.TokenID
	clk        clock.Clock
	balances   map[string]types.Amount
	allowances map[allowanceKey]allowance
}

// Option configures a Token.
type Option func(*Token)

// WithID fixes the token identifier instead of generating one, so a ledger
// initialized against it keeps resolving across restarts.
func WithID(tid id.TokenID) Option {
	return func(t *Token) {
		if !tid.IsNil() {
			t.id = tid
		}
	}
}

// New returns an empty token whose allowances expire by clk.
func New(clk clock.Clock, opts ...Option) *Token {
	t := &Token{
		id:         id.NewTokenID(),
		clk:        clk,
		balances:   make(map[string]types.Amount),
		allowances: make(map[allowanceKey]allowance),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID returns the token's identifier.
func (t *Token) ID() id.TokenID { return t.id }

// Mint credits amount to p.
func (t *Token) Mint(_ context.Context, p id.Principal, amount types.Amount) error {
	if !amount.IsPositive() {
		return payment.ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[p.String()] += amount
	return nil
}

func (t *Token) Balance(_ context.Context, p id.Principal) (types.Amount, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[p.String()], nil
}

// Approve sets the allowance from grants spender, live through
// expirationTick. It replaces any previous grant.
func (t *Token) Approve(ctx context.Context, from, spender id.Principal, amount types.Amount, expirationTick uint32) error {
	if amount.IsNegative() {
		return payment.ErrInvalidAmount
	}
	now, err := t.clk.CurrentTick(ctx)
	if err != nil {
		return err
	}
	if amount.IsPositive() && expirationTick < now {
		return fmt.Errorf("memtoken: expiration %d is before tick %d", expirationTick, now)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[allowanceKey{from.String(), spender.String()}] = allowance{amount: amount, expiration: expirationTick}
	return nil
}

// Allowance returns the live allowance; an expired grant reads as zero.
func (t *Token) Allowance(ctx context.Context, from, spender id.Principal) (types.Amount, error) {
	now, err := t.clk.CurrentTick(ctx)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.allowances[allowanceKey{from.String(), spender.String()}]
	if a.expiration < now {
		return 0, nil
	}
	return a.amount, nil
}

func (t *Token) Transfer(_ context.Context, from, to id.Principal, amount types.Amount) error {
	if !amount.IsPositive() {
		return payment.ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

func (t *Token) TransferFrom(ctx context.Context, spender, from, to id.Principal, amount types.Amount) error {
	if !amount.IsPositive() {
		return payment.ErrInvalidAmount
	}
	now, err := t.clk.CurrentTick(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := allowanceKey{from.String(), spender.String()}
	a, ok := t.allowances[key]
	switch {
	case ok && a.amount.IsPositive() && a.expiration < now:
		return payment.ErrAllowanceExpired
	case a.amount < amount:
		return fmt.Errorf("%w: have %s, need %s", payment.ErrInsufficientAllowance, a.amount, amount)
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	a.amount = a.amount.Subtract(amount)
	t.allowances[key] = a
	return nil
}

// move requires t.mu.
func (t *Token) move(from, to id.Principal, amount types.Amount) error {
	bal := t.balances[from.String()]
	if bal < amount {
		return fmt.Errorf("%w: have %s, need %s", payment.ErrInsufficientBalance, bal, amount)
	}
	t.balances[from.String()] = bal.Subtract(amount)
	t.balances[to.String()] += amount
	return nil
}
