// Package payment defines the token-ledger collaborator the subscription
// engine charges through.
//
// Two authorization modes are supported. Transfer moves funds the sender has
// authorized for this call. TransferFrom moves funds under an allowance the
// owner granted to spender ahead of time.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/types"
)

var (
	ErrInsufficientBalance   = errors.New("payment: insufficient balance")
	ErrInsufficientAllowance = errors.New("payment: insufficient allowance")
	ErrAllowanceExpired      = errors.New("payment: allowance expired")
	ErrInvalidAmount         = errors.New("payment: amount must be positive")

	// ErrUnknownToken is returned by a Resolver that has no ledger for the
	// requested token identifier.
	ErrUnknownToken = errors.New("payment: unknown token")
)

// Token is the fund-movement interface of a payment-token ledger.
type Token interface {
	// Transfer moves amount from from to to.
	Transfer(ctx context.Context, from, to id.Principal, amount types.Amount) error
	// TransferFrom moves amount from from to to, debiting the allowance from
	// granted to spender.
	TransferFrom(ctx context.Context, spender, from, to id.Principal, amount types.Amount) error
}

// Ledger is a Token that knows its own identifier.
type Ledger interface {
	Token
	ID() id.TokenID
}

// Resolver finds the token ledger for the identifier a ledger was
// initialized with.
type Resolver interface {
	Resolve(ctx context.Context, token id.TokenID) (Token, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, token id.TokenID) (Token, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, token id.TokenID) (Token, error) {
	return f(ctx, token)
}

// Ledgers is a Resolver over a fixed set of token ledgers, keyed by ID.
type Ledgers struct {
	mu      sync.RWMutex
	ledgers map[string]Ledger
}

// NewLedgers returns a Resolver serving each of ls under its own ID.
func NewLedgers(ls ...Ledger) *Ledgers {
	r := &Ledgers{ledgers: make(map[string]Ledger, len(ls))}
	for _, l := range ls {
		r.Add(l)
	}
	return r
}

// Add registers l, replacing any ledger with the same ID.
func (r *Ledgers) Add(l Ledger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledgers[l.ID().String()] = l
}

// Resolve returns the ledger registered under token, or ErrUnknownToken.
func (r *Ledgers) Resolve(_ context.Context, token id.TokenID) (Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.ledgers[token.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	return l, nil
}

// AllowanceReader is implemented by tokens that expose granted allowances.
type AllowanceReader interface {
	Allowance(ctx context.Context, from, spender id.Principal) (types.Amount, error)
}

// Approver is implemented by tokens that accept allowance grants. The
// allowance lapses after expirationTick.
type Approver interface {
	Approve(ctx context.Context, from, spender id.Principal, amount types.Amount, expirationTick uint32) error
}

// BalanceReader is implemented by tokens that expose balances.
type BalanceReader interface {
	Balance(ctx context.Context, p id.Principal) (types.Amount, error)
}

// Minter is implemented by tokens that can issue new funds.
type Minter interface {
	Mint(ctx context.Context, p id.Principal, amount types.Amount) error
}

// IsDeclined reports whether err is a refusal by the token ledger rather
// than an infrastructure failure.
func IsDeclined(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInsufficientAllowance) ||
		errors.Is(err, ErrAllowanceExpired) ||
		errors.Is(err, ErrInvalidAmount)
}

// Mode names the authorization mode a charge was made under.
type Mode string

const (
	ModeDirect    Mode = "direct"
	ModeDelegated Mode = "delegated"
)

// Charge describes one completed fund movement.
type Charge struct {
	Mode    Mode         `json:"mode"`
	Token   id.TokenID   `json:"token"`
	From    id.Principal `json:"from"`
	To      id.Principal `json:"to"`
	Spender id.Principal `json:"spender"`
	PlanID  uint32       `json:"plan_id"`
	Amount  types.Amount `json:"amount"`
	Tick    uint32       `json:"tick"`
}

// Execute performs c against tok using the transfer call its mode requires.
func (c Charge) Execute(ctx context.Context, tok Token) error {
	if c.Mode == ModeDelegated {
		return tok.TransferFrom(ctx, c.Spender, c.From, c.To, c.Amount)
	}
	return tok.Transfer(ctx, c.From, c.To, c.Amount)
}
