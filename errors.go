package subledger

import (
	"errors"

	"github.com/xraph/subledger/auth"
	"github.com/xraph/subledger/payment"
	"github.com/xraph/subledger/state"
)

// Sentinel errors returned by ledger operations. A failed operation writes
// nothing, whatever the error.
var (
	// Configuration errors
	ErrAlreadyInitialized = errors.New("subledger: already initialized")
	ErrNotInitialized     = errors.New("subledger: not initialized")
	ErrUnauthorized       = errors.New("subledger: unauthorized")

	// Plan errors
	ErrPlanAlreadyExists = errors.New("subledger: plan already exists")
	ErrPlanNotFound      = errors.New("subledger: plan not found")
	ErrInvalidPeriod     = errors.New("subledger: invalid period")
	ErrPlanInactive      = errors.New("subledger: plan is inactive")
	ErrInvalidPrice      = errors.New("subledger: invalid price")

	// Subscription errors
	ErrSubscriptionAlreadyExists = errors.New("subledger: subscription already exists")
	ErrSubscriptionNotFound      = errors.New("subledger: subscription not found")
	ErrSubscriptionCancelled     = errors.New("subledger: subscription is cancelled")
	ErrRenewTooEarly             = errors.New("subledger: renewal is not due yet")

	// Listing errors
	ErrInvalidPageSize = errors.New("subledger: invalid page size")
)

// Errors outside the numbered taxonomy.
var (
	// ErrPaymentFailed wraps a refusal or failure of the payment token.
	ErrPaymentFailed = errors.New("subledger: payment failed")
	// ErrTickOverflow is returned when a due tick would not fit the tick range.
	ErrTickOverflow = errors.New("subledger: tick overflow")
	// ErrNoAllowanceReader is returned when the payment token cannot report allowances.
	ErrNoAllowanceReader = errors.New("subledger: payment token does not expose allowances")
	// ErrNoApprover is returned when the payment token cannot grant allowances.
	ErrNoApprover = errors.New("subledger: payment token does not accept approvals")
	// ErrInvalidCycles is returned when an allowance grant covers no renewals.
	ErrInvalidCycles = errors.New("subledger: renewal cycles must be positive")
	// ErrArchived is returned when a call touches an entry whose lifetime
	// ended. The call aborts; nothing is re-created in its place.
	ErrArchived = state.ErrArchived
)

// codes keeps the stable numeric identifiers clients rely on.
var codes = []struct {
	err  error
	code uint32
}{
	{ErrAlreadyInitialized, 1},
	{ErrNotInitialized, 2},
	{ErrUnauthorized, 3},
	{ErrPlanAlreadyExists, 4},
	{ErrPlanNotFound, 5},
	{ErrInvalidPeriod, 6},
	{ErrPlanInactive, 7},
	{ErrSubscriptionAlreadyExists, 8},
	{ErrSubscriptionNotFound, 9},
	{ErrSubscriptionCancelled, 10},
	{ErrInvalidPrice, 11},
	{ErrRenewTooEarly, 12},
	{ErrInvalidPageSize, 13},
}

// Code returns the numeric code of a ledger error, or 0 if err is not one.
func Code(err error) uint32 {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return 0
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}

// IsConflict returns true if the error reports an existing entity.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyInitialized) ||
		errors.Is(err, ErrPlanAlreadyExists) ||
		errors.Is(err, ErrSubscriptionAlreadyExists)
}

// IsValidation returns true if the error rejects a caller-supplied argument.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrInvalidPageSize) ||
		errors.Is(err, ErrInvalidCycles)
}

// IsAuthError returns true if the error is an authorization failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, auth.ErrAuthRequired) ||
		errors.Is(err, auth.ErrInvalidToken)
}

// IsRetryable returns true if the same call may succeed later unchanged.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRenewTooEarly) {
		return true
	}
	if errors.Is(err, ErrPaymentFailed) {
		return !payment.IsDeclined(err) && !errors.Is(err, payment.ErrUnknownToken)
	}
	return false
}
