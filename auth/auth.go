// Package auth provides the authorization collaborators that gate ledger
// calls on a principal's consent.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/subledger/id"
)

var (
	// ErrAuthRequired is returned when the principal has not authorized the call.
	ErrAuthRequired = errors.New("auth: principal authorization required")
	// ErrInvalidToken is returned for malformed, expired or badly signed tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Authorizer succeeds only if principal has authorized the current call.
type Authorizer interface {
	RequireAuth(ctx context.Context, principal id.Principal) error
}

// AuthorizerFunc adapts a plain function to Authorizer.
type AuthorizerFunc func(ctx context.Context, principal id.Principal) error

func (f AuthorizerFunc) RequireAuth(ctx context.Context, principal id.Principal) error {
	return f(ctx, principal)
}

// AllowAll accepts every principal.
type AllowAll struct{}

func (AllowAll) RequireAuth(context.Context, id.Principal) error { return nil }

type principalKey struct{}

// WithPrincipal returns a context carrying p as the authenticated caller.
func WithPrincipal(ctx context.Context, p id.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal attached by WithPrincipal.
func PrincipalFrom(ctx context.Context) (id.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(id.Principal)
	return p, ok && !p.IsNil()
}

// ContextAuthorizer accepts exactly the principal attached to the context.
type ContextAuthorizer struct{}

func (ContextAuthorizer) RequireAuth(ctx context.Context, principal id.Principal) error {
	caller, ok := PrincipalFrom(ctx)
	if !ok {
		return fmt.Errorf("%w: no authenticated caller", ErrAuthRequired)
	}
	if !caller.Equal(principal) {
		return fmt.Errorf("%w: caller %s cannot act as %s", ErrAuthRequired, caller, principal)
	}
	return nil
}
