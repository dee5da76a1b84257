// Package subledger provides a recurring-billing ledger over an expiring
// key-value store.
//
// An administrator defines plans (a price charged every period ticks),
// principals subscribe and are charged on that cadence, and anyone can page
// through plans, subscribers and subscriptions. Subledger is a library:
// embed the Engine directly, or run it behind the HTTP API in package api
// and the subledgerd daemon.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/subledger"
//	    "github.com/xraph/subledger/store/redis"
//	)
//
//	s, err := redis.New(ctx, redis.Config{Addr: "localhost:6379"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine := subledger.New(s,
//	    subledger.WithPayment(token),
//	    subledger.WithAuthorizer(auth.ContextAuthorizer{}),
//	)
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop(ctx)
//
//	_ = engine.Init(ctx, admin, tokenID, treasury)
//	_, _ = engine.CreatePlan(ctx, admin, 1, "pro", 30, 1_000_000)
//	_, _ = engine.Subscribe(ctx, user, 1)
//
// # Storage
//
// Every entry carries its own lifetime, the last tick at which it is still
// live. Configuration entries (administrator, payment token, treasury and
// the two index counters) are extended on every access. Plans,
// subscriptions and index slots are extended whenever an operation reads
// or writes them. Once fewer than 100,000 ticks remain, an access extends
// the entry to 200,000 ticks from now. Entries whose lifetime has passed
// read as absent.
//
// Each call runs against a buffered view of the store (package state) and
// commits all of its writes and extensions together, or none of them.
//
// # Payments
//
// Subscribe charges the plan price directly from the subscriber, who
// authorizes the call. Renew may be triggered by anyone once the due tick
// is reached; it charges under an allowance the subscriber granted to the
// engine's Address, and advances the due tick by exactly one period.
//
// # Errors
//
// Ledger failures are the sentinel errors in errors.go. Code maps each to
// its stable numeric code; collaborator failures are wrapped, never
// reported as one of them.
package subledger
