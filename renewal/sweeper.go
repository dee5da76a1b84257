// Package renewal triggers the renewals that have fallen due across all
// subscribers. A sweep is a one-shot, caller-initiated pass; nothing here
// schedules itself.
package renewal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/subledger/clock"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/index"
	"github.com/xraph/subledger/payment"
	"github.com/xraph/subledger/subscription"
)

// Defaults for a sweep.
const (
	DefaultPageSize uint32 = 50
	DefaultMaxPages        = 200
)

// Ledger is the subset of the engine a sweep drives.
type Ledger interface {
	ListSubscriptions(ctx context.Context, offset, limit uint32) ([]*subscription.Subscription, error)
	Renew(ctx context.Context, subscriber id.Principal) (*subscription.Subscription, error)
}

// Report summarizes one sweep.
type Report struct {
	Tick             uint32        `json:"tick"`
	Scanned          int           `json:"scanned"`
	Renewed          int           `json:"renewed"`
	SkippedAllowance int           `json:"skipped_allowance"`
	Failed           int           `json:"failed"`
	Pages            int           `json:"pages"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Sweeper renews every active subscription whose due tick has been reached.
type Sweeper struct {
	ledger   Ledger
	clock    clock.Clock
	pageSize uint32
	maxPages int
	logger   *slog.Logger
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithPageSize sets how many subscriptions are read per page, capped at
// index.MaxPageSize.
func WithPageSize(n uint32) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.pageSize = min(n, index.MaxPageSize)
		}
	}
}

// WithMaxPages bounds how many pages one sweep reads.
func WithMaxPages(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.maxPages = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// NewSweeper returns a Sweeper over l that compares due ticks with clk.
func NewSweeper(l Ledger, clk clock.Clock, opts ...Option) *Sweeper {
	s := &Sweeper{
		ledger:   l,
		clock:    clk,
		pageSize: DefaultPageSize,
		maxPages: DefaultMaxPages,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RenewDue pages through all subscriptions and renews those that are due
// at the tick observed when the sweep starts. Renewals declined for lack
// of allowance are counted separately from other failures. The sweep
// stops at the first empty page.
func (s *Sweeper) RenewDue(ctx context.Context) (*Report, error) {
	start := time.Now()
	tick, err := s.clock.CurrentTick(ctx)
	if err != nil {
		return nil, fmt.Errorf("renewal: read clock: %w", err)
	}

	r := &Report{Tick: tick}
	var offset uint32
	for r.Pages < s.maxPages {
		if err := ctx.Err(); err != nil {
			return r, err
		}

		page, err := s.ledger.ListSubscriptions(ctx, offset, s.pageSize)
		if err != nil {
			return r, fmt.Errorf("renewal: list subscriptions at %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}

		for _, sub := range page {
			r.Scanned++
			if !sub.Active || !sub.Due(tick) {
				continue
			}
			s.renew(ctx, sub, r)
		}

		offset += s.pageSize
		r.Pages++
	}

	r.Elapsed = time.Since(start)
	s.logger.Info("renewal sweep completed",
		"tick", r.Tick,
		"scanned", r.Scanned,
		"renewed", r.Renewed,
		"skipped_allowance", r.SkippedAllowance,
		"failed", r.Failed,
		"elapsed_ms", r.Elapsed.Milliseconds(),
	)
	return r, nil
}

func (s *Sweeper) renew(ctx context.Context, sub *subscription.Subscription, r *Report) {
	_, err := s.ledger.Renew(ctx, sub.Subscriber)
	switch {
	case err == nil:
		r.Renewed++
	case IsAllowanceError(err):
		r.SkippedAllowance++
		s.logger.Debug("renewal skipped: allowance",
			"subscriber", sub.Subscriber.String(),
			"error", err,
		)
	default:
		r.Failed++
		s.logger.Warn("renewal failed",
			"subscriber", sub.Subscriber.String(),
			"plan_id", sub.PlanID,
			"error", err,
		)
	}
}

// IsAllowanceError reports whether err is a delegated-transfer refusal
// caused by a missing, spent or expired allowance.
func IsAllowanceError(err error) bool {
	return errors.Is(err, payment.ErrInsufficientAllowance) ||
		errors.Is(err, payment.ErrAllowanceExpired)
}
