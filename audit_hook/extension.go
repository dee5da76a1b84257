// Package audithook bridges subledger lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/subledger"
	"github.com/xraph/subledger/payment"
	"github.com/xraph/subledger/plan"
	"github.com/xraph/subledger/plugin"
	"github.com/xraph/subledger/subscription"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnLedgerInitialized = (*Extension)(nil)
	_ plugin.OnPlanCreated       = (*Extension)(nil)
	_ plugin.OnPlanStatusChanged = (*Extension)(nil)
	_ plugin.OnSubscribed        = (*Extension)(nil)
	_ plugin.OnRenewed           = (*Extension)(nil)
	_ plugin.OnCanceled          = (*Extension)(nil)
	_ plugin.OnCharged           = (*Extension)(nil)
	_ plugin.OnRejected          = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a single audit trail entry.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges subledger lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// OnLedgerInitialized implements plugin.OnLedgerInitialized.
func (e *Extension) OnLedgerInitialized(ctx context.Context, cfg plugin.Configuration) error {
	return e.record(ctx, ActionLedgerInitialized, SeverityInfo, OutcomeSuccess,
		ResourceLedger, cfg.Admin.String(), CategoryAdmin, nil,
		"admin", cfg.Admin.String(),
		"payment_token", cfg.PaymentToken.String(),
		"treasury", cfg.Treasury.String(),
		"tick", cfg.Tick,
	)
}

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanCreated implements plugin.OnPlanCreated.
func (e *Extension) OnPlanCreated(ctx context.Context, p *plan.Plan) error {
	return e.record(ctx, ActionPlanCreated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, planID(p.ID), CategoryBilling, nil,
		"name", p.Name,
		"period", p.Period,
		"price", int64(p.Price),
	)
}

// OnPlanStatusChanged implements plugin.OnPlanStatusChanged.
func (e *Extension) OnPlanStatusChanged(ctx context.Context, p *plan.Plan, wasActive bool) error {
	severity := SeverityInfo
	if wasActive && !p.Active {
		severity = SeverityWarning
	}
	return e.record(ctx, ActionPlanStatusChanged, severity, OutcomeSuccess,
		ResourcePlan, planID(p.ID), CategoryBilling, nil,
		"was_active", wasActive,
		"active", p.Active,
	)
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscribed implements plugin.OnSubscribed.
func (e *Extension) OnSubscribed(ctx context.Context, sub *subscription.Subscription, p *plan.Plan) error {
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.Subscriber.String(), CategorySubscription, nil,
		"plan_id", p.ID,
		"started_at", sub.StartedAt,
		"next_due_at", sub.NextDueAt,
	)
}

// OnRenewed implements plugin.OnRenewed.
func (e *Extension) OnRenewed(ctx context.Context, sub *subscription.Subscription, p *plan.Plan, previousDue uint32) error {
	return e.record(ctx, ActionSubscriptionRenewed, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.Subscriber.String(), CategorySubscription, nil,
		"plan_id", p.ID,
		"previous_due_at", previousDue,
		"next_due_at", sub.NextDueAt,
	)
}

// OnCanceled implements plugin.OnCanceled.
func (e *Extension) OnCanceled(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCanceled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.Subscriber.String(), CategorySubscription, nil,
		"plan_id", sub.PlanID,
	)
}

// ──────────────────────────────────────────────────
// Payment and failure hooks
// ──────────────────────────────────────────────────

// OnCharged implements plugin.OnCharged.
func (e *Extension) OnCharged(ctx context.Context, c payment.Charge) error {
	return e.record(ctx, ActionPaymentCharged, SeverityInfo, OutcomeSuccess,
		ResourcePayment, c.From.String(), CategoryPayment, nil,
		"mode", string(c.Mode),
		"token", c.Token.String(),
		"to", c.To.String(),
		"plan_id", c.PlanID,
		"amount", int64(c.Amount),
		"tick", c.Tick,
	)
}

// OnRejected implements plugin.OnRejected. Payment declines are recorded as
// errors; everything else as warnings.
func (e *Extension) OnRejected(ctx context.Context, op string, err error) error {
	severity := SeverityWarning
	category := CategoryAccess
	if payment.IsDeclined(err) {
		severity = SeverityError
		category = CategoryPayment
	}
	return e.record(ctx, ActionOperationRejected, severity, OutcomeFailure,
		ResourceOperation, op, category, err,
		"op", op,
		"code", subledger.Code(err),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func planID(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
