// Package observability provides a metrics extension for subledger that
// records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/subledger/payment"
	"github.com/xraph/subledger/plan"
	"github.com/xraph/subledger/plugin"
	"github.com/xraph/subledger/subscription"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnLedgerInitialized = (*MetricsExtension)(nil)
	_ plugin.OnPlanCreated       = (*MetricsExtension)(nil)
	_ plugin.OnPlanStatusChanged = (*MetricsExtension)(nil)
	_ plugin.OnSubscribed        = (*MetricsExtension)(nil)
	_ plugin.OnRenewed           = (*MetricsExtension)(nil)
	_ plugin.OnCanceled          = (*MetricsExtension)(nil)
	_ plugin.OnCharged           = (*MetricsExtension)(nil)
	_ plugin.OnRejected          = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a plugin to track billing metrics automatically.
type MetricsExtension struct {
	factory MetricFactory

	LedgerInitialized Counter

	// Plan metrics
	PlanCreated     Counter
	PlanActivated   Counter
	PlanDeactivated Counter

	// Subscription metrics
	SubscriptionCreated  Counter
	SubscriptionRenewed  Counter
	SubscriptionCanceled Counter

	// Payment metrics
	ChargesDirect    Counter
	ChargesDelegated Counter
	ChargedAmount    Histogram
	PaymentDeclined  Counter

	// Error metrics
	OperationsRejected Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		LedgerInitialized: factory.Counter("subledger.ledger.initialized"),

		PlanCreated:     factory.Counter("subledger.plan.created"),
		PlanActivated:   factory.Counter("subledger.plan.activated"),
		PlanDeactivated: factory.Counter("subledger.plan.deactivated"),

		SubscriptionCreated:  factory.Counter("subledger.subscription.created"),
		SubscriptionRenewed:  factory.Counter("subledger.subscription.renewed"),
		SubscriptionCanceled: factory.Counter("subledger.subscription.canceled"),

		ChargesDirect:    factory.Counter("subledger.payment.charges.direct"),
		ChargesDelegated: factory.Counter("subledger.payment.charges.delegated"),
		ChargedAmount:    factory.Histogram("subledger.payment.charged_amount"),
		PaymentDeclined:  factory.Counter("subledger.payment.declined"),

		OperationsRejected: factory.Counter("subledger.operation.rejected"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// OnLedgerInitialized implements plugin.OnLedgerInitialized.
func (m *MetricsExtension) OnLedgerInitialized(_ context.Context, _ plugin.Configuration) error {
	m.LedgerInitialized.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanCreated implements plugin.OnPlanCreated.
func (m *MetricsExtension) OnPlanCreated(_ context.Context, _ *plan.Plan) error {
	m.PlanCreated.Inc()
	return nil
}

// OnPlanStatusChanged implements plugin.OnPlanStatusChanged.
func (m *MetricsExtension) OnPlanStatusChanged(_ context.Context, p *plan.Plan, wasActive bool) error {
	switch {
	case p.Active && !wasActive:
		m.PlanActivated.Inc()
	case !p.Active && wasActive:
		m.PlanDeactivated.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscribed implements plugin.OnSubscribed.
func (m *MetricsExtension) OnSubscribed(_ context.Context, _ *subscription.Subscription, _ *plan.Plan) error {
	m.SubscriptionCreated.Inc()
	return nil
}

// OnRenewed implements plugin.OnRenewed.
func (m *MetricsExtension) OnRenewed(_ context.Context, _ *subscription.Subscription, _ *plan.Plan, _ uint32) error {
	m.SubscriptionRenewed.Inc()
	return nil
}

// OnCanceled implements plugin.OnCanceled.
func (m *MetricsExtension) OnCanceled(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCanceled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payment and failure hooks
// ──────────────────────────────────────────────────

// OnCharged implements plugin.OnCharged.
func (m *MetricsExtension) OnCharged(_ context.Context, c payment.Charge) error {
	if c.Mode == payment.ModeDelegated {
		m.ChargesDelegated.Inc()
	} else {
		m.ChargesDirect.Inc()
	}
	m.ChargedAmount.Observe(float64(c.Amount))
	return nil
}

// OnRejected implements plugin.OnRejected.
func (m *MetricsExtension) OnRejected(_ context.Context, _ string, err error) error {
	m.OperationsRejected.Inc()
	if payment.IsDeclined(err) {
		m.PaymentDeclined.Inc()
	}
	return nil
}
