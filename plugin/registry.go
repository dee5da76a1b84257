package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/subledger/payment"
	"github.com/xraph/subledger/plan"
	"github.com/xraph/subledger/subscription"
)

// DefaultHookTimeout bounds how long a single hook may run.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emission never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onLedgerInitialized []OnLedgerInitialized
	onPlanCreated       []OnPlanCreated
	onPlanStatusChanged []OnPlanStatusChanged
	onSubscribed        []OnSubscribed
	onRenewed           []OnRenewed
	onCanceled          []OnCanceled
	onCharged           []OnCharged
	onRejected          []OnRejected
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnLedgerInitialized); ok {
		r.onLedgerInitialized = append(r.onLedgerInitialized, v)
	}
	if v, ok := p.(OnPlanCreated); ok {
		r.onPlanCreated = append(r.onPlanCreated, v)
	}
	if v, ok := p.(OnPlanStatusChanged); ok {
		r.onPlanStatusChanged = append(r.onPlanStatusChanged, v)
	}
	if v, ok := p.(OnSubscribed); ok {
		r.onSubscribed = append(r.onSubscribed, v)
	}
	if v, ok := p.(OnRenewed); ok {
		r.onRenewed = append(r.onRenewed, v)
	}
	if v, ok := p.(OnCanceled); ok {
		r.onCanceled = append(r.onCanceled, v)
	}
	if v, ok := p.(OnCharged); ok {
		r.onCharged = append(r.onCharged, v)
	}
	if v, ok := p.(OnRejected); ok {
		r.onRejected = append(r.onRejected, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnLedgerInitialized", reflect.TypeOf((*OnLedgerInitialized)(nil)).Elem()},
	{"OnPlanCreated", reflect.TypeOf((*OnPlanCreated)(nil)).Elem()},
	{"OnPlanStatusChanged", reflect.TypeOf((*OnPlanStatusChanged)(nil)).Elem()},
	{"OnSubscribed", reflect.TypeOf((*OnSubscribed)(nil)).Elem()},
	{"OnRenewed", reflect.TypeOf((*OnRenewed)(nil)).Elem()},
	{"OnCanceled", reflect.TypeOf((*OnCanceled)(nil)).Elem()},
	{"OnCharged", reflect.TypeOf((*OnCharged)(nil)).Elem()},
	{"OnRejected", reflect.TypeOf((*OnRejected)(nil)).Elem()},
}

// implementedInterfaces returns the hook names p implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnInit", p.Name(), func() error { return p.OnInit(ctx, engine) })
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnShutdown", p.Name(), func() error { return p.OnShutdown(ctx) })
	}
}

// EmitLedgerInitialized emits the one-time configuration event.
func (r *Registry) EmitLedgerInitialized(ctx context.Context, cfg Configuration) {
	r.mu.RLock()
	plugins := r.onLedgerInitialized
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnLedgerInitialized", p.Name(), func() error { return p.OnLedgerInitialized(ctx, cfg) })
	}
}

// EmitPlanCreated emits a plan created event.
func (r *Registry) EmitPlanCreated(ctx context.Context, pl *plan.Plan) {
	r.mu.RLock()
	plugins := r.onPlanCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnPlanCreated", p.Name(), func() error { return p.OnPlanCreated(ctx, pl) })
	}
}

// EmitPlanStatusChanged emits a plan status event.
func (r *Registry) EmitPlanStatusChanged(ctx context.Context, pl *plan.Plan, wasActive bool) {
	r.mu.RLock()
	plugins := r.onPlanStatusChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnPlanStatusChanged", p.Name(), func() error { return p.OnPlanStatusChanged(ctx, pl, wasActive) })
	}
}

// EmitSubscribed emits a subscription created event.
func (r *Registry) EmitSubscribed(ctx context.Context, sub *subscription.Subscription, pl *plan.Plan) {
	r.mu.RLock()
	plugins := r.onSubscribed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnSubscribed", p.Name(), func() error { return p.OnSubscribed(ctx, sub, pl) })
	}
}

// EmitRenewed emits a renewal event.
func (r *Registry) EmitRenewed(ctx context.Context, sub *subscription.Subscription, pl *plan.Plan, previousDue uint32) {
	r.mu.RLock()
	plugins := r.onRenewed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnRenewed", p.Name(), func() error { return p.OnRenewed(ctx, sub, pl, previousDue) })
	}
}

// EmitCanceled emits a cancellation event.
func (r *Registry) EmitCanceled(ctx context.Context, sub *subscription.Subscription) {
	r.mu.RLock()
	plugins := r.onCanceled
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnCanceled", p.Name(), func() error { return p.OnCanceled(ctx, sub) })
	}
}

// EmitCharged emits a payment event.
func (r *Registry) EmitCharged(ctx context.Context, charge payment.Charge) {
	r.mu.RLock()
	plugins := r.onCharged
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnCharged", p.Name(), func() error { return p.OnCharged(ctx, charge) })
	}
}

// EmitRejected emits an aborted-operation event.
func (r *Registry) EmitRejected(ctx context.Context, op string, opErr error) {
	r.mu.RLock()
	plugins := r.onRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnRejected", p.Name(), func() error { return p.OnRejected(ctx, op, opErr) })
	}
}

func (r *Registry) call(ctx context.Context, hook, pluginName string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
