package subledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/subledger/auth"
	"github.com/xraph/subledger/clock"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/payment"
	"github.com/xraph/subledger/plugin"
	"github.com/xraph/subledger/state"
	"github.com/xraph/subledger/store"
)

// Engine is the subscription ledger. All operations are serialized and
// each runs against its own buffered view of the store: it either commits
// every write it made or none of them.
type Engine struct {
	mu sync.Mutex

	store    store.Store
	clock    clock.Clock
	authz    auth.Authorizer
	payments payment.Resolver
	address  id.Principal
	policies state.Policies
	plugins  *plugin.Registry
	logger   *slog.Logger
}

// New creates a new Engine over s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		clock:    clock.NewWall(time.Unix(0, 0).UTC(), clock.DefaultTick),
		authz:    auth.ContextAuthorizer{},
		policies: state.DefaultPolicies(),
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.address.IsNil() {
		e.address = id.NewPrincipal()
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the tick source.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithAuthorizer sets the principal authorization collaborator.
func WithAuthorizer(a auth.Authorizer) Option {
	return func(e *Engine) { e.authz = a }
}

// WithPayment registers the token ledger charges are made through. The
// ledger must be initialized with l's ID for its charges to resolve.
func WithPayment(l payment.Ledger) Option {
	return func(e *Engine) { e.payments = payment.NewLedgers(l) }
}

// WithPaymentResolver sets how the payment token stored at Init is turned
// into a ledger to charge through.
func WithPaymentResolver(r payment.Resolver) Option {
	return func(e *Engine) { e.payments = r }
}

// WithAddress sets the engine's own principal, the spender subscribers
// grant renewal allowances to.
func WithAddress(p id.Principal) Option {
	return func(e *Engine) { e.address = p }
}

// WithPolicies sets the entry lifetime policies.
func WithPolicies(p state.Policies) Option {
	return func(e *Engine) { e.policies = p }
}

// Address returns the engine's principal.
func (e *Engine) Address() id.Principal { return e.address }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return fmt.Errorf("subledger: migrate: %w", err)
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("subledger started",
		"address", e.address.String(),
		"threshold", e.policies.Persistent.Threshold,
		"extend_to", e.policies.Persistent.ExtendTo,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop(ctx context.Context) error {
	e.plugins.EmitShutdown(ctx)
	e.logger.Info("subledger stopped")
	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Invocation
// ──────────────────────────────────────────────────

// call is the state of one in-flight operation.
type call struct {
	tx      *state.Tx
	now     uint32
	charges []pendingCharge
	events  []func(context.Context)
}

// pendingCharge is a charge and the ledger it will be executed against.
type pendingCharge struct {
	payment.Charge
	token payment.Token
}

func (c *call) emit(fn func(context.Context)) {
	c.events = append(c.events, fn)
}

// invoke runs fn as one atomic operation. Charges recorded by fn are
// executed after fn succeeds and before the writes are committed; plugin
// events fire only once the commit has succeeded.
func (e *Engine) invoke(ctx context.Context, op string, fn func(ctx context.Context, c *call) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now, err := e.clock.CurrentTick(ctx)
	if err != nil {
		return e.abort(ctx, op, fmt.Errorf("subledger: read clock: %w", err))
	}

	c := &call{tx: state.Begin(e.store, now, e.policies), now: now}
	if err := fn(ctx, c); err != nil {
		return e.abort(ctx, op, err)
	}

	for _, ch := range c.charges {
		if err := e.settle(ctx, ch); err != nil {
			return e.abort(ctx, op, err)
		}
	}

	writes := c.tx.Pending()
	if err := c.tx.Commit(ctx); err != nil {
		if len(c.charges) > 0 {
			e.logger.Error("commit failed after payment settled",
				"op", op,
				"tick", now,
				"charges", len(c.charges),
				"error", err,
			)
		}
		return e.abort(ctx, op, err)
	}

	e.logger.Debug("operation committed",
		"op", op,
		"tick", now,
		"writes", writes,
	)

	for _, ch := range c.charges {
		e.plugins.EmitCharged(ctx, ch.Charge)
	}
	for _, ev := range c.events {
		ev(ctx)
	}

	return nil
}

func (e *Engine) abort(ctx context.Context, op string, err error) error {
	level := slog.LevelWarn
	if Code(err) != 0 {
		level = slog.LevelDebug
	}
	e.logger.Log(ctx, level, "operation aborted",
		"op", op,
		"code", Code(err),
		"error", err,
	)
	e.plugins.EmitRejected(ctx, op, err)
	return err
}

// resolveToken returns the ledger for the payment token stored at Init.
func (e *Engine) resolveToken(ctx context.Context, c *call) (id.TokenID, payment.Token, error) {
	tid, err := readPrincipal(ctx, c, state.PaymentTokenKey())
	if err != nil {
		return id.Nil, nil, err
	}
	if e.payments == nil {
		return id.Nil, nil, fmt.Errorf("%w: no payment token configured", ErrPaymentFailed)
	}
	tok, err := e.payments.Resolve(ctx, tid)
	if err != nil {
		return id.Nil, nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}
	return tid, tok, nil
}

func (e *Engine) settle(ctx context.Context, ch pendingCharge) error {
	if err := ch.Execute(ctx, ch.token); err != nil {
		return fmt.Errorf("%w: %s charge of %s from %s: %w", ErrPaymentFailed, ch.Mode, ch.Amount, ch.From, err)
	}
	return nil
}

// requireAuth asks the authorization collaborator to confirm p.
func (e *Engine) requireAuth(ctx context.Context, p id.Principal) error {
	if err := e.authz.RequireAuth(ctx, p); err != nil {
		if errors.Is(err, auth.ErrAuthRequired) || errors.Is(err, auth.ErrInvalidToken) {
			return err
		}
		return fmt.Errorf("%w: %w", auth.ErrAuthRequired, err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Configuration
// ──────────────────────────────────────────────────

// Init records the administrator, payment token and treasury. It succeeds
// once per ledger and requires the administrator's authorization.
func (e *Engine) Init(ctx context.Context, admin id.Principal, paymentToken id.TokenID, treasury id.Principal) error {
	return e.invoke(ctx, "init", func(ctx context.Context, c *call) error {
		ok, err := c.tx.Has(ctx, state.AdminKey())
		if err != nil {
			return err
		}
		if ok {
			return ErrAlreadyInitialized
		}
		if err := e.requireAuth(ctx, admin); err != nil {
			return err
		}

		if err := c.tx.Set(ctx, state.AdminKey(), admin); err != nil {
			return err
		}
		if err := c.tx.Set(ctx, state.PaymentTokenKey(), paymentToken); err != nil {
			return err
		}
		if err := c.tx.Set(ctx, state.TreasuryKey(), treasury); err != nil {
			return err
		}

		cfg := plugin.Configuration{Admin: admin, PaymentToken: paymentToken, Treasury: treasury, Tick: c.now}
		c.emit(func(ctx context.Context) { e.plugins.EmitLedgerInitialized(ctx, cfg) })
		return nil
	})
}

// Configuration returns the stored ledger configuration.
func (e *Engine) Configuration(ctx context.Context) (plugin.Configuration, error) {
	var cfg plugin.Configuration
	err := e.invoke(ctx, "configuration", func(ctx context.Context, c *call) error {
		admin, err := readPrincipal(ctx, c, state.AdminKey())
		if err != nil {
			return err
		}
		tok, err := readPrincipal(ctx, c, state.PaymentTokenKey())
		if err != nil {
			return err
		}
		treasury, err := readPrincipal(ctx, c, state.TreasuryKey())
		if err != nil {
			return err
		}
		cfg = plugin.Configuration{Admin: admin, PaymentToken: tok, Treasury: treasury, Tick: c.now}
		return nil
	})
	return cfg, err
}

// readPrincipal reads a required configuration entry.
func readPrincipal(ctx context.Context, c *call, k state.Key) (id.Principal, error) {
	p, ok, err := state.Read[id.Principal](ctx, c.tx, k)
	if err != nil {
		return id.Nil, err
	}
	if !ok {
		return id.Nil, ErrNotInitialized
	}
	return p, nil
}

// requireAdmin authorizes caller and checks it is the administrator.
func (e *Engine) requireAdmin(ctx context.Context, c *call, caller id.Principal) error {
	if err := e.requireAuth(ctx, caller); err != nil {
		return err
	}
	admin, err := readPrincipal(ctx, c, state.AdminKey())
	if err != nil {
		return err
	}
	if !admin.Equal(caller) {
		return ErrUnauthorized
	}
	return nil
}
