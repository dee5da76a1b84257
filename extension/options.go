package extension

import (
	"time"

	"github.com/xraph/subledger"
	"github.com/xraph/subledger/clock"
	"github.com/xraph/subledger/plugin"
	"github.com/xraph/subledger/state"
	"github.com/xraph/subledger/store"
)

// Option configures the subledger Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine. It takes precedence over the
// configured driver.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithClock sets the clock shared by the engine and the renewal sweeper.
func WithClock(c clock.Clock) Option {
	return func(e *Extension) {
		e.clock = c
	}
}

// WithEngineOption passes a subledger.Option through to the underlying engine.
func WithEngineOption(opt subledger.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a subledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, subledger.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents building the HTTP handler.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for subledger routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithStoreDriver selects the backend opened when no store was passed.
func WithStoreDriver(driver string) Option {
	return func(e *Extension) { e.config.Store.Driver = driver }
}

// WithLifetime sets the entry lifetime policies.
func WithLifetime(p state.Policies) Option {
	return func(e *Extension) { e.config.Lifetime = p }
}

// WithTickDuration sets the wall-clock length of one tick.
func WithTickDuration(d time.Duration) Option {
	return func(e *Extension) { e.config.TickDuration = d }
}

// WithJWTSecret enables bearer-token authentication on signed routes.
func WithJWTSecret(secret, issuer string) Option {
	return func(e *Extension) {
		e.config.JWTSecret = secret
		e.config.JWTIssuer = issuer
	}
}
