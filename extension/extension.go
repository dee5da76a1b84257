// Package extension provides the Forge extension adapter for subledger.
//
// It implements the forge.Extension interface to integrate the ledger
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.subledger" or
// "subledger" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/subledger"
	"github.com/xraph/subledger/api"
	"github.com/xraph/subledger/auth"
	"github.com/xraph/subledger/clock"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/renewal"
	"github.com/xraph/subledger/store"
	"github.com/xraph/subledger/store/memory"
	redisstore "github.com/xraph/subledger/store/redis"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "subledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Recurring-billing ledger over an expiring key-value store"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts subledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *subledger.Engine
	sweeper    *renewal.Sweeper
	handler    *api.Handler
	store      store.Store
	clock      clock.Clock
	engineOpts []subledger.Option
}

// New creates a new subledger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *subledger.Engine { return e.engine }

// Sweeper returns the renewal sweeper bound to the engine.
func (e *Extension) Sweeper() *renewal.Sweeper { return e.sweeper }

// Handler returns the HTTP API mounted under the configured base path, or
// nil when routes are disabled.
func (e *Extension) Handler() http.Handler {
	if e.handler == nil {
		return nil
	}
	return e.handler.Router(e.config.BasePath)
}

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := openStore(context.Background(), e.config.Store)
		if err != nil {
			return err
		}
		e.store = s
	}
	if e.clock == nil {
		e.clock = clock.NewWall(time.Unix(e.config.GenesisUnix, 0), e.config.TickDuration)
	}

	opts, err := e.buildEngineOpts()
	if err != nil {
		return err
	}

	e.engine = subledger.New(e.store, opts...)
	e.sweeper = renewal.NewSweeper(e.engine, e.clock)

	if !e.config.DisableRoutes {
		apiOpts := []api.Option{api.WithSweeper(e.sweeper)}
		if e.config.JWTSecret != "" {
			apiOpts = append(apiOpts, api.WithVerifier(
				auth.NewJWTVerifier([]byte(e.config.JWTSecret), e.config.JWTIssuer),
			))
		}
		e.handler = api.New(e.engine, apiOpts...)
	}

	if err := vessel.Provide(fapp.Container(), func() (*renewal.Sweeper, error) {
		return e.sweeper, nil
	}); err != nil {
		return err
	}
	return vessel.Provide(fapp.Container(), func() (*subledger.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("subledger: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(ctx); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("subledger: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs subledger.Option values from the resolved config.
// Pass-through options come last so they win.
func (e *Extension) buildEngineOpts() ([]subledger.Option, error) {
	opts := make([]subledger.Option, 0, len(e.engineOpts)+3)
	opts = append(opts,
		subledger.WithClock(e.clock),
		subledger.WithPolicies(e.config.Lifetime),
	)

	if e.config.Address != "" {
		addr, err := id.ParsePrincipal(e.config.Address)
		if err != nil {
			return nil, fmt.Errorf("subledger: config address: %w", err)
		}
		opts = append(opts, subledger.WithAddress(addr))
	}

	return append(opts, e.engineOpts...), nil
}

// openStore opens the backend named by cfg.Driver.
func openStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return memory.New(), nil
	case DriverRedis:
		return redisstore.New(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("subledger: store driver %q needs a grove database; pass it with WithStore", cfg.Driver)
	}
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("subledger: configuration is required but not found in config files; " +
				"ensure 'extensions.subledger' or 'subledger' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("subledger: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("store_driver", e.config.Store.Driver),
		forge.F("tick_duration", e.config.TickDuration),
		forge.F("lifetime_threshold", e.config.Lifetime.Persistent.Threshold),
		forge.F("lifetime_extend_to", e.config.Lifetime.Persistent.ExtendTo),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.subledger", "subledger"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("subledger: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("subledger: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = defaults.Store.Driver
	}
	if cfg.TickDuration == 0 {
		cfg.TickDuration = defaults.TickDuration
	}
	if cfg.Lifetime.Instance.Threshold == 0 && cfg.Lifetime.Instance.ExtendTo == 0 {
		cfg.Lifetime.Instance = defaults.Lifetime.Instance
	}
	if cfg.Lifetime.Persistent.Threshold == 0 && cfg.Lifetime.Persistent.ExtendTo == 0 {
		cfg.Lifetime.Persistent = defaults.Lifetime.Persistent
	}
	if cfg.Lifetime.Initial == 0 {
		cfg.Lifetime.Initial = defaults.Lifetime.Initial
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.Store.Driver == "" {
		yamlConfig.Store = programmaticConfig.Store
	}
	if yamlConfig.Address == "" {
		yamlConfig.Address = programmaticConfig.Address
	}
	if yamlConfig.JWTSecret == "" {
		yamlConfig.JWTSecret = programmaticConfig.JWTSecret
		yamlConfig.JWTIssuer = programmaticConfig.JWTIssuer
	}
	if yamlConfig.GenesisUnix == 0 {
		yamlConfig.GenesisUnix = programmaticConfig.GenesisUnix
	}
	if yamlConfig.TickDuration == 0 {
		yamlConfig.TickDuration = programmaticConfig.TickDuration
	}
	if yamlConfig.Lifetime == (Config{}).Lifetime {
		yamlConfig.Lifetime = programmaticConfig.Lifetime
	}

	return mergeWithDefaults(yamlConfig)
}
