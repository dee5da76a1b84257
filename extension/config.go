package extension

import (
	"time"

	"github.com/xraph/subledger/clock"
	"github.com/xraph/subledger/state"
	redisstore "github.com/xraph/subledger/store/redis"
)

// Store drivers the extension can open from configuration alone. Grove
// backed stores (postgres, sqlite, mongo) need a *grove.DB and are passed
// in with WithStore.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// StoreConfig selects and configures the backing store.
type StoreConfig struct {
	Driver string            `json:"driver" mapstructure:"driver" yaml:"driver"`
	Redis  redisstore.Config `json:"redis" mapstructure:"redis" yaml:"redis"`
}

// Config holds the subledger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.subledger" or "subledger" keys).
type Config struct {
	// DisableRoutes prevents building the HTTP handler.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for subledger routes (default: "/subledger").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// Store selects the backend when no store was passed with WithStore.
	Store StoreConfig `json:"store" mapstructure:"store" yaml:"store"`

	// Lifetime controls entry lifetime extension, in ticks.
	Lifetime state.Policies `json:"lifetime" mapstructure:"lifetime" yaml:"lifetime"`

	// GenesisUnix is the Unix time of tick 0.
	GenesisUnix int64 `json:"genesis_unix" mapstructure:"genesis_unix" yaml:"genesis_unix"`

	// TickDuration is the wall-clock length of one tick (default: 5s).
	TickDuration time.Duration `json:"tick_duration" mapstructure:"tick_duration" yaml:"tick_duration"`

	// Address is the ledger's own principal, used as the delegated spender.
	// A fresh one is generated when empty.
	Address string `json:"address" mapstructure:"address" yaml:"address"`

	// JWTSecret enables bearer-token authentication on signed routes.
	JWTSecret string `json:"jwt_secret" mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer string `json:"jwt_issuer" mapstructure:"jwt_issuer" yaml:"jwt_issuer"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:     "/subledger",
		Store:        StoreConfig{Driver: DriverMemory},
		Lifetime:     state.DefaultPolicies(),
		TickDuration: clock.DefaultTick,
	}
}
