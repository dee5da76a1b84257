package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xraph/subledger/clock"
	"github.com/xraph/subledger/state"
	redisstore "github.com/xraph/subledger/store/redis"
)

// Config is the daemon configuration.
type Config struct {
	Store struct {
		Driver string            `mapstructure:"driver"`
		Redis  redisstore.Config `mapstructure:"redis"`
	} `mapstructure:"store"`

	HTTP struct {
		Addr     string `mapstructure:"addr"`
		BasePath string `mapstructure:"base_path"`
	} `mapstructure:"http"`

	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"`
		JWTIssuer string `mapstructure:"jwt_issuer"`
	} `mapstructure:"auth"`

	Clock struct {
		Genesis int64         `mapstructure:"genesis"`
		Tick    time.Duration `mapstructure:"tick"`
	} `mapstructure:"clock"`

	Lifetime struct {
		Threshold uint32 `mapstructure:"threshold"`
		ExtendTo  uint32 `mapstructure:"extend_to"`
		Initial   uint32 `mapstructure:"initial"`
	} `mapstructure:"lifetime"`

	Contract struct {
		Address string `mapstructure:"address"`
	} `mapstructure:"contract"`

	Payment struct {
		TokenID string `mapstructure:"token_id"`
		DevMint bool   `mapstructure:"dev_mint"`
	} `mapstructure:"payment"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// Policies returns the lifetime policies, applied to both key classes.
func (c *Config) Policies() state.Policies {
	p := state.Policy{Threshold: c.Lifetime.Threshold, ExtendTo: c.Lifetime.ExtendTo}
	return state.Policies{Instance: p, Persistent: p, Initial: c.Lifetime.Initial}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "subledger:")
	v.SetDefault("store.redis.tick_duration", 0)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.base_path", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "subledger")
	v.SetDefault("clock.genesis", 0)
	v.SetDefault("clock.tick", clock.DefaultTick)
	v.SetDefault("lifetime.threshold", state.DefaultThreshold)
	v.SetDefault("lifetime.extend_to", state.DefaultExtendTo)
	v.SetDefault("lifetime.initial", state.DefaultInitial)
	v.SetDefault("contract.address", "")
	v.SetDefault("payment.token_id", "")
	v.SetDefault("payment.dev_mint", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// loadConfig merges defaults, subledger.yaml when present, and SUBLEDGER_*
// environment variables. Later sources win.
func loadConfig(v *viper.Viper, file string) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("SUBLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("subledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/subledger")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Clock.Tick <= 0 {
		return nil, fmt.Errorf("clock.tick must be positive, got %s", cfg.Clock.Tick)
	}
	// A persistent ledger outlives the process, so the engine address its
	// subscribers approve and the token it was initialized with must too.
	if cfg.Store.Driver != "memory" {
		if cfg.Contract.Address == "" {
			return nil, fmt.Errorf("contract.address is required with store.driver %q", cfg.Store.Driver)
		}
		if cfg.Payment.TokenID == "" {
			return nil, fmt.Errorf("payment.token_id is required with store.driver %q", cfg.Store.Driver)
		}
	}
	return &cfg, nil
}

// newLogger builds the process logger from log.level and log.format.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log.format: unknown format %q", format)
	}
}
