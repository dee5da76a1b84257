package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/subledger"
	audithook "github.com/xraph/subledger/audit_hook"
	"github.com/xraph/subledger/clock"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/observability"
	"github.com/xraph/subledger/payment/memtoken"
	"github.com/xraph/subledger/store"
	"github.com/xraph/subledger/store/memory"
	redisstore "github.com/xraph/subledger/store/redis"
)

// app is everything one daemon command runs against.
type app struct {
	cfg     *Config
	logger  *slog.Logger
	clock   *clock.Wall
	store   store.Store
	token   *memtoken.Token
	metrics *observability.PrometheusFactory
	engine  *subledger.Engine
}

func openStore(ctx context.Context, cfg *Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return memory.New(), nil
	case "redis":
		rc := cfg.Store.Redis
		if rc.TickDuration == 0 {
			rc.TickDuration = cfg.Clock.Tick
		}
		return redisstore.New(ctx, rc, redisstore.WithLogger(logger))
	default:
		return nil, fmt.Errorf("store.driver %q is not supported by subledgerd (memory, redis)", cfg.Store.Driver)
	}
}

func newApp(ctx context.Context, cfg *Config, logger *slog.Logger) (*app, error) {
	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	clk := clock.NewWall(time.Unix(cfg.Clock.Genesis, 0), cfg.Clock.Tick)
	var tokOpts []memtoken.Option
	if cfg.Payment.TokenID != "" {
		tid, err := id.ParseTokenID(cfg.Payment.TokenID)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("payment.token_id: %w", err)
		}
		tokOpts = append(tokOpts, memtoken.WithID(tid))
	}
	tok := memtoken.New(clk, tokOpts...)
	metrics := observability.NewPrometheusFactory()

	opts := []subledger.Option{
		subledger.WithLogger(logger),
		subledger.WithClock(clk),
		subledger.WithPayment(tok),
		subledger.WithPolicies(cfg.Policies()),
		subledger.WithPlugin(observability.NewMetricsExtension(metrics)),
		subledger.WithPlugin(audithook.New(auditLogger(logger), audithook.WithLogger(logger))),
	}
	if cfg.Contract.Address != "" {
		addr, err := id.ParsePrincipal(cfg.Contract.Address)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("contract.address: %w", err)
		}
		opts = append(opts, subledger.WithAddress(addr))
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		clock:   clk,
		store:   s,
		token:   tok,
		metrics: metrics,
		engine:  subledger.New(s, opts...),
	}, nil
}

// auditLogger writes audit events to the process log.
func auditLogger(logger *slog.Logger) audithook.RecorderFunc {
	return func(ctx context.Context, evt *audithook.AuditEvent) error {
		logger.InfoContext(ctx, "audit",
			"action", evt.Action,
			"resource", evt.Resource,
			"resource_id", evt.ResourceID,
			"outcome", evt.Outcome,
			"severity", evt.Severity,
		)
		return nil
	}
}
