package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xraph/subledger/api"
	"github.com/xraph/subledger/auth"
	"github.com/xraph/subledger/index"
	"github.com/xraph/subledger/renewal"
)

const shutdownTimeout = 15 * time.Second

type cli struct {
	v          *viper.Viper
	configFile string
}

func newRootCommand() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "subledgerd",
		Short:         "Recurring-billing ledger daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configFile, "config", "c", "", "config file (default ./subledger.yaml)")
	flags.String("store-driver", "", "store driver: memory or redis")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")
	_ = c.v.BindPFlag("store.driver", flags.Lookup("store-driver"))
	_ = c.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("log.format", flags.Lookup("log-format"))

	root.AddCommand(c.newServeCommand())
	root.AddCommand(c.newRenewDueCommand())
	root.AddCommand(c.newPurgeCommand())
	return root
}

// setup loads configuration and wires the engine.
func (c *cli) setup(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(c.v, c.configFile)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, logger)
}

func (c *cli) newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := c.setup(ctx)
			if err != nil {
				return err
			}
			return a.serve(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address")
	_ = c.v.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	if err := a.engine.Start(ctx); err != nil {
		return err
	}

	opts := []api.Option{
		api.WithLogger(a.logger),
		api.WithSweeper(renewal.NewSweeper(a.engine, a.clock, renewal.WithLogger(a.logger))),
		api.WithMetricsHandler(a.metrics.Handler()),
		api.WithToken(a.token),
	}
	if a.cfg.Payment.DevMint {
		a.logger.Warn("payment.dev_mint is on; POST /v1/token/mint funds any principal")
		opts = append(opts, api.WithMinting())
	}
	if a.cfg.Auth.JWTSecret != "" {
		opts = append(opts, api.WithVerifier(auth.NewJWTVerifier([]byte(a.cfg.Auth.JWTSecret), a.cfg.Auth.JWTIssuer)))
	} else {
		a.logger.Warn("auth.jwt_secret is empty; signed routes will reject every caller")
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           api.New(a.engine, opts...).Router(a.cfg.HTTP.BasePath),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = a.engine.Stop(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown", "error", err)
	}
	return a.engine.Stop(shutdownCtx)
}

func (c *cli) newRenewDueCommand() *cobra.Command {
	var pageSize uint32
	var maxPages int

	cmd := &cobra.Command{
		Use:   "renew-due",
		Short: "Renew every subscription that is due at the current tick",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.setup(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.engine.Stop(context.Background()) }()

			if err := a.engine.Start(ctx); err != nil {
				return err
			}
			report, err := renewal.NewSweeper(a.engine, a.clock,
				renewal.WithPageSize(pageSize),
				renewal.WithMaxPages(maxPages),
				renewal.WithLogger(a.logger),
			).RenewDue(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().Uint32Var(&pageSize, "page-size", renewal.DefaultPageSize,
		fmt.Sprintf("subscriptions read per page (at most %d)", index.MaxPageSize))
	cmd.Flags().IntVar(&maxPages, "max-pages", renewal.DefaultMaxPages, "maximum pages per sweep")
	return cmd
}

func (c *cli) newPurgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Evict the values of store entries whose lifetime has ended",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.setup(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.store.Close() }()

			tick, err := a.clock.CurrentTick(ctx)
			if err != nil {
				return err
			}
			n, err := a.store.Purge(ctx, tick)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"tick": tick, "purged": n})
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
