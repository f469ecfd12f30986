/*
main.go - Application entry point

PURPOSE:
  Command line for the appropriation engine: runs the HTTP server and the
  maintenance jobs that operate on the same store.

COMMANDS:
  serve            HTTP API with the nightly horizon scheduler
  sync-payments    Extend every open-ended schedule once and exit
  import-aliases   Load an XLSX account alias sheet
  seed             Apply a built-in scenario id or a scenario YAML file

STARTUP SEQUENCE (serve):
  1. Load configuration (defaults, .env, environment, flags)
  2. Initialize structured logging
  3. Open the store (SQLite, or in memory for ":memory:")
  4. Wire notifiers, person registry and grant authorization
  5. Start the horizon scheduler
  6. Start the server with graceful shutdown

COMMAND-LINE FLAGS:
  --db         SQLite database path (env DB_PATH)
  --log-level  debug, info, warn, error (env LOG_LEVEL)
  --port       HTTP server port, serve only (env PORT)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler, waiting for a running job
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server serve --db=./data/appropriation.db

  # Demo server with a scenario loaded
  ./server seed modification --db=demo.db && ./server serve --db=demo.db

  # Nightly job from an external scheduler
  SCHEDULER_ENABLED=false ./server sync-payments

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - api/scheduler.go: Horizon scheduler
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/warp/appropriation-engine/api"
	"github.com/warp/appropriation-engine/config"
	"github.com/warp/appropriation-engine/core"
	"github.com/warp/appropriation-engine/core/store"
	"github.com/warp/appropriation-engine/factory"
	"github.com/warp/appropriation-engine/notify"
	"github.com/warp/appropriation-engine/registry"
	"github.com/warp/appropriation-engine/store/sqlite"
)

func main() {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "server",
		Short:         "Appropriation and payment schedule engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (\":memory:\" for a throwaway store)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = v.BindPFlag("DB_PATH", rootCmd.PersistentFlags().Lookup("db"))
	_ = v.BindPFlag("LOG_LEVEL", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serveCmd(v))
	rootCmd.AddCommand(syncCmd(v))
	rootCmd.AddCommand(importAliasesCmd(v))
	rootCmd.AddCommand(seedCmd(v))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func serveCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(v)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve()
		},
	}
	cmd.Flags().String("port", "", "HTTP server port")
	_ = v.BindPFlag("PORT", cmd.Flags().Lookup("port"))
	return cmd
}

func syncCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-payments",
		Short: "Extend every open-ended payment schedule to the current horizon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(v)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := api.NewHorizonScheduler(a.svc, a.cfg.HorizonCron, a.logger).RunNow(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d, removed %d payments\n", res.Added, res.Removed)
			return nil
		},
	}
}

func importAliasesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "import-aliases [file.xlsx]",
		Short: "Import account aliases from the first sheet of a workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(v)
			if err != nil {
				return err
			}
			defer a.close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			imp, err := factory.ReadAccountAliases(f)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			ctx := cmd.Context()
			err = a.svc.Store.WithTx(ctx, func(st core.Store) error {
				for _, alias := range imp.Aliases {
					if err := st.SaveAccountAlias(ctx, alias); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			if len(imp.Duplicates) > 0 {
				a.logger.Warn("duplicate account aliases, last row kept", "keys", imp.Duplicates)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d aliases\n", len(imp.Aliases))
			return nil
		},
	}
}

func seedCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [scenario-id | file.yaml]",
		Short: "Apply a built-in scenario or a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(v)
			if err != nil {
				return err
			}
			defer a.close()

			s, err := scenarioFor(args[0])
			if err != nil {
				return err
			}
			res, err := s.Apply(cmd.Context(), a.svc)
			if err != nil {
				return err
			}
			for key, id := range res.Cases {
				fmt.Fprintf(cmd.OutOrStdout(), "case %s: %s\n", key, id)
			}
			return nil
		},
	}
}

func scenarioFor(arg string) (*factory.Scenario, error) {
	if !strings.HasSuffix(arg, ".yaml") && !strings.HasSuffix(arg, ".yml") {
		return factory.FindBuiltin(arg)
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, err
	}
	return factory.Parse(data)
}

// =============================================================================
// WIRING
// =============================================================================

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	svc    *core.Service
	closer func() error
}

func setup(v *viper.Viper) (*app, error) {
	cfg, err := config.LoadInto(v)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, closer: func() error { return nil }}
	var st core.TxStore
	if cfg.DBPath == ":memory:" {
		st = store.NewTxMemory()
	} else {
		db, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		st, a.closer = db, db.Close
	}

	a.svc = core.NewService(st)
	a.svc.Logger = logger
	a.svc.Accounting = core.AccountingConfig{Department: cfg.AccountingDepartment, Kind: cfg.AccountingKind}

	notifiers := notify.Multi{notify.LogNotifier{Logger: logger}}
	if cfg.SMTPAddr != "" {
		notifiers = append(notifiers, &notify.EmailNotifier{
			Addr: cfg.SMTPAddr,
			From: cfg.SMTPFrom,
			To:   []string{cfg.NotifyTo},
		})
	}
	a.svc.Notifier = notifiers

	logger.Info("store opened", "db", cfg.DBPath)
	return a, nil
}

func (a *app) close() {
	if err := a.closer(); err != nil {
		a.logger.Error("closing store", "error", err)
	}
}

func (a *app) handler() *api.Handler {
	h := api.NewHandler(a.svc)
	if a.cfg.RegistryURL != "" {
		h.Registry = registry.NewHTTP(a.cfg.RegistryURL)
	}
	if len(a.cfg.Managers) > 0 {
		managers := make(map[string]bool, len(a.cfg.Managers))
		for _, m := range a.cfg.Managers {
			managers[m] = true
		}
		h.Authorizer = core.RoleAuthorizer{Managers: managers}
	}
	return h
}

func (a *app) serve() error {
	scheduler := api.NewHorizonScheduler(a.svc, a.cfg.HorizonCron, a.logger)
	if a.cfg.SchedulerEnabled {
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	server := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      api.NewRouter(a.handler(), a.cfg.CORSOrigins, a.logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-quit:
	}

	a.logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}
