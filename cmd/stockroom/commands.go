package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"time"

	_ "net/http/pprof"

	"github.com/abgdnv/stockroom/internal/app"
	"github.com/abgdnv/stockroom/internal/config"
	"github.com/abgdnv/stockroom/pkg/bootstrap"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	reportSummary = "summary"
	reportDaily   = "daily"
	reportMonthly = "monthly"
	reportLow     = "low-stock"
)

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           config.ServiceName,
		Short:         "Track retail inventory, stock movements and profit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "path to the YAML configuration file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configFile)
		},
	}

	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a timestamped copy of the catalog and ledger and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDependencies(cmd.Context(), configFile, func(ctx context.Context, deps *app.Dependencies) error {
				backup, err := deps.InventoryService.Backup(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), backup)
			})
		},
	}

	var from string
	restoreCmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace the stored catalog and ledger with a backup and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDependencies(cmd.Context(), configFile, func(ctx context.Context, deps *app.Dependencies) error {
				if err := deps.Store.Restore(ctx, from); err != nil {
					return err
				}
				snapshot := deps.Store.Snapshot(ctx)
				return printJSON(cmd.OutOrStdout(), restoreResult{
					From:      from,
					Revision:  snapshot.Revision,
					Products:  len(snapshot.Products),
					Movements: len(snapshot.Movements),
				})
			})
		},
	}
	restoreCmd.Flags().StringVarP(&from, "from", "f", "", "backup file written by the backup command")
	_ = restoreCmd.MarkFlagRequired("from")

	var kind string
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print a report as JSON and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDependencies(cmd.Context(), configFile, func(ctx context.Context, deps *app.Dependencies) error {
				out, err := buildReport(ctx, deps, kind)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	reportCmd.Flags().StringVarP(&kind, "kind", "k", reportSummary,
		fmt.Sprintf("report to print: %s, %s, %s or %s", reportSummary, reportDaily, reportMonthly, reportLow))

	root.AddCommand(serveCmd, backupCmd, restoreCmd, reportCmd)
	return root
}

type restoreResult struct {
	From      string `json:"from"`
	Revision  int64  `json:"revision"`
	Products  int    `json:"products"`
	Movements int    `json:"movements"`
}

func buildReport(ctx context.Context, deps *app.Dependencies, kind string) (any, error) {
	svc := deps.InventoryService
	switch kind {
	case reportSummary:
		return svc.Summary(ctx)
	case reportDaily:
		return svc.DailyProfit(ctx)
	case reportMonthly:
		return svc.MonthlyProfit(ctx)
	case reportLow:
		return svc.LowStock(ctx, deps.Reports.LowStockThreshold)
	default:
		return nil, fmt.Errorf("unknown report %q", kind)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// setup loads the configuration and installs the default logger.
func setup(configFile string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func withDependencies(ctx context.Context, configFile string, fn func(context.Context, *app.Dependencies) error) (err error) {
	cfg, logger, err := setup(configFile)
	if err != nil {
		return err
	}
	deps, err := app.SetupDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		err = errors.Join(err, deps.Close())
	}()
	return fn(ctx, deps)
}

// runServe starts the HTTP server, the backup scheduler, storage maintenance
// and, when enabled, the pprof server. It returns after ctx is cancelled and
// everything has shut down.
func runServe(ctx context.Context, configFile string) error {
	cfg, logger, err := setup(configFile)
	if err != nil {
		return err
	}

	deps, err := app.SetupDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}()
	logger.Info("Storage opened", slog.String("driver", cfg.Storage.Driver), slog.String("dir", cfg.Storage.Dir))

	httpServer := app.SetupHttpServer(deps, cfg)
	pprofServer := &http.Server{
		Addr:              cfg.PProf.Addr,
		ReadHeaderTimeout: 2 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start the HTTP server
	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	// gracefully shutdown HTTP server on context cancellation
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return deps.Scheduler.Run(gCtx)
	})
	g.Go(func() error {
		return deps.Maintenance(gCtx)
	})

	// Start the pprof server if enabled
	if cfg.PProf.Enabled {
		g.Go(func() error {
			logger.Info("Pprof server listening", slog.String("addr", pprofServer.Addr))
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof server failed: %w", err)
			}
			return nil
		})
		// gracefully shutdown pprof server on context cancellation
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down pprof server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	logger.Info("application stopped gracefully")
	return nil
}
