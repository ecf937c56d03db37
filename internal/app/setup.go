// Package app wires the stockroom components together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/abgdnv/stockroom/internal/analytics"
	"github.com/abgdnv/stockroom/internal/backup"
	"github.com/abgdnv/stockroom/internal/config"
	"github.com/abgdnv/stockroom/internal/service"
	"github.com/abgdnv/stockroom/internal/store"
	"github.com/abgdnv/stockroom/internal/store/badgerdb"
	"github.com/abgdnv/stockroom/internal/store/jsonfile"
	"github.com/abgdnv/stockroom/internal/transport/rest"
	pkgconfig "github.com/abgdnv/stockroom/pkg/config"
	"github.com/abgdnv/stockroom/pkg/server"
	"github.com/go-chi/chi/v5"
)

// BadgerSubdir is where the badger driver keeps its files inside the storage dir.
const BadgerSubdir = "badger"

type Dependencies struct {
	Store            *store.Store
	Analytics        *analytics.Analytics
	InventoryService service.InventoryService
	Scheduler        *backup.Scheduler
	Reports          pkgconfig.ReportsConfig
	Logger           *slog.Logger

	// Maintenance runs storage housekeeping until ctx is done.
	Maintenance func(ctx context.Context) error
	// Close releases the storage.
	Close func() error
}

// SetupDependencies opens the configured storage and builds the store, analytics and service on top of it.
func SetupDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	persister, maintenance, closeFn, err := openPersister(cfg, logger)
	if err != nil {
		return nil, err
	}

	st, err := store.New(ctx, persister,
		store.WithLogger(logger),
		store.WithLoadFallback(cfg.Storage.LoadFallback))
	if err != nil {
		return nil, errors.Join(err, closeFn())
	}
	reports := analytics.New(st)

	return &Dependencies{
		Store:            st,
		Analytics:        reports,
		InventoryService: service.NewService(st, reports),
		Scheduler:        backup.NewScheduler(st, cfg.Backup.Interval, logger),
		Reports:          cfg.Reports,
		Logger:           logger,
		Maintenance:      maintenance,
		Close:            closeFn,
	}, nil
}

func openPersister(cfg *config.Config, logger *slog.Logger) (store.Persister, func(context.Context) error, func() error, error) {
	noMaintenance := func(context.Context) error { return nil }
	switch cfg.Storage.Driver {
	case pkgconfig.StorageDriverBadger:
		dbCfg := badgerdb.DefaultConfig(filepath.Join(cfg.Storage.Dir, BadgerSubdir), cfg.Backup.Dir)
		p, err := badgerdb.Open(dbCfg, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open badger storage: %w", err)
		}
		return p, p.RunGC, p.Close, nil
	case pkgconfig.StorageDriverFile:
		p, err := jsonfile.New(cfg.Storage.Dir, cfg.Backup.Dir, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open file storage: %w", err)
		}
		return p, noMaintenance, func() error { return nil }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported storage driver: %q", cfg.Storage.Driver)
	}
}

// SetupHttpHandler builds the router with middleware and all routes.
// Used by E2E tests to run the API in an httptest.Server.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

// wireRoutes sets up the HTTP routes of the stockroom API.
func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	handler := rest.NewHandler(deps.InventoryService, deps.Reports, deps.Logger)
	handler.RegisterRoutes(mux)
}

// SetupHttpServer creates and configures the HTTP server.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	return server.NewHTTPServer(cfg.HTTPServer, SetupHttpHandler(deps))
}
