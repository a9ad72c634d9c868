// Package app assembles the services of benchtop from configuration and
// registers the handlers that react to entity events.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/localnerve/benchtop/internal/config"
	"github.com/localnerve/benchtop/internal/database"
	"github.com/localnerve/benchtop/internal/docsync"
	"github.com/localnerve/benchtop/internal/events"
	"github.com/localnerve/benchtop/internal/locking"
	"github.com/localnerve/benchtop/internal/nextcloud"
	"github.com/localnerve/benchtop/internal/services"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App holds the wired services shared by the server and the CLI
type App struct {
	Config *config.Config
	Logger *logrus.Logger
	DB     *gorm.DB
	Redis  *redis.Client
	Locker locking.Locker
	Remote nextcloud.RemoteStore

	Bus        *events.Bus
	Store      *events.Store
	Journal    *events.Journal
	Sync       *docsync.Synchronizer
	Allocation *services.AllocationService
	Costs      *services.CostService
	Imports    *services.ImportService
	Quotations *services.QuotationSyncService
}

// Deps are the connections an App is built on
type Deps struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Locker locking.Locker
	Remote nextcloud.RemoteStore
}

// New connects every configured backend and wires the services. Without
// REDIS_ADDR locks are process local, without NEXTCLOUD_URL document sync is
// off and local files stay where they are.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	db, err := database.Connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}

	deps := Deps{DB: db}

	if cfg.RedisAddr != "" {
		rdb, err := locking.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			_ = database.Close(db)
			return nil, err
		}
		deps.Redis = rdb
		deps.Locker = locking.NewRedisLocker(rdb, "benchtop:")
	} else {
		logger.Warn("REDIS_ADDR not set, using in-process locks")
		deps.Locker = locking.NewLocalLocker()
	}

	if cfg.NextcloudURL != "" {
		timeout := time.Duration(cfg.NextcloudTimeoutSeconds) * time.Second
		deps.Remote = nextcloud.NewWebDAVStore(cfg.NextcloudURL, cfg.NextcloudUser, cfg.NextcloudPassword, timeout)
	} else {
		logger.Warn("NEXTCLOUD_URL not set, document sync disabled")
		deps.Remote = nextcloud.DisabledStore{}
	}

	return Wire(cfg, logger, deps), nil
}

// Wire builds the services on already opened connections
func Wire(cfg *config.Config, logger *logrus.Logger, deps Deps) *App {
	a := &App{
		Config: cfg,
		Logger: logger,
		DB:     deps.DB,
		Redis:  deps.Redis,
		Locker: deps.Locker,
		Remote: deps.Remote,
	}

	a.Bus = events.NewBus(logger)
	a.Store = events.NewStore(a.DB, a.Bus)
	a.Journal = events.NewJournal(a.DB)
	a.Bus.SetRecorder(a.Journal)

	storage := docsync.NewLocalStorage(cfg.LocalStoragePath)
	a.Sync = docsync.New(a.DB, a.Remote, docsync.NewLayout(cfg.NextcloudBasePath), storage, logger)

	a.Allocation = services.NewAllocationService(a.DB, a.Locker, logger)
	a.Allocation.DefaultBoards = cfg.DefaultBoardsCount
	a.Costs = services.NewCostService(a.DB, logger)
	a.Imports = services.NewImportService(a.Store, storage, logger)
	a.Quotations = services.NewQuotationSyncService(a.DB, a.Sync, logger)

	registerAllocationHandlers(a.Bus, a.Allocation, logger)
	a.Sync.Register(a.Bus)

	return a
}

// HealthDeps returns the optional dependencies to probe
func (a *App) HealthDeps() services.HealthDeps {
	var deps services.HealthDeps
	if pinger, ok := a.Remote.(services.Pinger); ok {
		deps.Nextcloud = pinger
	}
	if a.Redis != nil {
		deps.Redis = services.PingFunc(func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		})
	}
	return deps
}

// Close releases the connections
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	errs = append(errs, database.Close(a.DB))
	return errors.Join(errs...)
}
