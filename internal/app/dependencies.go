package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/spraynsniff/storefront/internal/domain"
	healthcheck "github.com/spraynsniff/storefront/internal/health"
	"github.com/spraynsniff/storefront/internal/storage/file"
	"github.com/spraynsniff/storefront/internal/storage/memory"
	"github.com/spraynsniff/storefront/internal/storage/postgres"
)

const storageCheckTimeout = 2 * time.Second

// runtimeDependencies — хранилища, выбранные драйвером из конфигурации.
type runtimeDependencies struct {
	snapshots  domain.CartSnapshotRepository
	outboxRepo domain.OutboxRepository
	// fileDir заполнен только для драйвера file.
	fileDir        string
	storageChecker healthcheck.Checker
	closeFn        func() error
}

// initRuntimeDependencies создаёт хранилища снапшотов и outbox.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	switch driver {
	case "", StorageDriverMemory:
		logger.Info("using in-memory cart snapshots")
		return &runtimeDependencies{
			snapshots:  memory.NewCartSnapshotRepository(),
			outboxRepo: memory.NewOutboxRepository(),
			storageChecker: healthcheck.NewSimpleChecker("snapshots", func() error {
				return nil
			}),
		}, nil

	case StorageDriverFile:
		repo, err := file.NewCartSnapshotRepository(cfg.FileDir)
		if err != nil {
			return nil, fmt.Errorf("init file snapshots: %w", err)
		}
		logger.WithField("dir", repo.Dir()).Info("using file cart snapshots")
		return &runtimeDependencies{
			snapshots:  repo,
			outboxRepo: memory.NewOutboxRepository(),
			fileDir:    repo.Dir(),
			storageChecker: healthcheck.NewSimpleChecker("snapshots", func() error {
				info, err := os.Stat(repo.Dir())
				if err != nil {
					return err
				}
				if !info.IsDir() {
					return fmt.Errorf("%s is not a directory", repo.Dir())
				}
				return nil
			}),
		}, nil

	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, errors.New("postgres storage driver requires STOREFRONT_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		logger.Info("using postgres cart snapshots")
		return &runtimeDependencies{
			snapshots:  postgres.NewCartSnapshotRepository(store),
			outboxRepo: postgres.NewOutboxRepository(store),
			storageChecker: healthcheck.NewSimpleChecker("snapshots", func() error {
				ctx, cancel := context.WithTimeout(context.Background(), storageCheckTimeout)
				defer cancel()
				return store.Ping(ctx)
			}),
			closeFn: store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %q (use memory|file|postgres)", cfg.StorageDriver)
	}
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}
