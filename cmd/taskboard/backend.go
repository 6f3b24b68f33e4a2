package main

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/fareidzulkifli/task-manager/board"
	"github.com/fareidzulkifli/task-manager/config"
	"github.com/fareidzulkifli/task-manager/storage"
)

// backend is the storage stack selected by the configuration.
type backend struct {
	store   board.Store
	patcher board.Patcher
	queue   *azqueue.QueueClient
	redis   *redis.Client
	migrate func(ctx context.Context) error
	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	b := &backend{}
	switch cfg.StoreDriver {
	case config.DriverTables:
		tables, err := storage.NewTables(cfg.StorageConnectionString, cfg.OrgsTable, cfg.ProjectsTable, cfg.TasksTable)
		if err != nil {
			return nil, err
		}
		b.store, b.migrate = tables, tables.Init
	case config.DriverPostgres:
		pg, err := storage.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.store, b.migrate = pg, pg.Migrate
		b.closers = append(b.closers, pg.Close)
	case config.DriverSQLite:
		db, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.store, b.migrate = db, db.Migrate
		b.closers = append(b.closers, func() { _ = db.Close() })
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if opts := cfg.RedisOptions(); opts != nil {
		b.redis = redis.NewClient(opts)
		b.closers = append(b.closers, func() { _ = b.redis.Close() })
		if cfg.CacheTTL > 0 {
			b.store = storage.NewCache(b.store, b.redis, cfg.CacheTTL)
		}
	}

	b.patcher = b.store
	if cfg.PatchQueue != "" {
		q, err := storage.NewQueueClient(cfg.StorageConnectionString, cfg.PatchQueue)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.queue = q
		b.patcher = storage.NewQueue(q)
		schema := b.migrate
		b.migrate = func(ctx context.Context) error {
			if err := schema(ctx); err != nil {
				return err
			}
			return storage.EnsureQueue(ctx, q)
		}
	}
	log.WithFields(log.Fields{
		"driver": cfg.StoreDriver,
		"cache":  b.redis != nil && cfg.CacheTTL > 0,
		"queue":  cfg.PatchQueue,
	}).Debug("storage configured")
	return b, nil
}
