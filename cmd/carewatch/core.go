package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/carewatch-core/internal/backend"
	"github.com/nerrad567/carewatch-core/internal/care"
	"github.com/nerrad567/carewatch-core/internal/entity"
	"github.com/nerrad567/carewatch-core/internal/infrastructure/config"
	"github.com/nerrad567/carewatch-core/internal/infrastructure/database"
	"github.com/nerrad567/carewatch-core/internal/infrastructure/logging"
)

// core holds the components every command shares: the backend client,
// the entity cache (optionally backed by SQLite snapshots) and the scope.
type core struct {
	cfg    *config.Config
	log    *logging.Logger
	client *backend.Client
	cache  *entity.Cache
	scope  *care.Scope
	db     *database.DB // nil when the snapshot store is disabled
	loc    *time.Location
}

// newCore wires the backend client, cache and scope from cfg.
//
// Parameters:
//   - ctx: Context for opening and migrating the snapshot database
//   - cfg: Loaded configuration
//   - log: Logger shared by every component
//
// Returns:
//   - *core: Wired components; call Close when done
//   - error: If the client cannot be built or the database cannot be opened
func newCore(ctx context.Context, cfg *config.Config, log *logging.Logger) (*core, error) {
	client, err := backend.New(cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("creating backend client: %w", err)
	}
	client.SetLogger(log.Component("backend"))

	cache := entity.NewCache(client, entity.TTLs{
		Persons:  cfg.Cache.TTL(string(entity.KindPersons)),
		Devices:  cfg.Cache.TTL(string(entity.KindDevices)),
		Mappings: cfg.Cache.TTL(string(entity.KindMappings)),
	})
	cache.SetLogger(log.Component("entity_cache"))

	loc, err := time.LoadLocation(cfg.Site.Timezone)
	if err != nil {
		log.Warn("unknown site timezone, using UTC", "timezone", cfg.Site.Timezone, "error", err)
		loc = time.UTC
	}

	c := &core{
		cfg:    cfg,
		log:    log,
		client: client,
		cache:  cache,
		loc:    loc,
	}

	if cfg.Database.Enabled {
		if err := c.openSnapshots(ctx); err != nil {
			return nil, err
		}
	}

	c.scope = care.NewScope(cache, client, care.Options{
		HistorySize: cfg.Scope.HistorySize,
		AlertStatus: cfg.Scope.AlertStatus,
	})
	c.scope.SetLogger(log.Component("scope"))

	return c, nil
}

// openSnapshots opens the SQLite database, applies migrations and
// restores the last stored entity collections into the cache.
func (c *core) openSnapshots(ctx context.Context) error {
	db, err := database.Open(ctx, database.Config{
		Path:        c.cfg.Database.Path,
		WALMode:     c.cfg.Database.WALMode,
		BusyTimeout: c.cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return fmt.Errorf("running migrations: %w", err)
	}
	c.db = db
	c.log.Debug("database ready", "path", c.cfg.Database.Path)

	c.cache.SetSnapshotStore(entity.NewSQLiteSnapshotStore(db.DB))
	restored, err := c.cache.Restore(ctx)
	if err != nil {
		// A broken snapshot only costs a cold start.
		c.log.Warn("restoring entity snapshots failed", "error", err)
		return nil
	}
	c.log.Info("entity snapshots restored", "collections", restored)
	return nil
}

// Close releases the database if one was opened.
func (c *core) Close() {
	if c.db == nil {
		return
	}
	if err := c.db.Close(); err != nil {
		c.log.Error("error closing database", "error", err)
	}
}
