package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/bookshelf/internal/config"
	"github.com/listenupapp/bookshelf/internal/logger"
	"github.com/listenupapp/bookshelf/internal/schema"
	"github.com/listenupapp/bookshelf/internal/store"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.DB
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the key-value store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	db, err := store.Open(store.Options{
		Path:     cfg.Store.DBPath(),
		InMemory: cfg.Store.InMemory,
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &StoreHandle{DB: db}, nil
}

// Bootstrap records the schema state after startup.
type Bootstrap struct {
	Version int
	Seeded  bool
}

// ProvideBootstrap upgrades the schema and loads the default dataset once.
func ProvideBootstrap(i do.Injector) (*Bootstrap, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	ctx := context.Background()

	opts := schema.Options{
		SkipSeed: !cfg.Seed.Enabled,
		Logger:   log.Logger,
	}
	if cfg.Seed.File != "" {
		ds, err := schema.LoadDatasetFile(cfg.Seed.File)
		if err != nil {
			return nil, err
		}
		opts.Seed = ds
	}

	if err := schema.Initialize(ctx, storeHandle.DB, opts); err != nil {
		return nil, err
	}

	version, err := storeHandle.Version(ctx)
	if err != nil {
		return nil, err
	}
	seeded, err := schema.Seeded(ctx, storeHandle.DB)
	if err != nil {
		return nil, err
	}

	log.Info("Library ready", "schema_version", version, "seeded", seeded)

	return &Bootstrap{Version: version, Seeded: seeded}, nil
}
