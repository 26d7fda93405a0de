// Package store implements a transactional collection store on top of badger:
// named collections of JSON records keyed by auto-incremented integers, with
// unique and non-unique secondary indexes and atomic multi-collection
// transactions.
package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/bookshelf/internal/errors"
	"github.com/listenupapp/bookshelf/internal/logger"
)

// Mode selects whether a transaction may write.
type Mode int

// Transaction modes.
const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// Options configures Open.
type Options struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	Logger   *slog.Logger
}

// DB wraps a badger database instance.
type DB struct {
	kv     *badger.DB
	logger *slog.Logger

	// writeMu serializes read-write transactions within the process, so two
	// workflows never interleave between a lookup and the write it guards.
	writeMu sync.Mutex

	mu          sync.RWMutex
	collections map[string]*CollectionSchema

	closed atomic.Bool
}

// Open opens (or creates) the store and loads the collection catalog.
func Open(opts Options) (*DB, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Discard().Logger
	}

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.Validation("store path is required unless running in memory")
		}
		bopts = badger.DefaultOptions(opts.Path)
		bopts.SyncWrites = true
		bopts.CompactL0OnClose = true
	}
	bopts.Logger = (&logger.Logger{Logger: log}).ForKV()

	kv, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreUnavailable, "open badger db")
	}

	db := &DB{
		kv:          kv,
		logger:      log,
		collections: make(map[string]*CollectionSchema),
	}
	if err := db.loadCatalog(); err != nil {
		_ = kv.Close()
		return nil, err
	}

	log.Info("store opened", "path", opts.Path, "in_memory", opts.InMemory, "collections", len(db.collections))
	return db, nil
}

// Close gracefully closes the database connection. Calling it twice is harmless.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	db.logger.Info("closing store")
	return db.kv.Close()
}

func (db *DB) loadCatalog() error {
	prefix := []byte(metaCollectionPrefix)
	return db.kv.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var schema CollectionSchema
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &schema)
			})
			if err != nil {
				return fmt.Errorf("decode collection schema %s: %w", it.Item().Key(), err)
			}
			db.collections[schema.Name] = &schema
		}
		return nil
	})
}

// Collections returns the definitions of every collection, sorted by name.
func (db *DB) Collections() []CollectionSchema {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]CollectionSchema, 0, len(db.collections))
	for _, s := range db.collections {
		out = append(out, *s.clone())
	}
	slices.SortFunc(out, func(a, b CollectionSchema) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// Version returns the stored schema version, 0 for a fresh store.
func (db *DB) Version(ctx context.Context) (int, error) {
	if err := db.ready(ctx); err != nil {
		return 0, err
	}
	var v int
	err := db.kv.View(func(txn *badger.Txn) error {
		var err error
		v, err = readVersion(txn)
		return err
	})
	return v, translate(err, "read schema version")
}

func (db *DB) ready(ctx context.Context) error {
	if db.closed.Load() {
		return errors.ErrStoreUnavailable
	}
	return ctx.Err()
}

// RunTransaction runs fn with every named collection available. A read-write
// transaction commits only when fn returns nil; otherwise nothing it wrote is
// visible. Errors from fn are returned unchanged, commit failures as
// TRANSACTION_FAILURE.
func (db *DB) RunTransaction(ctx context.Context, names []string, mode Mode, fn func(*Txn) error) error {
	if err := db.ready(ctx); err != nil {
		return err
	}

	scope, err := db.scope(names)
	if err != nil {
		return err
	}

	if mode == ReadWrite {
		db.writeMu.Lock()
		defer db.writeMu.Unlock()
	}

	btxn := db.kv.NewTransaction(mode == ReadWrite)
	defer btxn.Discard()

	tx := &Txn{ctx: ctx, txn: btxn, mode: mode, scope: scope}
	defer tx.finish()

	if err := fn(tx); err != nil {
		return err
	}

	if mode == ReadWrite {
		if err := btxn.Commit(); err != nil {
			return translate(err, "commit")
		}
	}
	return nil
}

// View runs fn in a read-only transaction.
func (db *DB) View(ctx context.Context, names []string, fn func(*Txn) error) error {
	return db.RunTransaction(ctx, names, ReadOnly, fn)
}

// Update runs fn in a read-write transaction.
func (db *DB) Update(ctx context.Context, names []string, fn func(*Txn) error) error {
	return db.RunTransaction(ctx, names, ReadWrite, fn)
}

func (db *DB) scope(names []string) (map[string]*CollectionSchema, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	scope := make(map[string]*CollectionSchema, len(names))
	for _, name := range names {
		schema, ok := db.collections[name]
		if !ok {
			return nil, errCollectionNotFound(name)
		}
		scope[name] = schema
	}
	return scope, nil
}

func readVersion(txn *badger.Txn) (int, error) {
	item, err := txn.Get([]byte(metaVersionKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	return int(decodeUint(val)), nil //nolint:gosec // versions are small
}
