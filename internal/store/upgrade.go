package store

import (
	"context"
	"encoding/json"
	"maps"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/bookshelf/internal/errors"
)

// Upgrade changes the collection catalog. It is only valid inside the
// function passed to DB.Upgrade.
type Upgrade struct {
	txn         *badger.Txn
	ctx         context.Context
	from        int
	collections map[string]*CollectionSchema
}

// From returns the schema version being upgraded from (0 for a new store).
func (u *Upgrade) From() int { return u.from }

// Upgrade runs fn when the stored schema version is lower than version, then
// records the new version. Catalog changes and the version bump commit
// together. Returns true when fn ran.
func (db *DB) Upgrade(ctx context.Context, version int, fn func(*Upgrade) error) (bool, error) {
	if err := db.ready(ctx); err != nil {
		return false, err
	}
	if version < 1 {
		return false, errors.Validationf("schema version must be positive, got %d", version)
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	btxn := db.kv.NewTransaction(true)
	defer btxn.Discard()

	current, err := readVersion(btxn)
	if err != nil {
		return false, translate(err, "read schema version")
	}
	if current >= version {
		return false, nil
	}

	db.mu.RLock()
	collections := make(map[string]*CollectionSchema, len(db.collections))
	for name, s := range db.collections {
		collections[name] = s.clone()
	}
	db.mu.RUnlock()

	u := &Upgrade{txn: btxn, ctx: ctx, from: current, collections: collections}
	if err := fn(u); err != nil {
		return false, err
	}

	if err := btxn.Set([]byte(metaVersionKey), encodeUint(uint64(version))); err != nil { //nolint:gosec // version >= 1
		return false, translate(err, "write schema version")
	}
	if err := btxn.Commit(); err != nil {
		return false, translate(err, "commit schema upgrade")
	}

	db.mu.Lock()
	db.collections = u.collections
	db.mu.Unlock()

	db.logger.Info("schema upgraded", "from", current, "to", version, "collections", len(u.collections))
	return true, nil
}

// CreateCollection defines a new collection keyed by an auto-incremented "id".
func (u *Upgrade) CreateCollection(name string) error {
	if !validName(name) {
		return errors.Validationf("invalid collection name %q", name)
	}
	if _, ok := u.collections[name]; ok {
		return errors.ConstraintViolationf("collection %q already exists", name)
	}
	schema := &CollectionSchema{Name: name, KeyPath: "id", Indexes: []IndexSpec{}}
	if err := u.saveSchema(schema); err != nil {
		return err
	}
	u.collections[name] = schema
	return nil
}

// CreateIndex adds an index to an existing collection and backfills it from
// the records already stored. Backfilling a unique index over duplicate
// values fails with CONSTRAINT_VIOLATION.
func (u *Upgrade) CreateIndex(collection string, spec IndexSpec) error {
	schema, ok := u.collections[collection]
	if !ok {
		return errCollectionNotFound(collection)
	}
	if !validName(spec.Name) {
		return errors.Validationf("invalid index name %q", spec.Name)
	}
	if spec.KeyPath == "" {
		spec.KeyPath = spec.Name
	}
	if _, exists := schema.index(spec.Name); exists {
		return errors.ConstraintViolationf("index %q already exists on %q", spec.Name, collection)
	}

	next := schema.clone()
	next.Indexes = append(next.Indexes, spec)
	if err := u.backfill(next, spec); err != nil {
		return err
	}
	if err := u.saveSchema(next); err != nil {
		return err
	}
	u.collections[collection] = next
	return nil
}

// Collections lists the collection names defined so far in this upgrade.
func (u *Upgrade) Collections() []string {
	return slices.Sorted(maps.Keys(u.collections))
}

func (u *Upgrade) backfill(schema *CollectionSchema, spec IndexSpec) error {
	type entry struct {
		key int64
		enc []byte
	}
	var entries []entry

	prefix := recordsPrefix(schema.Name)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := u.txn.NewIterator(opts)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := u.ctx.Err(); err != nil {
			it.Close()
			return err
		}
		stored, err := it.Item().ValueCopy(nil)
		if err != nil {
			it.Close()
			return translate(err, "backfill "+schema.Name)
		}
		raw, err := resolveValue(u.txn, schema.Name, idFromKeySuffix(it.Item().Key()), stored)
		if err != nil {
			it.Close()
			return translate(err, "backfill "+schema.Name)
		}
		fields, err := decodeFields(raw)
		if err != nil {
			it.Close()
			return errors.Wrapf(err, errors.CodeInternal, "decode %s record", schema.Name)
		}
		if enc, ok := encodeIndexValue(fields[spec.KeyPath]); ok {
			entries = append(entries, entry{key: idFromKeySuffix(it.Item().Key()), enc: enc})
		}
	}
	it.Close()

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if spec.Unique {
			if _, dup := seen[string(e.enc)]; dup {
				return errUniqueViolation(schema.Name, spec.Name, describe(e.enc))
			}
			seen[string(e.enc)] = struct{}{}
		}
		if err := u.txn.Set(indexEntryKey(schema.Name, spec.Name, e.enc, e.key), nil); err != nil {
			return translate(err, "backfill "+schema.Name+"."+spec.Name)
		}
	}
	return nil
}

func (u *Upgrade) saveSchema(schema *CollectionSchema) error {
	raw, err := json.Marshal(schema)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode collection schema")
	}
	return translate(u.txn.Set(collectionMetaKey(schema.Name), raw), "write collection schema")
}
