package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/bookshelf/internal/errors"
)

// Txn is one open transaction. It is only valid inside the function passed to
// RunTransaction.
type Txn struct {
	ctx   context.Context
	txn   *badger.Txn
	mode  Mode
	scope map[string]*CollectionSchema
	done  bool
}

func (t *Txn) finish() { t.done = true }

// Mode reports whether the transaction may write.
func (t *Txn) Mode() Mode { return t.mode }

// Context returns the context the transaction was started with.
func (t *Txn) Context() context.Context { return t.ctx }

// Collection opens a collection named in the transaction scope.
func (t *Txn) Collection(name string) (*Collection, error) {
	if t.done {
		return nil, errFinished()
	}
	schema, ok := t.scope[name]
	if !ok {
		return nil, errNotInScope(name)
	}
	return &Collection{tx: t, schema: schema}, nil
}

func (t *Txn) check() error {
	if t.done {
		return errFinished()
	}
	return t.ctx.Err()
}

// Collection is a handle on one collection inside a transaction.
type Collection struct {
	tx     *Txn
	schema *CollectionSchema
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.schema.Name }

// Get decodes the record stored under key into dest.
// Returns NOT_FOUND if there is no such record.
func (c *Collection) Get(key int64, dest any) error {
	raw, err := c.getRaw(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode %s/%d: %w", c.schema.Name, key, err)
	}
	return nil
}

// Exists reports whether a record is stored under key.
func (c *Collection) Exists(key int64) (bool, error) {
	_, err := c.getRaw(key)
	if errors.Is(err, errors.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (c *Collection) getRaw(key int64) ([]byte, error) {
	_, raw, err := c.getStored(key)
	return raw, err
}

// getStored returns both the value under the record key and the record it
// resolves to. They differ only for chunked records.
func (c *Collection) getStored(key int64) (stored, raw []byte, err error) {
	if err := c.tx.check(); err != nil {
		return nil, nil, err
	}
	item, err := c.tx.txn.Get(recordKey(c.schema.Name, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, errNotFound(c.schema.Name, key)
	}
	if err != nil {
		return nil, nil, translate(err, "get "+c.schema.Name)
	}
	stored, err = item.ValueCopy(nil)
	if err != nil {
		return nil, nil, translate(err, "read "+c.schema.Name)
	}
	raw, err = resolveValue(c.tx.txn, c.schema.Name, key, stored)
	if err != nil {
		return nil, nil, translate(err, "read "+c.schema.Name)
	}
	return stored, raw, nil
}

// GetAll decodes every record, in key order, into dest, which must point to a slice.
func (c *Collection) GetAll(dest any) error {
	if err := c.tx.check(); err != nil {
		return err
	}
	prefix := recordsPrefix(c.schema.Name)
	var raws [][]byte
	err := c.iterate(prefix, true, func(item *badger.Item) error {
		stored, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		raw, err := resolveValue(c.tx.txn, c.schema.Name, idFromKeySuffix(item.Key()), stored)
		if err != nil {
			return err
		}
		raws = append(raws, raw)
		return nil
	})
	if err != nil {
		return translate(err, "scan "+c.schema.Name)
	}
	return decodeArray(raws, dest)
}

// Count returns the number of records in the collection.
func (c *Collection) Count() (int, error) {
	if err := c.tx.check(); err != nil {
		return 0, err
	}
	n := 0
	err := c.iterate(recordsPrefix(c.schema.Name), false, func(*badger.Item) error {
		n++
		return nil
	})
	return n, translate(err, "count "+c.schema.Name)
}

// GetAllKeysByIndex returns primary keys in index order. A nil value returns
// every indexed key; otherwise only keys whose indexed field equals value.
func (c *Collection) GetAllKeysByIndex(index string, value any) ([]int64, error) {
	if err := c.tx.check(); err != nil {
		return nil, err
	}
	prefix, err := c.lookupPrefix(index, value)
	if err != nil {
		return nil, err
	}
	var keys []int64
	err = c.iterate(prefix, false, func(item *badger.Item) error {
		keys = append(keys, idFromKeySuffix(item.Key()))
		return nil
	})
	if err != nil {
		return nil, translate(err, "scan index "+c.schema.Name+"."+index)
	}
	return keys, nil
}

// GetAllByIndex decodes the records matched by GetAllKeysByIndex into dest.
func (c *Collection) GetAllByIndex(index string, value any, dest any) error {
	keys, err := c.GetAllKeysByIndex(index, value)
	if err != nil {
		return err
	}
	raws := make([][]byte, 0, len(keys))
	for _, key := range keys {
		raw, err := c.getRaw(key)
		if err != nil {
			return err
		}
		raws = append(raws, raw)
	}
	return decodeArray(raws, dest)
}

// CountByIndex counts records whose indexed field equals value (or every
// indexed record when value is nil).
func (c *Collection) CountByIndex(index string, value any) (int, error) {
	keys, err := c.GetAllKeysByIndex(index, value)
	return len(keys), err
}

// Insert adds a new record and returns its key. A record without an "id"
// (absent, null or 0) gets the next auto-increment key; an explicit key that
// is already taken is a CONSTRAINT_VIOLATION.
func (c *Collection) Insert(record any) (int64, error) {
	return c.write(record, false)
}

// Put stores record, replacing any existing record with the same key.
// Records without a key are inserted.
func (c *Collection) Put(record any) (int64, error) {
	return c.write(record, true)
}

// Delete removes the record under key and its index entries. Deleting a
// missing key is not an error.
func (c *Collection) Delete(key int64) error {
	if err := c.writable(); err != nil {
		return err
	}
	stored, old, err := c.getStored(key)
	if errors.Is(err, errors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := c.removeIndexEntries(key, old); err != nil {
		return err
	}
	if err := deleteChunks(c.tx.txn, c.schema.Name, key, stored); err != nil {
		return translate(err, "delete "+c.schema.Name)
	}
	return translate(c.tx.txn.Delete(recordKey(c.schema.Name, key)), "delete "+c.schema.Name)
}

func (c *Collection) writable() error {
	if err := c.tx.check(); err != nil {
		return err
	}
	if c.tx.mode != ReadWrite {
		return errReadOnly(c.schema.Name)
	}
	return nil
}

func (c *Collection) write(record any, replace bool) (int64, error) {
	if err := c.writable(); err != nil {
		return 0, err
	}

	fields, err := toFields(record)
	if err != nil {
		return 0, errors.Wrapf(err, errors.CodeValidation, "encode %s record", c.schema.Name)
	}

	key, err := recordID(fields[c.schema.KeyPath])
	if err != nil {
		return 0, errors.Wrapf(err, errors.CodeValidation, "%s record key", c.schema.Name)
	}

	var stored, old []byte
	if key == 0 {
		if key, err = c.nextKey(); err != nil {
			return 0, err
		}
	} else {
		stored, old, err = c.getStored(key)
		switch {
		case err == nil && !replace:
			return 0, errKeyExists(c.schema.Name, key)
		case err != nil && !errors.Is(err, errors.ErrNotFound):
			return 0, err
		}
		if err := c.advanceKey(key); err != nil {
			return 0, err
		}
	}
	fields[c.schema.KeyPath] = key

	entries := indexEntries(c.schema, fields)
	if err := c.checkUnique(key, entries); err != nil {
		return 0, err
	}
	if old != nil {
		if err := c.removeIndexEntries(key, old); err != nil {
			return 0, err
		}
		if err := deleteChunks(c.tx.txn, c.schema.Name, key, stored); err != nil {
			return 0, translate(err, "write "+c.schema.Name)
		}
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return 0, errors.Wrapf(err, errors.CodeValidation, "encode %s record", c.schema.Name)
	}
	if err := putValue(c.tx.txn, c.schema.Name, key, raw); err != nil {
		return 0, translate(err, "write "+c.schema.Name)
	}
	for name, enc := range entries {
		if err := c.tx.txn.Set(indexEntryKey(c.schema.Name, name, enc, key), nil); err != nil {
			return 0, translate(err, "write index "+c.schema.Name+"."+name)
		}
	}
	return key, nil
}

// checkUnique fails if a unique index already maps the new value to another key.
func (c *Collection) checkUnique(key int64, entries map[string][]byte) error {
	for _, idx := range c.schema.Indexes {
		enc, ok := entries[idx.Name]
		if !idx.Unique || !ok {
			continue
		}
		var clash bool
		err := c.iterate(indexValuePrefix(c.schema.Name, idx.Name, enc), false, func(item *badger.Item) error {
			if idFromKeySuffix(item.Key()) != key {
				clash = true
			}
			return nil
		})
		if err != nil {
			return translate(err, "check unique "+c.schema.Name+"."+idx.Name)
		}
		if clash {
			return errUniqueViolation(c.schema.Name, idx.Name, describe(enc))
		}
	}
	return nil
}

func (c *Collection) removeIndexEntries(key int64, raw []byte) error {
	fields, err := decodeFields(raw)
	if err != nil {
		return fmt.Errorf("decode %s/%d: %w", c.schema.Name, key, err)
	}
	for name, enc := range indexEntries(c.schema, fields) {
		if err := c.tx.txn.Delete(indexEntryKey(c.schema.Name, name, enc, key)); err != nil {
			return translate(err, "delete index "+c.schema.Name+"."+name)
		}
	}
	return nil
}

func (c *Collection) nextKey() (int64, error) {
	last, err := c.lastKey()
	if err != nil {
		return 0, err
	}
	next := last + 1
	if err := c.tx.txn.Set(seqKey(c.schema.Name), encodeUint(next)); err != nil {
		return 0, translate(err, "advance key generator")
	}
	return int64(next), nil //nolint:gosec // generator never exceeds MaxInt64
}

// advanceKey moves the generator past an explicitly supplied key.
func (c *Collection) advanceKey(key int64) error {
	last, err := c.lastKey()
	if err != nil {
		return err
	}
	if uint64(key) <= last { //nolint:gosec // key >= 1
		return nil
	}
	return translate(c.tx.txn.Set(seqKey(c.schema.Name), encodeUint(uint64(key))), "advance key generator") //nolint:gosec // key >= 1
}

func (c *Collection) lastKey() (uint64, error) {
	item, err := c.tx.txn.Get(seqKey(c.schema.Name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, translate(err, "read key generator")
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, translate(err, "read key generator")
	}
	return decodeUint(val), nil
}

func (c *Collection) lookupPrefix(index string, value any) ([]byte, error) {
	if _, ok := c.schema.index(index); !ok {
		return nil, errIndexNotFound(c.schema.Name, index)
	}
	if value == nil {
		return indexEntriesPrefix(c.schema.Name, index), nil
	}
	enc, err := encodeLookupValue(value)
	if err != nil {
		return nil, err
	}
	return indexValuePrefix(c.schema.Name, index, enc), nil
}

// iterate visits every key under prefix. Only one iterator may be open in a
// read-write badger transaction, so callers never nest iterate calls.
func (c *Collection) iterate(prefix []byte, values bool, fn func(*badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = values

	it := c.tx.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := c.tx.ctx.Err(); err != nil {
			return err
		}
		if err := fn(it.Item()); err != nil {
			return err
		}
	}
	return nil
}

func toFields(record any) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("record must be a JSON object")
	}
	return fields, nil
}

func decodeFields(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// recordID interprets the key field. Absent, null and zero mean "assign one".
func recordID(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		id, err := x.Int64()
		if err != nil || id < 0 {
			return 0, fmt.Errorf("key %q is not a non-negative integer", x.String())
		}
		return id, nil
	default:
		return 0, fmt.Errorf("key of type %T is not an integer", v)
	}
}

func decodeArray(raws [][]byte, dest any) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, raw := range raws {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(raw)
	}
	buf.WriteByte(']')
	if err := json.Unmarshal(buf.Bytes(), dest); err != nil {
		return fmt.Errorf("decode records: %w", err)
	}
	return nil
}

// describe renders an encoded index value for error messages.
func describe(enc []byte) string {
	if len(enc) > 0 && enc[0] == tagString {
		s := bytes.TrimSuffix(enc[1:], []byte{0x00, 0x01})
		return fmt.Sprintf("%q", bytes.ReplaceAll(s, []byte{0x00, 0xFF}, []byte{0x00}))
	}
	return "a numeric value"
}
