package store

// Table gives typed access to one collection. The key accessor returns a
// pointer to the record's key field so Insert can write the assigned key back.
type Table[T any] struct {
	name string
	key  func(*T) *int64
}

// NewTable creates a typed accessor for collection name.
func NewTable[T any](name string, key func(*T) *int64) Table[T] {
	return Table[T]{name: name, key: key}
}

// Name returns the collection name.
func (t Table[T]) Name() string { return t.name }

// In opens the table's collection inside tx.
func (t Table[T]) In(tx *Txn) (*Collection, error) {
	return tx.Collection(t.name)
}

// Get returns the record stored under key, or NOT_FOUND.
func (t Table[T]) Get(tx *Txn, key int64) (*T, error) {
	c, err := t.In(tx)
	if err != nil {
		return nil, err
	}
	var v T
	if err := c.Get(key, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// All returns every record in key order.
func (t Table[T]) All(tx *Txn) ([]T, error) {
	c, err := t.In(tx)
	if err != nil {
		return nil, err
	}
	out := []T{}
	if err := c.GetAll(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// ByIndex returns records whose indexed field equals value, in index order.
// A nil value returns every indexed record.
func (t Table[T]) ByIndex(tx *Txn, index string, value any) ([]T, error) {
	c, err := t.In(tx)
	if err != nil {
		return nil, err
	}
	out := []T{}
	if err := c.GetAllByIndex(index, value, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Insert adds v and stores the assigned key in it.
func (t Table[T]) Insert(tx *Txn, v *T) (int64, error) {
	c, err := t.In(tx)
	if err != nil {
		return 0, err
	}
	key, err := c.Insert(v)
	if err != nil {
		return 0, err
	}
	*t.key(v) = key
	return key, nil
}

// Put replaces the record with v's key, inserting it when v has no key.
func (t Table[T]) Put(tx *Txn, v *T) error {
	c, err := t.In(tx)
	if err != nil {
		return err
	}
	key, err := c.Put(v)
	if err != nil {
		return err
	}
	*t.key(v) = key
	return nil
}

// Delete removes the record under key. Missing keys are ignored.
func (t Table[T]) Delete(tx *Txn, key int64) error {
	c, err := t.In(tx)
	if err != nil {
		return err
	}
	return c.Delete(key)
}
