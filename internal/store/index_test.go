package store

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeIndexValue_Ordering(t *testing.T) {
	// Ascending order as the index must iterate them.
	ordered := []any{
		math.Inf(-1),
		-1000.5,
		-1.0,
		0.0,
		json.Number("0.5"),
		1.0,
		json.Number("42"),
		1e300,
		"",
		"\x00",
		"A",
		"a",
		"a\x00",
		"a\x00b",
		"ab",
		"b",
	}

	for i := 1; i < len(ordered); i++ {
		prev, ok := encodeIndexValue(ordered[i-1])
		require.True(t, ok)
		cur, ok := encodeIndexValue(ordered[i])
		require.True(t, ok)
		assert.Negative(t, bytes.Compare(prev, cur), "%#v should sort before %#v", ordered[i-1], ordered[i])
	}
}

func TestEncodeIndexValue_NotIndexed(t *testing.T) {
	for _, v := range []any{nil, true, map[string]any{}, []any{"x"}} {
		_, ok := encodeIndexValue(v)
		assert.False(t, ok, "%#v", v)
	}
}

func TestEncodeIndexValue_NegativeZero(t *testing.T) {
	pos, _ := encodeIndexValue(0.0)
	neg, _ := encodeIndexValue(math.Copysign(0, -1))
	assert.Equal(t, pos, neg)
}

func TestEncodeString_PrefixFree(t *testing.T) {
	// A scan for "a" must not see entries for "ab" or "a\x00".
	a := encodeString("a")
	for _, other := range []string{"ab", "a\x00", "a\x00\x01"} {
		assert.False(t, bytes.HasPrefix(encodeString(other), a), "%q", other)
	}
}

func TestIndexEntries(t *testing.T) {
	schema := &CollectionSchema{
		Name: "books",
		Indexes: []IndexSpec{
			{Name: "title", KeyPath: "title"},
			{Name: "publisher", KeyPath: "publisher"},
			{Name: "release", KeyPath: "release"},
		},
	}
	fields, err := decodeFields([]byte(`{"id":1,"title":"Dune","publisher":null}`))
	require.NoError(t, err)

	entries := indexEntries(schema, fields)
	assert.Len(t, entries, 1)
	assert.Equal(t, encodeString("Dune"), entries["title"])
}

func TestKeys_IDSuffix(t *testing.T) {
	key := indexEntryKey("books", "title", encodeString("Dune"), 300)
	assert.Equal(t, int64(300), idFromKeySuffix(key))
	assert.True(t, bytes.HasPrefix(key, indexEntriesPrefix("books", "title")))

	assert.False(t, bytes.HasPrefix(recordKey("book_tags", 1), recordsPrefix("book")))
}

func TestRecordID(t *testing.T) {
	id, err := recordID(nil)
	require.NoError(t, err)
	assert.Zero(t, id)

	id, err = recordID(json.Number("12"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	_, err = recordID(json.Number("1.5"))
	assert.Error(t, err)

	_, err = recordID("7")
	assert.Error(t, err)
}
