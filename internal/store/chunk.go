package store

import (
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// maxValueSize is the largest value written under a single key. It matches
// badger's default value threshold, which an in-memory store refuses to
// exceed and which on disk sends the value to the value log.
const maxValueSize = 1 << 20

// chunkedMarker starts the header stored in place of a record that was split
// across blob keys. Encoded JSON objects never start with a NUL byte.
const chunkedMarker = 0x00

// chunkHeaderSize is the marker, the uint32 chunk count and the uint64 total length.
const chunkHeaderSize = 1 + 4 + 8

func chunkHeader(chunks, total int) []byte {
	h := make([]byte, 0, chunkHeaderSize)
	h = append(h, chunkedMarker)
	h = binary.BigEndian.AppendUint32(h, uint32(chunks)) //nolint:gosec // bounded by record size
	h = binary.BigEndian.AppendUint64(h, uint64(total))  //nolint:gosec // non-negative length
	return h
}

func isChunkHeader(stored []byte) bool {
	return len(stored) == chunkHeaderSize && stored[0] == chunkedMarker
}

func parseChunkHeader(stored []byte) (chunks, total int) {
	return int(binary.BigEndian.Uint32(stored[1:5])), int(binary.BigEndian.Uint64(stored[5:])) //nolint:gosec // written by chunkHeader
}

// putValue stores raw under key, splitting it into blob chunks when it is
// larger than maxValueSize.
func putValue(txn *badger.Txn, name string, id int64, raw []byte) error {
	key := recordKey(name, id)
	if len(raw) <= maxValueSize {
		return txn.Set(key, raw)
	}

	chunks := (len(raw) + maxValueSize - 1) / maxValueSize
	for i := range chunks {
		end := min((i+1)*maxValueSize, len(raw))
		if err := txn.Set(chunkKey(name, id, i), raw[i*maxValueSize:end]); err != nil {
			return err
		}
	}
	return txn.Set(key, chunkHeader(chunks, len(raw)))
}

// resolveValue returns the record bytes for a value read from a record key,
// reassembling chunked records.
func resolveValue(txn *badger.Txn, name string, id int64, stored []byte) ([]byte, error) {
	if !isChunkHeader(stored) {
		return stored, nil
	}
	chunks, total := parseChunkHeader(stored)
	raw := make([]byte, 0, total)
	for i := range chunks {
		item, err := txn.Get(chunkKey(name, id, i))
		if err != nil {
			return nil, fmt.Errorf("read %s/%d chunk %d: %w", name, id, i, err)
		}
		err = item.Value(func(val []byte) error {
			raw = append(raw, val...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(raw) != total {
		return nil, fmt.Errorf("%s/%d: reassembled %d of %d bytes", name, id, len(raw), total)
	}
	return raw, nil
}

// deleteChunks removes the blob chunks a stored record header points to.
func deleteChunks(txn *badger.Txn, name string, id int64, stored []byte) error {
	if !isChunkHeader(stored) {
		return nil
	}
	chunks, _ := parseChunkHeader(stored)
	for i := range chunks {
		if err := txn.Delete(chunkKey(name, id, i)); err != nil {
			return err
		}
	}
	return nil
}
