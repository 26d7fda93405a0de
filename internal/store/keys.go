package store

import (
	"encoding/binary"
	"regexp"
)

// Key layout:
//
//	meta:version                                  -> uint64 schema version
//	meta:collection:<name>                        -> JSON CollectionSchema
//	meta:seq:<name>                               -> uint64 last assigned key
//	rec:<name>:<id>                               -> JSON record, or a chunk header
//	blob:<name>:<id><chunk>                       -> one slice of a record over 1 MiB
//	idx:<name>:<index>:<encoded value><id>        -> empty
//
// <id> is the 8-byte big-endian key so records and index ties iterate in key order.
// <chunk> is a 4-byte big-endian chunk number.
const (
	metaVersionKey       = "meta:version"
	metaCollectionPrefix = "meta:collection:"
	metaSeqPrefix        = "meta:seq:"
	recordPrefix         = "rec:"
	blobPrefix           = "blob:"
	indexPrefix          = "idx:"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func validName(name string) bool {
	return namePattern.MatchString(name)
}

func collectionMetaKey(name string) []byte {
	return []byte(metaCollectionPrefix + name)
}

func seqKey(name string) []byte {
	return []byte(metaSeqPrefix + name)
}

func recordsPrefix(name string) []byte {
	return []byte(recordPrefix + name + ":")
}

func recordKey(name string, id int64) []byte {
	return binary.BigEndian.AppendUint64(recordsPrefix(name), uint64(id)) //nolint:gosec // keys are always >= 1
}

func chunkKey(name string, id int64, chunk int) []byte {
	key := binary.BigEndian.AppendUint64([]byte(blobPrefix+name+":"), uint64(id)) //nolint:gosec // keys are always >= 1
	return binary.BigEndian.AppendUint32(key, uint32(chunk))                      //nolint:gosec // chunk counts are small
}

func indexEntriesPrefix(collection, index string) []byte {
	return []byte(indexPrefix + collection + ":" + index + ":")
}

// indexValuePrefix covers every entry for one encoded value.
func indexValuePrefix(collection, index string, encoded []byte) []byte {
	return append(indexEntriesPrefix(collection, index), encoded...)
}

func indexEntryKey(collection, index string, encoded []byte, id int64) []byte {
	return binary.BigEndian.AppendUint64(indexValuePrefix(collection, index, encoded), uint64(id)) //nolint:gosec // keys are always >= 1
}

// idFromKeySuffix reads the trailing 8-byte id of a record or index key.
func idFromKeySuffix(key []byte) int64 {
	if len(key) < 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(key[len(key)-8:])) //nolint:gosec // written from positive int64
}

func encodeUint(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func decodeUint(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
