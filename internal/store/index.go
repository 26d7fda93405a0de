package store

import (
	"encoding/binary"
	"encoding/json"
	"math"

	"github.com/listenupapp/bookshelf/internal/errors"
)

// Encoded index values sort numbers before strings, numbers numerically and
// strings bytewise. No encoded value is a prefix of another, so a prefix scan
// over one value never picks up entries of a longer value.
const (
	tagNumber byte = 0x02
	tagString byte = 0x03
)

// IndexSpec describes a secondary index over one top-level record field.
type IndexSpec struct {
	Name    string `json:"name"`
	KeyPath string `json:"key_path"`
	Unique  bool   `json:"unique"`
}

// CollectionSchema is the persisted definition of a collection.
type CollectionSchema struct {
	Name    string      `json:"name"`
	KeyPath string      `json:"key_path"`
	Indexes []IndexSpec `json:"indexes"`
}

func (s *CollectionSchema) index(name string) (IndexSpec, bool) {
	for _, idx := range s.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexSpec{}, false
}

func (s *CollectionSchema) clone() *CollectionSchema {
	c := *s
	c.Indexes = append([]IndexSpec(nil), s.Indexes...)
	return &c
}

// encodeIndexValue encodes a decoded record field. ok is false for values
// that are not indexed: missing, null, booleans, objects and arrays.
func encodeIndexValue(v any) ([]byte, bool) {
	switch x := v.(type) {
	case string:
		return encodeString(x), true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, false
		}
		return encodeNumber(f), true
	case float64:
		return encodeNumber(x), true
	case int64:
		return encodeNumber(float64(x)), true
	default:
		return nil, false
	}
}

// encodeLookupValue encodes a caller-supplied lookup value.
func encodeLookupValue(v any) ([]byte, error) {
	switch x := v.(type) {
	case string:
		return encodeString(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, errors.Validationf("invalid numeric index value %q", x.String())
		}
		return encodeNumber(f), nil
	case int:
		return encodeNumber(float64(x)), nil
	case int32:
		return encodeNumber(float64(x)), nil
	case int64:
		return encodeNumber(float64(x)), nil
	case uint32:
		return encodeNumber(float64(x)), nil
	case uint64:
		return encodeNumber(float64(x)), nil
	case float32:
		return encodeNumber(float64(x)), nil
	case float64:
		return encodeNumber(x), nil
	default:
		return nil, errors.Validationf("unsupported index value type %T", v)
	}
}

func encodeNumber(f float64) []byte {
	if f == 0 {
		f = 0 // fold -0 into +0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return binary.BigEndian.AppendUint64([]byte{tagNumber}, bits)
}

// encodeString escapes 0x00 as 0x00 0xFF and terminates with 0x00 0x01.
func encodeString(s string) []byte {
	out := make([]byte, 0, len(s)+3)
	out = append(out, tagString)
	for i := range len(s) {
		if s[i] == 0x00 {
			out = append(out, 0x00, 0xFF)
			continue
		}
		out = append(out, s[i])
	}
	return append(out, 0x00, 0x01)
}

// indexEntries computes the encoded value of every index for a decoded record.
func indexEntries(schema *CollectionSchema, fields map[string]any) map[string][]byte {
	out := make(map[string][]byte, len(schema.Indexes))
	for _, idx := range schema.Indexes {
		v, present := fields[idx.KeyPath]
		if !present {
			continue
		}
		if enc, ok := encodeIndexValue(v); ok {
			out[idx.Name] = enc
		}
	}
	return out
}
