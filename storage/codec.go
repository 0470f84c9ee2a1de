// Package storage provides the backends a store.Store persists its table
// through. Every backend stores the whole table of one collection as a unit.
package storage

import (
	"bytes"
	"fmt"

	gojson "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/guyvdb/docstore/fault"
	"github.com/guyvdb/docstore/store"
)

// zstdMagic starts every zstd frame. Decoding checks for it so compressed
// and plain tables can be read without a flag.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// EncodeTable serializes t as a JSON object keyed by the decimal identity,
// optionally zstd compressed.
func EncodeTable(t store.Table, compress bool) ([]byte, error) {
	raw := make(map[string]store.Fields, len(t))
	for id, fields := range t {
		raw[id.String()] = fields
	}

	data, err := gojson.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrMarshalFailed, err)
	}
	if compress {
		data = encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	}
	return data, nil
}

// DecodeTable reverses EncodeTable. Empty input decodes to a nil table.
func DecodeTable(data []byte) (store.Table, error) {
	if len(data) == 0 {
		return nil, nil
	}

	if bytes.HasPrefix(data, zstdMagic) {
		plain, err := decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", fault.ErrUnmarshalFailed, err)
		}
		data = plain
	}

	raw := map[string]store.Fields{}
	if err := gojson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrUnmarshalFailed, err)
	}

	t := make(store.Table, len(raw))
	for key, fields := range raw {
		id, err := store.IdFromString(key)
		if err != nil {
			return nil, err
		}
		if fields == nil {
			fields = store.Fields{}
		}
		t[id] = fields
	}
	return t, nil
}
