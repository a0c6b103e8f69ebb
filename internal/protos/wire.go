// Package protos holds the Sophon manifest records and their protobuf wire codec.
package protos

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// fieldHandler decodes a single field from b. It returns the number of bytes
// consumed, or 0 when the field is not known and has to be skipped.
type fieldHandler func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func walkMessage(b []byte, handle fieldHandler) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := handle(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
		}
		b = b[m:]
	}
	return nil
}

func expectType(typ, want protowire.Type) error {
	if typ != want {
		return fmt.Errorf("unexpected wire type %d, want %d", typ, want)
	}
	return nil
}

func consumeString(typ protowire.Type, b []byte, dst *string) (int, error) {
	if err := expectType(typ, protowire.BytesType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}

func consumeUint64(typ protowire.Type, b []byte, dst *uint64) (int, error) {
	if err := expectType(typ, protowire.VarintType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}

func consumeInt32(typ protowire.Type, b []byte, dst *int32) (int, error) {
	var v uint64
	n, err := consumeUint64(typ, b, &v)
	if err != nil {
		return 0, err
	}
	*dst = int32(v)
	return n, nil
}

func consumeMessage(typ protowire.Type, b []byte) ([]byte, int, error) {
	if err := expectType(typ, protowire.BytesType); err != nil {
		return nil, 0, err
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

// consumeMapEntry decodes a map<string, Message> entry and hands the raw value to decodeValue.
func consumeMapEntry(typ protowire.Type, b []byte, decodeValue func(key string, value []byte) error) (int, error) {
	entry, n, err := consumeMessage(typ, b)
	if err != nil {
		return 0, err
	}

	var key string
	var value []byte
	err = walkMessage(entry, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &key)
		case 2:
			v, m, err := consumeMessage(typ, b)
			value = v
			return m, err
		}
		return 0, nil
	})
	if err != nil {
		return 0, err
	}
	return n, decodeValue(key, value)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendUint64(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	return appendUint64(b, num, uint64(int64(v)))
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendMapEntry(b []byte, num protowire.Number, key string, value []byte) []byte {
	var entry []byte
	entry = appendString(entry, 1, key)
	entry = appendMessage(entry, 2, value)
	return appendMessage(b, num, entry)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
