package options

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"go.starlark.net/starlark"
)

// Canonical binary encoding of Starlark setting values. The encoding
// is byte-stable for structurally equal values: dictionary entries are
// sorted by their encoded key bytes, so insertion order does not leak
// into fingerprints or serialized diffs.
const (
	valueKindNone int64 = iota
	valueKindBool
	valueKindInt
	valueKindFloat
	valueKindString
	valueKindList
	valueKindTuple
	valueKindDict
)

func encodeStarlarkValue(enc *msgpack.Encoder, w *bytes.Buffer, v starlark.Value) error {
	switch typedV := v.(type) {
	case starlark.NoneType:
		return enc.EncodeInt(valueKindNone)
	case starlark.Bool:
		if err := enc.EncodeInt(valueKindBool); err != nil {
			return err
		}
		return enc.EncodeBool(bool(typedV))
	case starlark.Int:
		if err := enc.EncodeInt(valueKindInt); err != nil {
			return err
		}
		// Decimal string representation, so that values outside
		// the int64 range survive the round trip.
		return enc.EncodeString(typedV.String())
	case starlark.Float:
		if err := enc.EncodeInt(valueKindFloat); err != nil {
			return err
		}
		return enc.EncodeFloat64(float64(typedV))
	case starlark.String:
		if err := enc.EncodeInt(valueKindString); err != nil {
			return err
		}
		return enc.EncodeString(string(typedV))
	case *starlark.List:
		if err := enc.EncodeInt(valueKindList); err != nil {
			return err
		}
		if err := enc.EncodeArrayLen(typedV.Len()); err != nil {
			return err
		}
		for i := 0; i < typedV.Len(); i++ {
			if err := encodeStarlarkValue(enc, w, typedV.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case starlark.Tuple:
		if err := enc.EncodeInt(valueKindTuple); err != nil {
			return err
		}
		if err := enc.EncodeArrayLen(len(typedV)); err != nil {
			return err
		}
		for _, element := range typedV {
			if err := encodeStarlarkValue(enc, w, element); err != nil {
				return err
			}
		}
		return nil
	case *starlark.Dict:
		if err := enc.EncodeInt(valueKindDict); err != nil {
			return err
		}
		items := typedV.Items()
		encodedEntries := make([][]byte, 0, len(items))
		for _, item := range items {
			var entry bytes.Buffer
			entryEnc := msgpack.NewEncoder(&entry)
			if err := encodeStarlarkValue(entryEnc, &entry, item[0]); err != nil {
				return err
			}
			if err := encodeStarlarkValue(entryEnc, &entry, item[1]); err != nil {
				return err
			}
			encodedEntries = append(encodedEntries, entry.Bytes())
		}
		sort.Slice(encodedEntries, func(i, j int) bool {
			return bytes.Compare(encodedEntries[i], encodedEntries[j]) < 0
		})
		if err := enc.EncodeArrayLen(len(encodedEntries)); err != nil {
			return err
		}
		for _, entry := range encodedEntries {
			if _, err := w.Write(entry); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("values of type %s cannot be encoded", v.Type())
	}
}

func decodeStarlarkValue(dec *msgpack.Decoder) (starlark.Value, error) {
	kind, err := dec.DecodeInt64()
	if err != nil {
		return nil, err
	}
	switch kind {
	case valueKindNone:
		return starlark.None, nil
	case valueKindBool:
		b, err := dec.DecodeBool()
		if err != nil {
			return nil, err
		}
		return starlark.Bool(b), nil
	case valueKindInt:
		s, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		i, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer value %#v", s)
		}
		return starlark.MakeBigInt(i), nil
	case valueKindFloat:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return nil, err
		}
		return starlark.Float(f), nil
	case valueKindString:
		s, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		return starlark.String(s), nil
	case valueKindList, valueKindTuple:
		length, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		elements := make([]starlark.Value, 0, length)
		for i := 0; i < length; i++ {
			element, err := decodeStarlarkValue(dec)
			if err != nil {
				return nil, err
			}
			elements = append(elements, element)
		}
		if kind == valueKindTuple {
			return starlark.Tuple(elements), nil
		}
		return starlark.NewList(elements), nil
	case valueKindDict:
		length, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		dict := starlark.NewDict(length)
		for i := 0; i < length; i++ {
			key, err := decodeStarlarkValue(dec)
			if err != nil {
				return nil, err
			}
			value, err := decodeStarlarkValue(dec)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(key, value); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", kind)
	}
}

// MarshalStarlarkValue returns the canonical binary encoding of a
// Starlark setting value.
func MarshalStarlarkValue(v starlark.Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := encodeStarlarkValue(enc, &buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalStarlarkValue decodes a value previously encoded by
// MarshalStarlarkValue.
func UnmarshalStarlarkValue(data []byte) (starlark.Value, error) {
	return decodeStarlarkValue(msgpack.NewDecoder(bytes.NewReader(data)))
}

// starlarkValuesEqual compares two setting values by deep structural
// equality. Values that Starlark cannot compare are never equal.
func starlarkValuesEqual(a, b starlark.Value) bool {
	equal, err := starlark.Equal(a, b)
	return err == nil && equal
}
