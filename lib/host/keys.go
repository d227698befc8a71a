package host

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

// Key identifies a record. Valid keys are numbers (float64 after
// normalisation), strings, binary values ([]byte), dates (time.Time) and
// arrays ([]any) of valid keys.
type Key = any

// Key types in ascending sort order. The values double as the tag byte of
// the binary key encoding; 0x00 terminates arrays.
const (
	tagArrayEnd byte = 0x00
	tagNumber   byte = 0x10
	tagDate     byte = 0x20
	tagString   byte = 0x30
	tagBinary   byte = 0x40
	tagArray    byte = 0x50
)

// MaxGeneratedKey is the largest key a key generator hands out.
const MaxGeneratedKey = 1 << 53

// --------------------------------------------------------------------------
// Normalisation and comparison
// --------------------------------------------------------------------------

// NormalizeKey validates k and converts it to its canonical representation.
// It fails with a DataError if k is not a valid key.
func NormalizeKey(k any) (Key, error) {
	switch v := k.(type) {
	case nil:
		return nil, NewError(NameData, "nil is not a valid key")
	case float64:
		if math.IsNaN(v) {
			return nil, NewError(NameData, "NaN is not a valid key")
		}
		if v == 0 {
			return float64(0), nil // folds -0
		}
		return v, nil
	case float32:
		return NormalizeKey(float64(v))
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		return v, nil
	case []byte:
		return append([]byte{}, v...), nil
	case time.Time:
		return v.UTC(), nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			n, err := NormalizeKey(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}

	// other slices ([]string, []int, ...) are arrays as well
	rv := reflect.ValueOf(k)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			n, err := NormalizeKey(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	return nil, NewError(NameData, "%T is not a valid key", k)
}

// ValidKey reports whether k is a valid key.
func ValidKey(k any) bool {
	_, err := NormalizeKey(k)
	return err == nil
}

func keyTag(k Key) byte {
	switch k.(type) {
	case float64:
		return tagNumber
	case time.Time:
		return tagDate
	case string:
		return tagString
	case []byte:
		return tagBinary
	case []any:
		return tagArray
	}
	panic(fmt.Sprintf("host: key of type %T is not normalized", k))
}

// CompareKeys orders two normalised keys. It returns -1, 0 or 1.
func CompareKeys(a, b Key) int {
	ta, tb := keyTag(a), keyTag(b)
	if ta != tb {
		if ta < tb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case time.Time:
		return av.Compare(b.(time.Time))
	case string:
		return strings.Compare(av, b.(string))
	case []byte:
		return bytes.Compare(av, b.([]byte))
	case []any:
		bv := b.([]any)
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := CompareKeys(av[i], bv[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(av) < len(bv):
			return -1
		case len(av) > len(bv):
			return 1
		}
	}
	return 0
}

// --------------------------------------------------------------------------
// Binary encoding
// --------------------------------------------------------------------------

// EncodeKey encodes a normalised key so that bytes.Compare on two encodings
// agrees with CompareKeys on the keys. Encodings are self-delimiting, so
// concatenated encodings sort by their components.
func EncodeKey(k Key) []byte {
	return AppendKey(nil, k)
}

// AppendKey appends the encoding of k to dst.
func AppendKey(dst []byte, k Key) []byte {
	switch v := k.(type) {
	case float64:
		bits := math.Float64bits(v)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		dst = append(dst, tagNumber)
		return binary.BigEndian.AppendUint64(dst, bits)
	case time.Time:
		dst = append(dst, tagDate)
		return binary.BigEndian.AppendUint64(dst, uint64(v.UnixNano())^(1<<63))
	case string:
		dst = append(dst, tagString)
		return appendEscaped(dst, []byte(v))
	case []byte:
		dst = append(dst, tagBinary)
		return appendEscaped(dst, v)
	case []any:
		dst = append(dst, tagArray)
		for _, e := range v {
			dst = AppendKey(dst, e)
		}
		return append(dst, tagArrayEnd)
	}
	panic(fmt.Sprintf("host: key of type %T is not normalized", k))
}

// appendEscaped writes b with 0x00 escaped as 0x00 0xFF and terminates it
// with 0x00 0x00, which sorts before any continuation.
func appendEscaped(dst, b []byte) []byte {
	for _, c := range b {
		dst = append(dst, c)
		if c == 0x00 {
			dst = append(dst, 0xFF)
		}
	}
	return append(dst, 0x00, 0x00)
}

// DecodeKey decodes the key at the start of b and returns the remaining bytes.
func DecodeKey(b []byte) (Key, []byte, error) {
	if len(b) == 0 {
		return nil, nil, NewError(NameData, "empty key encoding")
	}
	tag, rest := b[0], b[1:]
	switch tag {
	case tagNumber:
		if len(rest) < 8 {
			return nil, nil, NewError(NameData, "truncated number key")
		}
		bits := binary.BigEndian.Uint64(rest)
		if bits&(1<<63) != 0 {
			bits &^= 1 << 63
		} else {
			bits = ^bits
		}
		return math.Float64frombits(bits), rest[8:], nil
	case tagDate:
		if len(rest) < 8 {
			return nil, nil, NewError(NameData, "truncated date key")
		}
		nanos := int64(binary.BigEndian.Uint64(rest) ^ (1 << 63))
		return time.Unix(0, nanos).UTC(), rest[8:], nil
	case tagString, tagBinary:
		raw, rest, err := readEscaped(rest)
		if err != nil {
			return nil, nil, err
		}
		if tag == tagString {
			return string(raw), rest, nil
		}
		return raw, rest, nil
	case tagArray:
		out := []any{}
		for {
			if len(rest) == 0 {
				return nil, nil, NewError(NameData, "unterminated array key")
			}
			if rest[0] == tagArrayEnd {
				return out, rest[1:], nil
			}
			var (
				e   Key
				err error
			)
			e, rest, err = DecodeKey(rest)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, e)
		}
	}
	return nil, nil, NewError(NameData, "unknown key tag 0x%02x", tag)
}

func readEscaped(b []byte) ([]byte, []byte, error) {
	out := []byte{}
	for i := 0; i < len(b); i++ {
		if b[i] != 0x00 {
			out = append(out, b[i])
			continue
		}
		if i+1 >= len(b) {
			break
		}
		switch b[i+1] {
		case 0x00:
			return out, b[i+2:], nil
		case 0xFF:
			out = append(out, 0x00)
			i++
		default:
			return nil, nil, NewError(NameData, "invalid escape in key encoding")
		}
	}
	return nil, nil, NewError(NameData, "unterminated key encoding")
}

// Successor returns enc followed by a zero byte, the smallest byte string
// greater than enc. Seeking to it positions a cursor strictly after enc.
func Successor(enc []byte) []byte {
	out := make([]byte, len(enc)+1)
	copy(out, enc)
	return out
}
