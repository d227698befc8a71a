package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// NewBinaryCodec creates a codec using a compact custom binary format
func NewBinaryCodec() Codec {
	return &binaryCodecImpl{}
}

// binaryCodecImpl implements Codec using a tagged, length-prefixed format.
// Object members are written in key order so equal values encode equally.
type binaryCodecImpl struct {
}

// Type tags of the binary format
const (
	tagNull   byte = 0
	tagFalse  byte = 1
	tagTrue   byte = 2
	tagNumber byte = 3
	tagString byte = 4
	tagArray  byte = 5
	tagObject byte = 6
)

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.Codec)
// --------------------------------------------------------------------------

func (b binaryCodecImpl) Name() string {
	return "binary"
}

func (b binaryCodecImpl) Marshal(v any) ([]byte, error) {
	size, err := b.sizeBytes(v)
	if err != nil {
		return nil, err
	}
	return b.appendValue(make([]byte, 0, size), v), nil
}

func (b binaryCodecImpl) Unmarshal(data []byte) (any, error) {
	v, pos, err := b.readValue(data, 0)
	if err != nil {
		return nil, err
	}
	if pos != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after value", len(data)-pos)
	}
	return v, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization and rejects
// values that are not structured clones
func (b binaryCodecImpl) sizeBytes(v any) (int, error) {
	switch t := v.(type) {
	case nil, bool:
		return 1, nil
	case float64:
		return 1 + 8, nil
	case string:
		return 1 + 4 + len(t), nil
	case []any:
		size := 1 + 4
		for _, e := range t {
			n, err := b.sizeBytes(e)
			if err != nil {
				return 0, err
			}
			size += n
		}
		return size, nil
	case map[string]any:
		size := 1 + 4
		for k, e := range t {
			n, err := b.sizeBytes(e)
			if err != nil {
				return 0, err
			}
			size += 4 + len(k) + n
		}
		return size, nil
	}
	return 0, fmt.Errorf("cannot encode value of type %T", v)
}

func (b binaryCodecImpl) appendValue(dst []byte, v any) []byte {
	switch t := v.(type) {
	case nil:
		return append(dst, tagNull)
	case bool:
		if t {
			return append(dst, tagTrue)
		}
		return append(dst, tagFalse)
	case float64:
		dst = append(dst, tagNumber)
		return binary.BigEndian.AppendUint64(dst, math.Float64bits(t))
	case string:
		dst = append(dst, tagString)
		return appendString(dst, t)
	case []any:
		dst = append(dst, tagArray)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(t)))
		for _, e := range t {
			dst = b.appendValue(dst, e)
		}
		return dst
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dst = append(dst, tagObject)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(t)))
		for _, k := range keys {
			dst = appendString(dst, k)
			dst = b.appendValue(dst, t[k])
		}
		return dst
	}
	return dst
}

func appendString(dst []byte, s string) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

func (b binaryCodecImpl) readValue(data []byte, pos int) (any, int, error) {
	if pos >= len(data) {
		return nil, pos, fmt.Errorf("data too short for type tag")
	}
	tag := data[pos]
	pos++

	switch tag {
	case tagNull:
		return nil, pos, nil
	case tagFalse:
		return false, pos, nil
	case tagTrue:
		return true, pos, nil
	case tagNumber:
		if pos+8 > len(data) {
			return nil, pos, fmt.Errorf("data too short for number")
		}
		return math.Float64frombits(binary.BigEndian.Uint64(data[pos : pos+8])), pos + 8, nil
	case tagString:
		return readString(data, pos)
	case tagArray:
		n, pos, err := readLength(data, pos)
		if err != nil {
			return nil, pos, err
		}
		out := make([]any, 0, min(n, len(data)-pos))
		for i := 0; i < n; i++ {
			var e any
			if e, pos, err = b.readValue(data, pos); err != nil {
				return nil, pos, err
			}
			out = append(out, e)
		}
		return out, pos, nil
	case tagObject:
		n, pos, err := readLength(data, pos)
		if err != nil {
			return nil, pos, err
		}
		out := make(map[string]any, min(n, len(data)-pos))
		for i := 0; i < n; i++ {
			var (
				k any
				e any
			)
			if k, pos, err = readString(data, pos); err != nil {
				return nil, pos, err
			}
			if e, pos, err = b.readValue(data, pos); err != nil {
				return nil, pos, err
			}
			out[k.(string)] = e
		}
		return out, pos, nil
	}
	return nil, pos, fmt.Errorf("unknown type tag %d", tag)
}

func readLength(data []byte, pos int) (int, int, error) {
	if pos+4 > len(data) {
		return 0, pos, fmt.Errorf("data too short for length")
	}
	return int(binary.BigEndian.Uint32(data[pos : pos+4])), pos + 4, nil
}

func readString(data []byte, pos int) (any, int, error) {
	n, pos, err := readLength(data, pos)
	if err != nil {
		return nil, pos, err
	}
	if pos+n > len(data) {
		return nil, pos, fmt.Errorf("data too short for string data")
	}
	return string(data[pos : pos+n]), pos + n, nil
}
