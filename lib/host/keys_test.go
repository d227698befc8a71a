package host

import (
	"bytes"
	"math"
	"reflect"
	"sort"
	"testing"
	"time"
)

func TestNormalizeKey(t *testing.T) {
	date := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))

	valid := []struct {
		in       any
		expected Key
	}{
		{1, float64(1)},
		{int64(-7), float64(-7)},
		{uint8(3), float64(3)},
		{float32(1.5), float64(1.5)},
		{math.Copysign(0, -1), float64(0)},
		{math.Inf(1), math.Inf(1)},
		{"", ""},
		{[]byte{1, 2}, []byte{1, 2}},
		{date, date.UTC()},
		{[]any{1, "a"}, []any{float64(1), "a"}},
		{[]string{"a", "b"}, []any{"a", "b"}},
		{[]int{}, []any{}},
	}
	for _, tc := range valid {
		got, err := NormalizeKey(tc.in)
		if err != nil {
			t.Errorf("Expected %v (%T) to be a valid key, got %v", tc.in, tc.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.expected) {
			t.Errorf("Expected %v to normalize to %v, got %v", tc.in, tc.expected, got)
		}
	}

	invalid := []any{nil, math.NaN(), true, map[string]any{}, struct{}{}, []any{1, nil}}
	for _, in := range invalid {
		if _, err := NormalizeKey(in); !IsName(err, NameData) {
			t.Errorf("Expected a DataError for %v (%T), got %v", in, in, err)
		}
		if ValidKey(in) {
			t.Errorf("Expected ValidKey(%v) to be false", in)
		}
	}
}

// orderedKeys lists normalised keys in ascending order
func orderedKeys() []Key {
	return []Key{
		math.Inf(-1),
		float64(-100),
		float64(-0.5),
		float64(0),
		float64(1),
		float64(1 << 53),
		math.Inf(1),
		time.Unix(-10, 0).UTC(),
		time.Unix(0, 0).UTC(),
		time.Unix(1700000000, 5).UTC(),
		"",
		"\x00",
		"\x00a",
		"a",
		"a\x00",
		"ab",
		"b",
		"ü",
		[]byte{},
		[]byte{0x00},
		[]byte{0x00, 0xff},
		[]byte{0x01},
		[]any{},
		[]any{float64(1)},
		[]any{float64(1), "a"},
		[]any{float64(2)},
		[]any{"a"},
		[]any{[]any{}},
		[]any{[]any{"a"}},
	}
}

func TestCompareKeys(t *testing.T) {
	keys := orderedKeys()
	for i := range keys {
		for j := range keys {
			got := CompareKeys(keys[i], keys[j])
			expected := 0
			switch {
			case i < j:
				expected = -1
			case i > j:
				expected = 1
			}
			if got != expected {
				t.Errorf("CompareKeys(%v, %v) = %d, expected %d", keys[i], keys[j], got, expected)
			}
		}
	}
}

func TestEncodeKeyPreservesOrder(t *testing.T) {
	keys := orderedKeys()
	encoded := make([][]byte, len(keys))
	for i, k := range keys {
		encoded[i] = EncodeKey(k)
	}
	for i := 1; i < len(encoded); i++ {
		if bytes.Compare(encoded[i-1], encoded[i]) >= 0 {
			t.Errorf("Encoding of %v does not sort before %v", keys[i-1], keys[i])
		}
	}

	shuffled := append([][]byte(nil), encoded...)
	sort.Slice(shuffled, func(i, j int) bool { return bytes.Compare(shuffled[i], shuffled[j]) > 0 })
	sort.Slice(shuffled, func(i, j int) bool { return bytes.Compare(shuffled[i], shuffled[j]) < 0 })
	if !reflect.DeepEqual(shuffled, encoded) {
		t.Errorf("Sorting encodings does not reproduce key order")
	}
}

func TestDecodeKey(t *testing.T) {
	for _, k := range orderedKeys() {
		enc := EncodeKey(k)
		got, rest, err := DecodeKey(append(enc, 0x42))
		if err != nil {
			t.Errorf("Decoding %v failed: %v", k, err)
			continue
		}
		if CompareKeys(got, k) != 0 {
			t.Errorf("Expected %v, decoded %v", k, got)
		}
		if !bytes.Equal(rest, []byte{0x42}) {
			t.Errorf("Expected the trailing byte to remain after %v, got %v", k, rest)
		}
	}

	broken := [][]byte{
		nil,
		{tagNumber, 1, 2},
		{tagString, 'a'},
		{tagString, 'a', 0x00, 0x01},
		{tagArray, tagNumber},
		{0x99},
	}
	for _, b := range broken {
		if _, _, err := DecodeKey(b); err == nil {
			t.Errorf("Expected decoding %v to fail", b)
		}
	}
}

func TestCompositeEncoding(t *testing.T) {
	// index entries are the index key followed by the primary key
	a := append(EncodeKey("a"), EncodeKey(float64(2))...)
	b := append(EncodeKey("a\x00"), EncodeKey(float64(1))...)
	if bytes.Compare(a, b) >= 0 {
		t.Errorf("Composite encodings must sort by their first component")
	}
	if !bytes.HasPrefix(a, EncodeKey("a")) || bytes.HasPrefix(b, EncodeKey("a")) {
		t.Errorf("Encodings must be prefix free")
	}

	succ := Successor(EncodeKey("a"))
	if bytes.Compare(succ, EncodeKey("a")) <= 0 || bytes.Compare(succ, a) > 0 {
		t.Errorf("Successor must sort directly after its input")
	}
}
