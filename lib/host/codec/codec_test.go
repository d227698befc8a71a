package codec

import (
	"math"
	"reflect"
	"testing"
)

// testCodecs is a map of codec name to factory function
var testCodecs = map[string]func() Codec{
	"JSON":   NewJSONCodec,
	"GOB":    NewGOBCodec,
	"Binary": NewBinaryCodec,
}

// testValues returns structured clones covering every value kind
func testValues() []any {
	return []any{
		nil,
		true,
		false,
		float64(42),
		-1.5,
		"",
		"hello world",
		[]any{},
		[]any{float64(1), "two", nil, true},
		map[string]any{},
		map[string]any{
			"id":   float64(7),
			"name": "alice",
			"tags": []any{"a", "b"},
			"address": map[string]any{
				"city": "Berlin",
				"zip":  "10115",
			},
			"active": true,
			"note":   nil,
		},
	}
}

// TestCodecRoundTrip tests that values can be encoded and decoded correctly
func TestCodecRoundTrip(t *testing.T) {
	for name, factory := range testCodecs {
		t.Run(name, func(t *testing.T) {
			c := factory()

			for i, v := range testValues() {
				data, err := c.Marshal(v)
				if err != nil {
					t.Errorf("Failed to marshal value %d: %v", i, err)
					continue
				}

				result, err := c.Unmarshal(data)
				if err != nil {
					t.Errorf("Failed to unmarshal value %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(v, result) {
					t.Errorf("Value %d doesn't match after round trip:\nOriginal: %#v\nResult: %#v", i, v, result)
				}
			}
		})
	}
}

func TestByName(t *testing.T) {
	for _, name := range Names() {
		c, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q) failed: %v", name, err)
		}
		if c.Name() != name {
			t.Errorf("Expected codec %q, got %q", name, c.Name())
		}
	}

	if _, err := ByName("xml"); err == nil {
		t.Errorf("Expected an error for an unknown codec")
	}
}

func TestClone(t *testing.T) {
	type address struct {
		City string `json:"city"`
	}
	type person struct {
		Name    string   `json:"name"`
		Age     int      `json:"age"`
		Address address  `json:"address"`
		Tags    []string `json:"tags"`
	}

	t.Run("Struct", func(t *testing.T) {
		got, err := Clone(person{Name: "bob", Age: 30, Address: address{City: "Paris"}, Tags: []string{"x"}})
		if err != nil {
			t.Fatalf("Clone failed: %v", err)
		}
		want := map[string]any{
			"name":    "bob",
			"age":     float64(30),
			"address": map[string]any{"city": "Paris"},
			"tags":    []any{"x"},
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Expected %#v, got %#v", want, got)
		}
	})

	t.Run("NoSharedMemory", func(t *testing.T) {
		inner := map[string]any{"n": float64(1)}
		original := map[string]any{"inner": inner, "list": []any{"a"}}

		got, err := Clone(original)
		if err != nil {
			t.Fatalf("Clone failed: %v", err)
		}

		inner["n"] = float64(2)
		original["list"].([]any)[0] = "changed"

		clone := got.(map[string]any)
		if clone["inner"].(map[string]any)["n"] != float64(1) {
			t.Errorf("Clone shares nested maps with the original")
		}
		if clone["list"].([]any)[0] != "a" {
			t.Errorf("Clone shares slices with the original")
		}
	})

	t.Run("Numbers", func(t *testing.T) {
		got, err := Clone(map[string]any{"i": 3, "u": uint8(4)})
		if err != nil {
			t.Fatalf("Clone failed: %v", err)
		}
		want := map[string]any{"i": float64(3), "u": float64(4)}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Expected %#v, got %#v", want, got)
		}
	})

	t.Run("Unclonable", func(t *testing.T) {
		if _, err := Clone(make(chan int)); err == nil {
			t.Errorf("Expected an error for a channel")
		}
		if _, err := Clone(math.NaN()); err == nil {
			t.Errorf("Expected an error for NaN")
		}
		if _, err := Clone(map[string]any{"x": []any{math.Inf(1)}}); err == nil {
			t.Errorf("Expected an error for a nested infinity")
		}
		if _, err := Clone(struct{ X float32 }{float32(math.Inf(-1))}); err == nil {
			t.Errorf("Expected an error for an infinite struct field")
		}
	})
}

// TestBinaryCodecSpecific tests edge cases of the binary codec
func TestBinaryCodecSpecific(t *testing.T) {
	c := NewBinaryCodec()

	t.Run("Deterministic", func(t *testing.T) {
		v := map[string]any{"b": float64(2), "a": float64(1), "c": float64(3)}
		first, _ := c.Marshal(v)
		for i := 0; i < 10; i++ {
			again, _ := c.Marshal(v)
			if !reflect.DeepEqual(first, again) {
				t.Fatalf("Encoding of equal values differs")
			}
		}
	})

	t.Run("Truncated", func(t *testing.T) {
		data, _ := c.Marshal(map[string]any{"key": "value"})
		for i := 0; i < len(data); i++ {
			if _, err := c.Unmarshal(data[:i]); err == nil {
				t.Errorf("Expected an error for data truncated to %d bytes", i)
			}
		}
	})

	t.Run("TrailingBytes", func(t *testing.T) {
		data, _ := c.Marshal("x")
		if _, err := c.Unmarshal(append(data, 0)); err == nil {
			t.Errorf("Expected an error for trailing bytes")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := c.Marshal(struct{}{}); err == nil {
			t.Errorf("Expected an error for a non-clone value")
		}
	})
}
