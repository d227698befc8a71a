package codec

import (
	"fmt"
	"testing"
)

// benchmarkValues returns a set of records for targeted benchmarking
func benchmarkValues() map[string]any {
	large := make([]any, 256)
	for i := range large {
		large[i] = map[string]any{"i": float64(i), "label": fmt.Sprintf("item-%d", i)}
	}
	return map[string]any{
		"Scalar": "just a string",
		"SmallRecord": map[string]any{
			"id":   float64(1),
			"name": "alice",
		},
		"NestedRecord": map[string]any{
			"id":      float64(2),
			"profile": map[string]any{"email": "bob@example.com", "age": float64(31)},
			"tags":    []any{"admin", "ops", "oncall"},
		},
		"LargeRecord": map[string]any{"items": large},
	}
}

func BenchmarkMarshal(b *testing.B) {
	for codecName, factory := range testCodecs {
		c := factory()
		for valueName, v := range benchmarkValues() {
			b.Run(codecName+"/"+valueName, func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := c.Marshal(v); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkUnmarshal(b *testing.B) {
	for codecName, factory := range testCodecs {
		c := factory()
		for valueName, v := range benchmarkValues() {
			data, err := c.Marshal(v)
			if err != nil {
				b.Fatal(err)
			}
			b.Run(codecName+"/"+valueName, func(b *testing.B) {
				b.ReportAllocs()
				b.SetBytes(int64(len(data)))
				for i := 0; i < b.N; i++ {
					if _, err := c.Unmarshal(data); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
