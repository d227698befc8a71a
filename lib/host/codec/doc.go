// Package codec provides the record encodings used by the host engines that
// store records as bytes. It defines a common interface, three
// implementations and the structured clone every record goes through before
// it is stored.
//
// The package focuses on:
//   - Giving records value semantics: a stored record never shares memory
//     with the caller's value, and every read returns a fresh value
//   - Offering multiple encodings with different trade-offs behind one interface
//
// Key Components:
//
//   - Clone: Converts an arbitrary Go value into a structured clone, a tree of
//     map[string]any, []any, float64, string, bool and nil. Values that are
//     not already such a tree take the encoding/json route, so structs are
//     stored with their json field names.
//
//   - binaryCodecImpl: Tagged, length-prefixed format. Smallest output and
//     the default of the engines.
//
//   - jsonCodecImpl: Human-readable output, useful when inspecting a bolt file
//     with external tools.
//
//   - gobCodecImpl: Go's gob encoding. Mostly useful for comparison.
//
// Thread Safety:
//
//	All codecs are stateless and safe for concurrent use.
//
// Usage:
//
//	c, _ := codec.ByName("binary")
//	clone, err := codec.Clone(record)
//	data, err := c.Marshal(clone)
//	back, err := c.Unmarshal(data)
package codec
