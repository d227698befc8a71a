package codec

import (
	"fmt"
	"sort"
)

// Codec turns record values into bytes and back. Values passed to Marshal
// must be structured clones as produced by Clone.
type Codec interface {
	// Name returns the name the codec is selected by.
	Name() string
	// Marshal encodes a structured clone.
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes bytes produced by Marshal into a fresh structured clone.
	Unmarshal(b []byte) (any, error)
}

// Names lists the names accepted by ByName.
func Names() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByName returns the codec with the given name.
func ByName(name string) (Codec, error) {
	factory, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("unknown codec %q (available: %v)", name, Names())
	}
	return factory(), nil
}

var codecs = map[string]func() Codec{
	"binary": NewBinaryCodec,
	"gob":    NewGOBCodec,
	"json":   NewJSONCodec,
}
