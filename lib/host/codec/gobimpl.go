package codec

import (
	"bytes"
	"encoding/gob"
)

func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// NewGOBCodec creates a codec using Go's binary gob format
func NewGOBCodec() Codec {
	return &gobCodecImpl{}
}

// gobCodecImpl implements the Codec interface using gob encoding
type gobCodecImpl struct {
}

// gobEnvelope carries the value, gob cannot encode a bare interface
type gobEnvelope struct {
	V any
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.Codec)
// --------------------------------------------------------------------------

func (g gobCodecImpl) Name() string {
	return "gob"
}

func (g gobCodecImpl) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(gobEnvelope{V: v}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobCodecImpl) Unmarshal(b []byte) (any, error) {
	var env gobEnvelope
	dec := gob.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&env); err != nil {
		return nil, err
	}
	return restoreEmpty(env.V), nil
}

// restoreEmpty turns the nil slices gob produces for empty arrays back into
// empty arrays. A clone never holds a typed nil.
func restoreEmpty(v any) any {
	switch t := v.(type) {
	case []any:
		if t == nil {
			return []any{}
		}
		for i, e := range t {
			t[i] = restoreEmpty(e)
		}
	case map[string]any:
		for k, e := range t {
			t[k] = restoreEmpty(e)
		}
	}
	return v
}
