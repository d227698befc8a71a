package codec

import (
	"encoding/json"
)

// NewJSONCodec creates a codec using json encoding
func NewJSONCodec() Codec {
	return &jsonCodecImpl{}
}

// jsonCodecImpl implements the Codec interface using json encoding
type jsonCodecImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.Codec)
// --------------------------------------------------------------------------

func (j jsonCodecImpl) Name() string {
	return "json"
}

func (j jsonCodecImpl) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (j jsonCodecImpl) Unmarshal(b []byte) (any, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
