package codec

import (
	"encoding/json"
	"fmt"
	"math"
)

// Clone returns a structured clone of v: a tree made only of map[string]any,
// []any, float64, string, bool and nil that shares no memory with v.
// Values of other types are converted the way encoding/json converts them,
// so structs honour their json tags and numbers become float64. NaN and
// infinite numbers cannot be cloned.
func Clone(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool, string:
		return t, nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("number %v cannot be cloned", t)
		}
		return t, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			c, err := Clone(e)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			c, err := Clone(e)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value of type %T cannot be cloned: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("value of type %T cannot be cloned: %w", v, err)
	}
	return out, nil
}
