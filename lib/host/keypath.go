package host

import (
	"strings"
)

// KeyGenerator hands out surrogate keys for auto-increment stores.
type KeyGenerator interface {
	// Next returns the next key. It fails with a ConstraintError once the
	// generator is exhausted.
	Next() (float64, error)
	// Observe raises the generator above an explicitly supplied numeric key.
	Observe(key float64)
}

// ValidKeyPath reports whether path is empty or a dotted list of non-empty
// identifiers.
func ValidKeyPath(path string) bool {
	if path == "" {
		return true
	}
	for _, part := range strings.Split(path, ".") {
		if part == "" || strings.ContainsAny(part, " \t\n") {
			return false
		}
	}
	return true
}

// Evaluate resolves a dotted key path against a structured-clone value.
func Evaluate(value any, path string) (any, bool) {
	if path == "" {
		return value, true
	}
	current := value
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

// ExtractKey evaluates path against value and returns the normalised key
// found there.
func ExtractKey(value any, path string) (Key, bool) {
	v, ok := Evaluate(value, path)
	if !ok {
		return nil, false
	}
	k, err := NormalizeKey(v)
	if err != nil {
		return nil, false
	}
	return k, true
}

// InjectKey stores key at path inside value, creating intermediate objects.
func InjectKey(value any, path string, key Key) error {
	parts := strings.Split(path, ".")
	current, ok := value.(map[string]any)
	if !ok {
		return NewError(NameData, "cannot inject a key into a value of type %T", value)
	}
	for _, part := range parts[:len(parts)-1] {
		next, exists := current[part]
		if !exists {
			child := map[string]any{}
			current[part] = child
			current = child
			continue
		}
		if current, ok = next.(map[string]any); !ok {
			return NewError(NameData, "key path %q crosses a non-object value", path)
		}
	}
	current[parts[len(parts)-1]] = key
	return nil
}

// IndexKeys returns the index keys of value for an index over path. Values
// that do not yield a valid key are not indexed. A multi-entry index over an
// array yields each distinct valid element.
func IndexKeys(value any, path string, multiEntry bool) []Key {
	v, ok := Evaluate(value, path)
	if !ok {
		return nil
	}
	if arr, isArray := v.([]any); isArray && multiEntry {
		var keys []Key
		for _, e := range arr {
			k, err := NormalizeKey(e)
			if err != nil {
				continue
			}
			duplicate := false
			for _, seen := range keys {
				if CompareKeys(seen, k) == 0 {
					duplicate = true
					break
				}
			}
			if !duplicate {
				keys = append(keys, k)
			}
		}
		return keys
	}
	k, err := NormalizeKey(v)
	if err != nil {
		return nil
	}
	return []Key{k}
}

// ResolveKey determines the primary key of record for a store with opts.
// explicit is the key passed next to the value (nil if none). record must
// already be a structured clone; a generated key is injected into it when the
// store has a key path.
func ResolveKey(opts StoreOptions, record any, explicit Key, gen KeyGenerator) (Key, error) {
	if opts.KeyPath != "" {
		if explicit != nil {
			return nil, NewError(NameData, "the object store uses in-line keys and the key parameter was provided")
		}
		if k, ok := ExtractKey(record, opts.KeyPath); ok {
			if f, isNumber := k.(float64); isNumber && opts.AutoIncrement {
				gen.Observe(f)
			}
			return k, nil
		}
		if !opts.AutoIncrement {
			return nil, NewError(NameData, "evaluating the key path %q did not yield a valid key", opts.KeyPath)
		}
		if _, present := Evaluate(record, opts.KeyPath); present {
			return nil, NewError(NameData, "the value at key path %q is not a valid key", opts.KeyPath)
		}
		next, err := gen.Next()
		if err != nil {
			return nil, err
		}
		if err := InjectKey(record, opts.KeyPath, next); err != nil {
			return nil, err
		}
		return next, nil
	}

	if explicit != nil {
		k, err := NormalizeKey(explicit)
		if err != nil {
			return nil, err
		}
		if f, isNumber := k.(float64); isNumber && opts.AutoIncrement {
			gen.Observe(f)
		}
		return k, nil
	}
	if !opts.AutoIncrement {
		return nil, NewError(NameData, "the object store uses out-of-line keys and has no key generator, but no key was provided")
	}
	next, err := gen.Next()
	if err != nil {
		return nil, err
	}
	return next, nil
}
