//go:build js && wasm

package browser

import (
	"fmt"
	"syscall/js"
	"time"

	"github.com/ValentinKolb/idxdb/lib/host"
)

var (
	jsObject     = js.Global().Get("Object")
	jsArray      = js.Global().Get("Array")
	jsDate       = js.Global().Get("Date")
	jsUint8Array = js.Global().Get("Uint8Array")
	jsArrayBuf   = js.Global().Get("ArrayBuffer")
)

// --------------------------------------------------------------------------
// Go -> JS
// --------------------------------------------------------------------------

// toJSValue converts a structured clone into a JS value
func toJSValue(v any) js.Value {
	switch t := v.(type) {
	case nil:
		return js.Null()
	case map[string]any:
		obj := jsObject.New()
		for k, e := range t {
			obj.Set(k, toJSValue(e))
		}
		return obj
	case []any:
		arr := jsArray.New(len(t))
		for i, e := range t {
			arr.SetIndex(i, toJSValue(e))
		}
		return arr
	}
	return js.ValueOf(v)
}

// toJSKey converts a normalised key into a JS key
func toJSKey(k host.Key) js.Value {
	switch t := k.(type) {
	case float64, string:
		return js.ValueOf(t)
	case time.Time:
		return jsDate.New(float64(t.UnixNano()) / 1e6)
	case []byte:
		arr := jsUint8Array.New(len(t))
		js.CopyBytesToJS(arr, t)
		return arr
	case []any:
		arr := jsArray.New(len(t))
		for i, e := range t {
			arr.SetIndex(i, toJSKey(e))
		}
		return arr
	}
	panic(fmt.Sprintf("browser: key of type %T is not normalized", k))
}

// --------------------------------------------------------------------------
// JS -> Go
// --------------------------------------------------------------------------

// fromJSValue converts a JS value into a structured clone. Dates become
// RFC 3339 strings and binary data becomes an array of numbers.
func fromJSValue(v js.Value) any {
	switch v.Type() {
	case js.TypeUndefined, js.TypeNull:
		return nil
	case js.TypeBoolean:
		return v.Bool()
	case js.TypeNumber:
		return v.Float()
	case js.TypeString:
		return v.String()
	case js.TypeObject:
		switch {
		case jsArray.Call("isArray", v).Bool():
			out := make([]any, v.Length())
			for i := range out {
				out[i] = fromJSValue(v.Index(i))
			}
			return out
		case v.InstanceOf(jsDate):
			return dateFromJS(v).Format(time.RFC3339Nano)
		case v.InstanceOf(jsUint8Array):
			out := make([]any, v.Length())
			for i := range out {
				out[i] = v.Index(i).Float()
			}
			return out
		}
		keys := jsObject.Call("keys", v)
		out := make(map[string]any, keys.Length())
		for i := 0; i < keys.Length(); i++ {
			k := keys.Index(i).String()
			out[k] = fromJSValue(v.Get(k))
		}
		return out
	}
	return nil
}

// fromJSKey converts a JS key into a normalised key
func fromJSKey(v js.Value) (host.Key, error) {
	switch v.Type() {
	case js.TypeNumber:
		return host.NormalizeKey(v.Float())
	case js.TypeString:
		return v.String(), nil
	case js.TypeObject:
		switch {
		case jsArray.Call("isArray", v).Bool():
			out := make([]any, v.Length())
			for i := range out {
				k, err := fromJSKey(v.Index(i))
				if err != nil {
					return nil, err
				}
				out[i] = k
			}
			return out, nil
		case v.InstanceOf(jsDate):
			return dateFromJS(v), nil
		case v.InstanceOf(jsArrayBuf):
			return bytesFromJS(jsUint8Array.New(v)), nil
		case v.InstanceOf(jsUint8Array):
			return bytesFromJS(v), nil
		}
	}
	return nil, host.NewError(host.NameData, "%s is not a valid key", v.Type())
}

func dateFromJS(v js.Value) time.Time {
	ms := v.Call("getTime").Float()
	return time.Unix(0, int64(ms*1e6)).UTC()
}

func bytesFromJS(v js.Value) []byte {
	out := make([]byte, v.Length())
	js.CopyBytesToGo(out, v)
	return out
}

// errorFromJS converts a DOMException into a host error
func errorFromJS(v js.Value) error {
	if v.IsUndefined() || v.IsNull() {
		return host.NewError(host.NameUnknown, "the request failed without an error")
	}
	name := v.Get("name").String()
	if name == "" {
		name = host.NameUnknown
	}
	return host.NewError(name, "%s", v.Get("message").String())
}

// stringList converts a DOMStringList into a slice
func stringList(v js.Value) []string {
	out := make([]string, v.Length())
	for i := range out {
		out[i] = v.Index(i).String()
	}
	return out
}
