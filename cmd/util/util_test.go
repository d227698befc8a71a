package util

import (
	"reflect"
	"strings"
	"testing"

	"github.com/ValentinKolb/idxdb/lib/common"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("Expected lines of at most %d characters, got %q", Wrap, line)
		}
	}
	if WrapString("") != "" {
		t.Errorf("Expected an empty string to stay empty")
	}
}

func TestParseValue(t *testing.T) {
	cases := map[string]any{
		`{"id":1,"tags":["a"]}`: map[string]any{"id": float64(1), "tags": []any{"a"}},
		`42`:                    float64(42),
		`"quoted"`:              "quoted",
		`plain text`:            "plain text",
		`true`:                  true,
	}
	for arg, expected := range cases {
		if got := ParseValue(arg); !reflect.DeepEqual(got, expected) {
			t.Errorf("ParseValue(%s): expected %#v, got %#v", arg, expected, got)
		}
	}
}

func TestParseKey(t *testing.T) {
	cases := map[string]any{
		`7`:        float64(7),
		`["a", 1]`: []any{"a", float64(1)},
		`user:1`:   "user:1",
		`true`:     "true",
		`{"a":1}`:  `{"a":1}`,
		`"spaced"`: "spaced",
	}
	for arg, expected := range cases {
		if got := ParseKey(arg); !reflect.DeepEqual(got, expected) {
			t.Errorf("ParseKey(%s): expected %#v, got %#v", arg, expected, got)
		}
	}
}

func TestGetFactory(t *testing.T) {
	conf := &common.ClientConfig{Engine: common.EngineMemory, Codec: "json"}
	factory, err := GetFactory(conf)
	if err != nil {
		t.Fatalf("GetFactory failed: %v", err)
	}
	if info := factory.Info(); info.Persistent {
		t.Errorf("Expected the memory engine, got %+v", info)
	}
	_ = factory.Close()

	conf.Codec = "xml"
	if _, err := GetFactory(conf); err == nil {
		t.Errorf("Expected an invalid codec to fail")
	}
	conf.Codec = "gob"
	conf.Engine = "redis"
	if _, err := GetFactory(conf); err == nil {
		t.Errorf("Expected an invalid engine to fail")
	}
}
