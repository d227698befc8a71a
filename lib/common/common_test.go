package common

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
)

func TestParseLogLevel(t *testing.T) {
	levels := map[string]logger.LogLevel{
		"debug":   logger.DEBUG,
		"INFO":    logger.INFO,
		"warn":    logger.WARNING,
		"warning": logger.WARNING,
		"error":   logger.ERROR,
	}
	for name, expected := range levels {
		lvl, err := ParseLogLevel(name)
		if err != nil || lvl != expected {
			t.Errorf("Expected %s to parse as %v, got %v (%v)", name, expected, lvl, err)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Errorf("Expected an invalid level to fail")
	}
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	previous := LogOutput
	LogOutput = &buf
	defer func() { LogOutput = previous }()

	l := CreateLogger("idxdb")
	l.SetLevel(logger.INFO)
	l.Debugf("hidden %d", 1)
	l.Infof("opened %q", "db")
	l.Errorf("failed")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected debug messages to be filtered, got %q", out)
	}
	if !strings.Contains(out, "INFO  | idxdb         | opened \"db\"") {
		t.Errorf("Expected the formatted info line, got %q", out)
	}
	if !strings.Contains(out, "ERROR | idxdb         | failed") {
		t.Errorf("Expected the formatted error line, got %q", out)
	}
}

func TestClientConfig(t *testing.T) {
	conf := &ClientConfig{
		Engine:        EngineBolt,
		Path:          "/tmp/idxdb.bolt",
		Codec:         "json",
		DBName:        "shop",
		TimeoutSecond: 5,
		LogLevel:      "info",
	}
	if err := conf.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	out := conf.String()
	for _, expected := range []string{"ENGINE", "/tmp/idxdb.bolt", "DATABASE", "shop", "5 sec", "LOGGING"} {
		if !strings.Contains(out, expected) {
			t.Errorf("Expected %q in %s", expected, out)
		}
	}

	invalid := []ClientConfig{
		{Engine: EngineBolt, Codec: "binary", LogLevel: "info"},
		{Engine: "redis", Codec: "binary", LogLevel: "info"},
		{Engine: EngineMemory, Codec: "xml", LogLevel: "info"},
		{Engine: EngineMemory, Codec: "binary", LogLevel: "loud"},
	}
	for _, c := range invalid {
		if err := c.Validate(); err == nil {
			t.Errorf("Expected %+v to be invalid", c)
		}
	}
}
