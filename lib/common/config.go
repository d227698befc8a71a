package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// EngineType selects the host facility used by the client
type EngineType string

const (
	EngineMemory EngineType = "memory"
	EngineBolt   EngineType = "bolt"
)

// ClientConfig holds the configuration of a client of the idxdb layer
type ClientConfig struct {
	// Engine is the host facility to use
	Engine EngineType
	// Path of the bolt file (bolt engine only)
	Path string
	// Codec is the record encoding (binary, json, gob)
	Codec string
	// NoSync skips fsync on commit (bolt engine only)
	NoSync bool

	// DBName is the database to open
	DBName string
	// Version to open, 0 = the stored version
	Version uint64
	// SchemaFile optionally declares the stores (TOML or YAML)
	SchemaFile string
	// Transient creates adapters per operation instead of reusing them
	Transient bool

	// TimeoutSecond bounds every command (0 = no timeout)
	TimeoutSecond int

	// LogLevel of all package loggers
	LogLevel string
}

// Timeout returns the command timeout as a duration
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// Validate checks the engine specific settings
func (c *ClientConfig) Validate() error {
	switch c.Engine {
	case EngineMemory:
	case EngineBolt:
		if c.Path == "" {
			return fmt.Errorf("the bolt engine requires a file path")
		}
	default:
		return fmt.Errorf("invalid engine %q (expected memory or bolt)", c.Engine)
	}
	switch c.Codec {
	case "binary", "json", "gob":
	default:
		return fmt.Errorf("invalid codec %q (expected binary, json or gob)", c.Codec)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Host facility
	addSection("Engine")
	addField("Engine", string(c.Engine))
	if c.Engine == EngineBolt {
		addField("Path", c.Path)
		addField("No Sync", strconv.FormatBool(c.NoSync))
	}
	addField("Codec", c.Codec)

	// Database
	addSection("Database")
	addField("Name", c.DBName)
	if c.Version == 0 {
		addField("Version", "stored")
	} else {
		addField("Version", strconv.FormatUint(c.Version, 10))
	}
	if c.SchemaFile != "" {
		addField("Schema", c.SchemaFile)
	}
	addField("Transient Adapters", strconv.FormatBool(c.Transient))
	if c.TimeoutSecond > 0 {
		addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	} else {
		addField("Timeout", "none")
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
