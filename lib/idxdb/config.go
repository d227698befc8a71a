package idxdb

import "fmt"

// Config configures Init
type Config struct {
	// DBName is the name of the database (default "db")
	DBName string `json:"name" toml:"name" yaml:"name"`
	// Version is the schema version to open. 0 opens the stored version, or
	// version 1 for a new database. A version above the stored one creates
	// every declared store that does not exist yet.
	Version uint64 `json:"version" toml:"version" yaml:"version"`
	// Stores declares the object stores of the database
	Stores []StoreDef `json:"stores" toml:"stores" yaml:"stores"`
	// PersistentQuery reuses one query adapter for all reads instead of
	// creating one per call
	PersistentQuery bool `json:"persistent_query" toml:"persistent_query" yaml:"persistent_query"`
	// PersistentCommand reuses one command adapter for all writes instead of
	// creating one per call
	PersistentCommand bool `json:"persistent_command" toml:"persistent_command" yaml:"persistent_command"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		DBName:            "db",
		PersistentQuery:   true,
		PersistentCommand: true,
	}
}

// Validate checks the store definitions
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Stores))
	for _, def := range c.Stores {
		if err := def.Validate(); err != nil {
			return err
		}
		if seen[def.Name] {
			return fmt.Errorf("store %q is declared twice", def.Name)
		}
		seen[def.Name] = true
	}
	return nil
}
