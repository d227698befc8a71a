// Package schema loads idxdb configurations from declarative schema files.
//
// A schema names the database, its version and the object stores to create
// during the upgrade. TOML and YAML files are supported:
//
//	name = "shop"
//	version = 2
//
//	[[stores]]
//	name = "orders"
//	key_path = "id"
//
//	  [[stores.indexes]]
//	  name = "customer"
//	  key_path = "customer.id"
//
// Fields that are not set keep the values of idxdb.DefaultConfig.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ValentinKolb/idxdb/lib/idxdb"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a schema file
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatOf derives the format from the file extension of path
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown schema format of %q (expected .toml, .yaml or .yml)", path)
}

// Load reads and parses the schema file at path
func Load(path string) (idxdb.Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return idxdb.Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return idxdb.Config{}, fmt.Errorf("reading schema: %w", err)
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return idxdb.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a schema in the given format and validates it. Unknown keys
// are rejected so that typos do not silently drop options.
func Parse(data []byte, format Format) (idxdb.Config, error) {
	cfg := idxdb.DefaultConfig()

	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return idxdb.Config{}, fmt.Errorf("parsing schema: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return idxdb.Config{}, fmt.Errorf("parsing schema: unknown key %q", undecoded[0].String())
		}
	case FormatYAML:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return idxdb.Config{}, fmt.Errorf("parsing schema: %w", err)
		}
	default:
		return idxdb.Config{}, fmt.Errorf("unsupported schema format %q", format)
	}

	if err := cfg.Validate(); err != nil {
		return idxdb.Config{}, fmt.Errorf("invalid schema: %w", err)
	}
	return cfg, nil
}

// Encode writes cfg in the given format
func Encode(cfg idxdb.Config, format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatTOML:
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
	case FormatYAML:
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err := encoder.Encode(cfg); err != nil {
			return nil, err
		}
		if err := encoder.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported schema format %q", format)
	}
	return buf.Bytes(), nil
}
