package schema

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ValentinKolb/idxdb/lib/idxdb"
)

const tomlSchema = `
name = "shop"
version = 3
persistent_command = false

[[stores]]
name = "orders"
key_path = "id"

  [[stores.indexes]]
  name = "customer"
  key_path = "customer.id"

  [[stores.indexes]]
  name = "tags"
  key_path = "tags"
  multi_entry = true

[[stores]]
name = "events"
auto_increment = true
`

const yamlSchema = `
name: shop
version: 3
persistent_command: false
stores:
  - name: orders
    key_path: id
    indexes:
      - name: customer
        key_path: customer.id
      - name: tags
        key_path: tags
        multi_entry: true
  - name: events
    auto_increment: true
`

func expectedConfig() idxdb.Config {
	cfg := idxdb.DefaultConfig()
	cfg.DBName = "shop"
	cfg.Version = 3
	cfg.PersistentCommand = false
	cfg.Stores = []idxdb.StoreDef{
		idxdb.Define("orders", idxdb.KeyPath("id"),
			idxdb.WithIndex("customer", "customer.id"),
			idxdb.WithIndex("tags", "tags", idxdb.MultiEntry())),
		idxdb.Define("events", idxdb.AutoIncrement()),
	}
	return cfg
}

func TestParse(t *testing.T) {
	for format, data := range map[Format]string{FormatTOML: tomlSchema, FormatYAML: yamlSchema} {
		t.Run(string(format), func(t *testing.T) {
			cfg, err := Parse([]byte(data), format)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if !reflect.DeepEqual(cfg, expectedConfig()) {
				t.Errorf("Expected %+v, got %+v", expectedConfig(), cfg)
			}
		})
	}
}

func TestParseDefaults(t *testing.T) {
	for _, format := range []Format{FormatTOML, FormatYAML} {
		cfg, err := Parse(nil, format)
		if err != nil {
			t.Fatalf("Parse of an empty %s schema failed: %v", format, err)
		}
		if !reflect.DeepEqual(cfg, idxdb.DefaultConfig()) {
			t.Errorf("Expected the default config for an empty %s schema, got %+v", format, cfg)
		}
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name   string
		format Format
		data   string
	}{
		{"toml unknown key", FormatTOML, "name = \"x\"\nverison = 2\n"},
		{"toml syntax", FormatTOML, "name = \n"},
		{"yaml unknown key", FormatYAML, "name: x\nstores:\n  - name: a\n    keypath: id\n"},
		{"yaml syntax", FormatYAML, "stores: [\n"},
		{"duplicate store", FormatYAML, "stores:\n  - name: a\n  - name: a\n"},
		{"index without key path", FormatTOML, "[[stores]]\nname = \"a\"\n[[stores.indexes]]\nname = \"i\"\n"},
		{"unknown format", Format("ini"), "name = x"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Parse([]byte(c.data), c.format); err == nil {
				t.Errorf("Expected an error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"schema.toml": tomlSchema,
		"schema.yaml": yamlSchema,
		"schema.yml":  yamlSchema,
	}
	for name, data := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Errorf("Load(%s) failed: %v", name, err)
			continue
		}
		if cfg.DBName != "shop" || len(cfg.Stores) != 2 {
			t.Errorf("Load(%s) returned %+v", name, cfg)
		}
	}

	if _, err := Load(filepath.Join(dir, "schema.json")); err == nil {
		t.Errorf("Expected an unknown extension to fail")
	}
	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Errorf("Expected a missing file to fail")
	}
}

func TestEncode(t *testing.T) {
	for _, format := range []Format{FormatTOML, FormatYAML} {
		data, err := Encode(expectedConfig(), format)
		if err != nil {
			t.Fatalf("Encode(%s) failed: %v", format, err)
		}
		cfg, err := Parse(data, format)
		if err != nil {
			t.Fatalf("Parse of encoded %s failed: %v\n%s", format, err, data)
		}
		if !reflect.DeepEqual(cfg, expectedConfig()) {
			t.Errorf("Expected the encoded %s schema to parse back, got %+v", format, cfg)
		}
	}
}
