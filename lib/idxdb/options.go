package idxdb

import (
	"fmt"

	"github.com/ValentinKolb/idxdb/lib/host"
)

// IndexDef declares a secondary index of a store.
type IndexDef struct {
	Name              string `json:"name" toml:"name" yaml:"name"`
	KeyPath           string `json:"key_path" toml:"key_path" yaml:"key_path"`
	host.IndexOptions `yaml:",inline"`
}

// StoreDef declares an object store, its key policy and its indexes.
type StoreDef struct {
	Name              string     `json:"name" toml:"name" yaml:"name"`
	host.StoreOptions `yaml:",inline"`
	Indexes           []IndexDef `json:"indexes,omitempty" toml:"indexes" yaml:"indexes,omitempty"`
}

// StoreOption configures a StoreDef
type StoreOption func(*StoreDef)

// IndexOption configures an index declared with WithIndex
type IndexOption func(*host.IndexOptions)

// Define creates a store definition. Without options the store uses
// out-of-line keys that the caller has to supply.
func Define(name string, opts ...StoreOption) StoreDef {
	def := StoreDef{Name: name}
	for _, opt := range opts {
		opt(&def)
	}
	return def
}

// AutoIncrement lets the host assign surrogate keys.
func AutoIncrement() StoreOption {
	return func(d *StoreDef) {
		d.AutoIncrement = true
	}
}

// KeyPath uses the named (dotted) field of each record as its primary key.
func KeyPath(path string) StoreOption {
	return func(d *StoreDef) {
		d.KeyPath = path
	}
}

// WithIndex declares a secondary index over keyPath.
func WithIndex(name, keyPath string, opts ...IndexOption) StoreOption {
	return func(d *StoreDef) {
		idx := IndexDef{Name: name, KeyPath: keyPath}
		for _, opt := range opts {
			opt(&idx.IndexOptions)
		}
		d.Indexes = append(d.Indexes, idx)
	}
}

// Unique rejects records whose index key is already taken by another record.
func Unique() IndexOption {
	return func(o *host.IndexOptions) {
		o.Unique = true
	}
}

// MultiEntry indexes every element of an array value separately.
func MultiEntry() IndexOption {
	return func(o *host.IndexOptions) {
		o.MultiEntry = true
	}
}

// Validate checks the definition for errors that the host would only
// report during the upgrade.
func (d StoreDef) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("store definition without a name")
	}
	if !host.ValidKeyPath(d.KeyPath) {
		return fmt.Errorf("store %q: invalid key path %q", d.Name, d.KeyPath)
	}
	seen := make(map[string]bool, len(d.Indexes))
	for _, idx := range d.Indexes {
		if idx.Name == "" {
			return fmt.Errorf("store %q: index without a name", d.Name)
		}
		if seen[idx.Name] {
			return fmt.Errorf("store %q: duplicate index %q", d.Name, idx.Name)
		}
		seen[idx.Name] = true
		if idx.KeyPath == "" || !host.ValidKeyPath(idx.KeyPath) {
			return fmt.Errorf("store %q: index %q has an invalid key path %q", d.Name, idx.Name, idx.KeyPath)
		}
	}
	return nil
}

// create creates the store and its indexes inside an upgrade transaction
func (d StoreDef) create(tx host.UpgradeTransaction) error {
	store, err := tx.CreateObjectStore(d.Name, d.StoreOptions)
	if err != nil {
		return err
	}
	for _, idx := range d.Indexes {
		if _, err := store.CreateIndex(idx.Name, idx.KeyPath, idx.IndexOptions); err != nil {
			return err
		}
	}
	return nil
}
