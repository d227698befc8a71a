package bolt

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/idxdb/lib/host"
	bolt "go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// File layout
// --------------------------------------------------------------------------

// Every database lives in a bucket below rootBucket. It holds the JSON
// encoded schema under schemaKey, one record bucket per object store and one
// bucket per index.
var (
	rootBucket = []byte("idxdb")
	schemaKey  = []byte("schema")
)

func recordBucketName(store string) []byte {
	return []byte("r:" + store)
}

func indexBucketName(store, index string) []byte {
	return []byte("i:" + store + "\x00" + index)
}

// --------------------------------------------------------------------------
// Schema
// --------------------------------------------------------------------------

// schema is the persisted description of a database. Stores and indexes are
// kept in creation order.
type schema struct {
	Version uint64         `json:"version"`
	Stores  []*storeSchema `json:"stores"`
}

type storeSchema struct {
	Name string `json:"name"`
	host.StoreOptions
	Indexes []*indexSchema `json:"indexes,omitempty"`
}

type indexSchema struct {
	Name    string `json:"name"`
	KeyPath string `json:"key_path"`
	host.IndexOptions
}

func (s *schema) store(name string) *storeSchema {
	for _, st := range s.Stores {
		if st.Name == name {
			return st
		}
	}
	return nil
}

func (s *schema) storeNames() []string {
	names := make([]string, len(s.Stores))
	for i, st := range s.Stores {
		names[i] = st.Name
	}
	return names
}

// clone returns a deep copy the upgrade transaction can modify
func (s *schema) clone() *schema {
	out := &schema{Version: s.Version, Stores: make([]*storeSchema, len(s.Stores))}
	for i, st := range s.Stores {
		cp := *st
		cp.Indexes = make([]*indexSchema, len(st.Indexes))
		for j, idx := range st.Indexes {
			idxCopy := *idx
			cp.Indexes[j] = &idxCopy
		}
		out.Stores[i] = &cp
	}
	return out
}

func (st *storeSchema) index(name string) *indexSchema {
	for _, idx := range st.Indexes {
		if idx.Name == name {
			return idx
		}
	}
	return nil
}

func (st *storeSchema) indexNames() []string {
	names := make([]string, len(st.Indexes))
	for i, idx := range st.Indexes {
		names[i] = idx.Name
	}
	return names
}

// readSchema loads the schema of the named database. It returns an empty
// schema at version 0 if the database does not exist.
func readSchema(tx *bolt.Tx, name string) (*schema, error) {
	s := &schema{}
	root := tx.Bucket(rootBucket)
	if root == nil {
		return s, nil
	}
	dbBucket := root.Bucket([]byte(name))
	if dbBucket == nil {
		return s, nil
	}
	raw := dbBucket.Get(schemaKey)
	if raw == nil {
		return s, nil
	}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("decoding schema of %q: %w", name, err)
	}
	return s, nil
}

// writeSchema persists s for the named database.
func writeSchema(tx *bolt.Tx, name string, s *schema) error {
	dbBucket, err := databaseBucket(tx, name, true)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding schema of %q: %w", name, err)
	}
	return dbBucket.Put(schemaKey, raw)
}

// databaseBucket returns the bucket of the named database, creating it if
// create is set. It returns nil without error if it does not exist.
func databaseBucket(tx *bolt.Tx, name string, create bool) (*bolt.Bucket, error) {
	if !create {
		root := tx.Bucket(rootBucket)
		if root == nil {
			return nil, nil
		}
		return root.Bucket([]byte(name)), nil
	}
	root, err := tx.CreateBucketIfNotExists(rootBucket)
	if err != nil {
		return nil, fmt.Errorf("creating root bucket: %w", err)
	}
	b, err := root.CreateBucketIfNotExists([]byte(name))
	if err != nil {
		return nil, fmt.Errorf("creating bucket of %q: %w", name, err)
	}
	return b, nil
}
