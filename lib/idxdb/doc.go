// Package idxdb is a small convenience layer over a host object-storage
// facility (see package host). It turns the request and transaction
// lifecycle of the facility into plain blocking calls that return a value or
// a classified *Error.
//
// The package focuses on:
//   - Opening a database with a declarative list of stores and creating
//     missing ones in the version upgrade
//   - One transaction per operation that is committed on success and
//     explicitly aborted on every failure path
//   - A small error taxonomy (UNKNOWN, KEY_EXISTS, CONSTRAINT_VIOLATION,
//     VERSION_ERR, TRANSACTION_ABORT_ERR) mapped from the host error names
//
// Key Components:
//
//   - Store Registry: Init opens the database and returns a *DB. CreateStore
//     adds a store later by reopening the connection at the next version.
//     Info reports name, version and stores.
//
//   - CommandAdapter: Create inserts a batch of records in one transaction
//     (all or nothing), Update inserts or replaces one record and Delete
//     removes one.
//
//   - QueryAdapter: Get runs a Query (All, ByKey or ByIndex). Cursor calls a
//     Handler for every record in key or index order, one at a time.
//
//   - Store: An immutable handle that fixes the store (and optionally the
//     mode) of the operations called on it.
//
// Thread Safety:
//
//	A *DB is safe for concurrent use. Operations share the connection and
//	run in their own transactions; the host serialises transactions on
//	overlapping stores. CreateStore and Close wait for running operations
//	and block new ones until they are done.
//
// Usage:
//
//	factory := memory.NewFactory(nil)
//	db, err := idxdb.Init(ctx, factory, idxdb.Config{
//		DBName:  "app",
//		Version: 1,
//		Stores: []idxdb.StoreDef{
//			idxdb.Define("users", idxdb.KeyPath("id"),
//				idxdb.WithIndex("email", "email", idxdb.Unique())),
//			idxdb.Define("logs", idxdb.AutoIncrement()),
//		},
//		PersistentQuery:   true,
//		PersistentCommand: true,
//	})
//
//	users := db.Store("users")
//	_, err = users.Create(ctx, map[string]any{"id": "ada", "email": "ada@example.com"})
//	rec, err := users.Get(ctx, idxdb.ByIndex("email", "ada@example.com"))
package idxdb
