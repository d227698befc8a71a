// Package host defines the object-storage facility the idxdb layer is built
// on. It models what a browser offers as its indexed object database:
// versioned databases that hold named object stores, secondary indexes,
// transactions with an access mode, and requests that settle asynchronously.
//
// The package focuses on:
//   - A small set of interfaces (Factory, Database, Transaction, ObjectStore,
//     Index, Cursor) that every engine implements
//   - A single-resolution completion signal (Request) that engines hand out
//     for every operation
//   - Shared key semantics: normalisation, ordering, an order-preserving
//     binary encoding and key path evaluation
//   - A Runner that gives engines without an event loop of their own the
//     in-order request execution and commit/abort lifecycle of a transaction
//
// Key Components:
//
//   - Factory: The explicit entry point of a facility. Open performs the
//     version handshake: requesting a newer version than the stored one runs
//     an UpgradeFunc exactly once inside a versionchange transaction, which
//     may create object stores and indexes.
//
//   - Transaction: A single-use unit of work bound to a set of stores and a
//     Mode. Writes become visible on Commit and are rolled back on Abort.
//     Transactions over overlapping stores are serialised by the engine.
//
//   - Request: Every read or write returns a *Request. Callers await it with
//     Result or Wait, which turns the engine's completion signal into an
//     ordinary (value, error) return.
//
//   - Error: Failures carry DOMException style names (ConstraintError,
//     VersionError, AbortError, ...) so that callers can classify them the
//     same way on every engine.
//
// Key Ordering:
//
//	number < date < string < binary < array
//
//	Numbers are float64, dates compare by instant, strings and binary values
//	compare byte-wise and arrays compare element-wise, shorter first.
//
// Related Packages:
//
// The engines/memory package provides an in-memory engine used for tests
// and ephemeral data. The engines/bolt package provides a persistent engine
// on top of a bbolt file. The engines/browser package (js/wasm only) binds
// the real browser facility through syscall/js.
//
// The testing package provides the conformance suite every engine runs:
//   - RunHostTests: Validates an engine against the behaviour described here
//   - RunHostBenchmarks: Compares engines on common workloads
package host
