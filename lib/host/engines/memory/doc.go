// Package memory provides an in-memory host facility.
//
// Each object store keeps its records in an ordered tree map keyed by the
// binary key encoding, and every index in a second tree keyed by index key
// and primary key. Records are stored encoded with a codec, so reads never
// hand out shared values.
//
// Transactions lock the stores in their scope for their whole lifetime:
// readonly transactions share the lock, readwrite transactions hold it
// exclusively. Writes are applied in place and undone on abort.
//
// Opening a database for an upgrade while other connections are open fails
// immediately with a BlockedError instead of waiting for them to close.
package memory
