// Package bolt provides a persistent host facility on top of a bbolt file.
//
// All databases of a facility share one file. A database is a bucket holding
// its JSON encoded schema, one bucket per object store and one bucket per
// index. Keys use the order-preserving binary encoding of the host package,
// so bbolt's byte order is the key order.
//
// Transactions map onto bbolt transactions: readonly transactions are
// snapshots that run concurrently, all other transactions are serialized by
// bbolt's single writer. The key generator of a store is the sequence of its
// record bucket.
package bolt
