// Package cmd implements the command-line interface of idxdb. It opens a
// database on a host engine (bolt file or memory) and runs one operation of
// the idxdb layer per invocation.
//
// The package is organized into several subpackages:
//
//   - registry: Commands for the store registry (info, init, create-store)
//   - records: Commands for records (add, put, get, scan, del) and the perf tool
//   - lock: Commands for lease locks (acquire, release)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through an environment variable with the prefix
// IDXDB_ (e.g. IDXDB_PATH, IDXDB_LOG_LEVEL) or in a .env file.
//
// See idxdb -help for a list of all commands.
package cmd
