// Package testing provides standardised tests and benchmarks for engines
// that implement the host facility interfaces.
//
// The package contains:
//   - RunHostTests: A conformance suite covering the version handshake,
//     key handling, indexes, cursors and transaction lifecycle
//   - RunHostBenchmarks: Throughput of common request patterns
//
// Example usage:
//
//	factory := func() host.Factory {
//		return memory.NewFactory(nil)
//	}
//
//	hosttesting.RunHostTests(t, "Memory", factory)
//	hosttesting.RunHostBenchmarks(b, "Memory", factory)
package testing
