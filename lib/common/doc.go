// Package common provides the configuration and logging utilities shared by
// the idxdb command line tool and the library packages.
//
// The package focuses on:
//   - Configuration of a client (host engine, database, schema file)
//   - Custom logging implementation integrated with the dragonboat logger
//     registry that every package obtains its logger from
//
// Key Components:
//
//   - ClientConfig: Selects the host engine (memory or bolt), the record
//     codec and the database to open. String renders a sectioned summary
//     that the CLI prints before long running commands.
//
//   - Logger: Custom logging implementation that integrates with
//     dragonboats logging system while providing consistent formatting
//     across the application (LEVEL | package | message).
package common
