// Package domain defines the core business entities for homeqa.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Message: An immutable personal message fetched from a source
//   - SourceConnection: A registered source and its connection state
//   - SyncProgress: A snapshot of a source's sync task
//   - IndexedDocument / RankedResult: Vector index records and query hits
//   - Answer / Citation: The synthesised reply to a question
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
