// Package sqlite provides the SQLite implementation of the storage ports.
//
// It uses modernc.org/sqlite, a pure Go SQLite build, so no CGO is needed.
// One database serves:
//
//   - SourceStore: registered source definitions
//   - VectorStore: indexed messages with float32 embeddings, per collection
//   - SyncHistoryStore: finished sync runs
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory; applied versions are recorded in schema_migrations.
//
// # Search
//
// Embeddings are stored as little-endian float32 blobs. Similarity search
// narrows candidates in SQL using json_extract over the metadata column and
// ranks them by cosine distance in Go.
//
// # Data Location
//
// By default, the database is stored at ~/.homeqa/homeqa.db
package sqlite
