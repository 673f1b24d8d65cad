// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - MessageSource: Fetches messages from a provider (IMAP, Gmail, ...)
//   - SourceFactory: Builds message sources from a registered definition
//   - EmbeddingService: Turns text into vectors
//   - VectorStore: Stores vectors and answers nearest-neighbour queries
//   - SourceStore: Persists registered source definitions
//
// # Optional Interfaces
//
//   - ConfigStore: Editable settings file behind `homeqa config`
//   - Watcher: Implemented by sources that can report new messages
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
