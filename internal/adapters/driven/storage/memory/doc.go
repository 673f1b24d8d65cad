// Package memory provides in-memory implementations of the storage ports.
// Nothing survives a restart; used for tests and the "memory" index backend.
package memory
