package domain

import (
	"fmt"
	"strings"
	"time"
)

// ConnectionState is the lifecycle state of a message source.
type ConnectionState string

const (
	// StateDisconnected is the initial and post-disconnect state.
	StateDisconnected ConnectionState = "disconnected"
	// StateConnecting is held while a connection attempt is in flight.
	StateConnecting ConnectionState = "connecting"
	// StateConnected allows messages to be fetched.
	StateConnected ConnectionState = "connected"
	// StateError is entered when a connection attempt fails.
	// Only a fresh Connect leaves it.
	StateError ConnectionState = "error"
)

// String implements fmt.Stringer.
func (s ConnectionState) String() string {
	return string(s)
}

// SourceConnection is a registered message source as seen by the orchestrator.
type SourceConnection struct {
	// SourceID is the unique identifier for the source.
	SourceID string

	// Type identifies the source type (e.g., "imap", "gmail", "fixture").
	Type string

	// Name is the human-readable name for this source.
	Name string

	// Config contains source-specific configuration, opaque to the core.
	Config map[string]string

	// State is the current connection state.
	State ConnectionState

	// LastError is the most recent human-readable failure, if any.
	LastError string

	// CreatedAt is when the source was registered.
	CreatedAt time.Time
}

// DisplayName returns the source name with its type appended when the
// name does not already mention it.
func (s *SourceConnection) DisplayName() string {
	if s.Name == "" {
		return s.SourceID
	}
	if s.Type != "" && !strings.Contains(strings.ToLower(s.Name), s.Type) {
		return fmt.Sprintf("%s (%s)", s.Name, s.Type)
	}
	return s.Name
}

// SourceDefinition is the persisted form of a registered source.
// Connection state is never persisted; sources reload disconnected.
type SourceDefinition struct {
	ID        string
	Type      string
	Name      string
	Config    map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}
