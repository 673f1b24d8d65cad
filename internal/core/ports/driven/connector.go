package driven

import (
	"context"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// MessageSource is a provider of personal messages.
// Each source type (imap, gmail, maildir, fixture) implements this interface.
//
// Connection state moves DISCONNECTED -> CONNECTING -> CONNECTED or ERROR.
// Connect, Disconnect and TestConnection never return errors: failures are
// recorded in State and LastError.
type MessageSource interface {
	// ID returns the registered source ID.
	ID() string

	// Type returns the source type identifier.
	Type() string

	// Connect establishes the provider session.
	// Returns false on failure, leaving the source in StateError.
	Connect(ctx context.Context) bool

	// Disconnect tears down the session and returns to StateDisconnected.
	Disconnect(ctx context.Context) bool

	// TestConnection performs a lightweight liveness check.
	TestConnection(ctx context.Context) bool

	// FetchMessages returns at most limit messages in a deterministic order.
	// Returns domain.ErrNotConnected, without any I/O, unless connected.
	FetchMessages(ctx context.Context, limit int) ([]domain.Message, error)

	// State returns the current connection state.
	State() domain.ConnectionState

	// LastError returns the most recent human-readable failure.
	LastError() string

	// Close releases resources.
	Close() error
}

// Watcher is implemented by sources that can notify about new messages
// without polling, such as a watched maildir.
type Watcher interface {
	// Watch emits a value whenever new messages may be available.
	// The channel closes when ctx is cancelled or the source is closed.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
