package connectors

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/logger"
)

// StateMachine guards the connection lifecycle of a message source.
// Connect and Disconnect are serialised; State and LastError never block
// on a connection attempt in flight.
type StateMachine struct {
	opMu sync.Mutex

	mu      sync.RWMutex
	state   domain.ConnectionState
	lastErr string
}

// State returns the current connection state.
func (m *StateMachine) State() domain.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == "" {
		return domain.StateDisconnected
	}
	return m.state
}

// LastError returns the most recent failure text.
func (m *StateMachine) LastError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Connect moves through CONNECTING and runs dial. A failed or panicking
// dial leaves the machine in ERROR with LastError set. Connecting an
// already connected source is a no-op that reports success.
func (m *StateMachine) Connect(ctx context.Context, dial func(ctx context.Context) error) bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.State() == domain.StateConnected {
		return true
	}
	m.set(domain.StateConnecting, "")

	if err := guard(ctx, dial); err != nil {
		m.set(domain.StateError, err.Error())
		logger.Debug("connect failed: %v", err)
		return false
	}
	m.set(domain.StateConnected, "")
	return true
}

// Disconnect runs hangup if connected and always ends DISCONNECTED.
// It returns false only when hangup failed; the failure is kept in LastError.
func (m *StateMachine) Disconnect(ctx context.Context, hangup func(ctx context.Context) error) bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.State() != domain.StateConnected || hangup == nil {
		m.set(domain.StateDisconnected, m.LastError())
		return true
	}
	if err := guard(ctx, hangup); err != nil {
		m.set(domain.StateDisconnected, err.Error())
		return false
	}
	m.set(domain.StateDisconnected, "")
	return true
}

// Test runs ping when connected. State is not changed by a failed ping.
func (m *StateMachine) Test(ctx context.Context, ping func(ctx context.Context) error) bool {
	if m.State() != domain.StateConnected {
		return false
	}
	if ping == nil {
		return true
	}
	if err := guard(ctx, ping); err != nil {
		m.mu.Lock()
		m.lastErr = err.Error()
		m.mu.Unlock()
		return false
	}
	return true
}

// RequireConnected returns domain.ErrNotConnected unless connected.
func (m *StateMachine) RequireConnected() error {
	if s := m.State(); s != domain.StateConnected {
		return fmt.Errorf("%w (state %s)", domain.ErrNotConnected, s)
	}
	return nil
}

// CheckLimit rejects non-positive fetch limits.
func CheckLimit(limit int) error {
	if limit <= 0 {
		return domain.Validationf("fetch limit must be positive, got %d", limit)
	}
	return nil
}

func (m *StateMachine) set(state domain.ConnectionState, lastErr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.lastErr = lastErr
}

// guard calls fn, converting a panic into an error.
func guard(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
