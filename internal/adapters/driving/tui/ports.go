// Package tui provides terminal views for homeqa: a live sync progress
// view and styled answer rendering.
package tui

import (
	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// ProgressSource reports sync progress. It is satisfied by
// driving.SyncOrchestrator.
type ProgressSource interface {
	GetProgress(sourceID string) (domain.SyncProgress, error)
}
