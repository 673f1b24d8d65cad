package mcp

import (
	"github.com/custodia-labs/homeqa/internal/core/ports/driving"
)

// Ports aggregates the driving ports the MCP server calls into.
type Ports struct {
	// Answers serves ask, search and index_stats.
	Answers driving.AnswerService

	// Sync exposes registered sources and their progress as resources.
	// Optional.
	Sync driving.SyncOrchestrator
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Answers == nil {
		return ErrMissingAnswerService
	}
	return nil
}
