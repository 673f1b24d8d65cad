// Package services implements the driving port interfaces.
// Services contain the core logic of homeqa and orchestrate
// calls to driven ports (adapters).
//
//   - VectorIndex: embeds messages and ranks them against a query
//   - SyncOrchestrator: owns the source registry and runs sync tasks
//   - Synthesizer: classifies a question and composes a cited answer
//   - Scheduler: runs SyncAll on a cron schedule
//
// Concrete sources reach the orchestrator only through a SourceFactory;
// NewDefaultSourceFactory registers the built-in ones.
package services
