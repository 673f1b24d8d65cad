// Package mcp provides an MCP (Model Context Protocol) server adapter for homeqa.
// It lets AI assistants ask questions about, and search, the user's indexed messages.
package mcp

import "errors"

// ErrMissingAnswerService is returned when the answer service is not provided.
var ErrMissingAnswerService = errors.New("mcp: answer service is required")
