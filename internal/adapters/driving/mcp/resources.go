package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

const uriScheme = "homeqa://"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "sources",
		Name:        "sources",
		Description: "Registered message sources and their connection state",
		MIMEType:    "application/json",
	}, s.handleSourcesResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "sources/{sourceId}/progress",
		Name:        "source-progress",
		Description: "Sync progress of a specific source",
		MIMEType:    "application/json",
	}, s.handleProgressResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "sources/{sourceId}/history",
		Name:        "source-history",
		Description: "Recent sync runs of a specific source",
		MIMEType:    "application/json",
	}, s.handleHistoryResource)
}

type sourceInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	State     string `json:"state"`
	LastError string `json:"last_error,omitempty"`
}

type progressInfo struct {
	SourceID        string     `json:"source_id"`
	IsSyncing       bool       `json:"is_syncing"`
	Percent         int        `json:"progress"`
	StatusMessage   string     `json:"status_message"`
	MessagesSeen    int        `json:"messages_added"`
	MessagesTotal   int        `json:"messages_fetched"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
}

// handleSourcesResource lists registered sources.
func (s *Server) handleSourcesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Sync == nil {
		return jsonResult(req.Params.URI, []sourceInfo{})
	}

	sources := s.ports.Sync.ListSources(ctx)
	infos := make([]sourceInfo, len(sources))
	for i, src := range sources {
		infos[i] = sourceInfo{
			ID:        src.SourceID,
			Name:      src.Name,
			Type:      src.Type,
			State:     src.State.String(),
			LastError: src.LastError,
		}
	}
	return jsonResult(req.Params.URI, infos)
}

// handleProgressResource returns the latest progress of one source.
func (s *Server) handleProgressResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	sourceID := extractSourceID(req.Params.URI, "progress")
	if s.ports.Sync == nil || sourceID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	p, err := s.ports.Sync.GetProgress(sourceID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting progress: %w", err)
	}

	return jsonResult(req.Params.URI, progressInfo{
		SourceID:        sourceID,
		IsSyncing:       p.IsSyncing,
		Percent:         p.Percent,
		StatusMessage:   p.StatusMessage,
		MessagesSeen:    p.MessagesSeen,
		MessagesTotal:   p.MessagesTotal,
		LastCompletedAt: p.LastCompletedAt,
	})
}

// handleHistoryResource returns recent sync runs of one source.
func (s *Server) handleHistoryResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	sourceID := extractSourceID(req.Params.URI, "history")
	if s.ports.Sync == nil || sourceID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	runs, err := s.ports.Sync.History(ctx, sourceID, 0)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting history: %w", err)
	}
	if runs == nil {
		runs = []domain.SyncRun{}
	}
	return jsonResult(req.Params.URI, runs)
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractSourceID extracts the source ID from a URI like
// homeqa://sources/{sourceId}/{suffix}.
func extractSourceID(uri, suffix string) string {
	const prefix = uriScheme + "sources/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	uri = strings.TrimPrefix(uri, prefix)
	if !strings.HasSuffix(uri, "/"+suffix) {
		return ""
	}
	id := strings.TrimSuffix(uri, "/"+suffix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
