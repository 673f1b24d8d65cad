package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

const defaultSearchLimit = 10

// ChatRequest asks a question, optionally restricted by metadata.
type ChatRequest struct {
	Message       string            `json:"message"`
	ContextFilter map[string]string `json:"context_filter,omitempty"`
}

// ChatResponse is a synthesised answer.
type ChatResponse struct {
	Response       string            `json:"response"`
	Sources        []domain.Citation `json:"sources"`
	ProcessingTime float64           `json:"processing_time"`
	Intent         domain.Intent     `json:"intent"`
}

// SearchRequest is a direct semantic search.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// SearchResult is one ranked passage.
type SearchResult struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Score    float64           `json:"score"`
}

// SearchResponse lists ranked passages.
type SearchResponse struct {
	Query        string         `json:"query"`
	Results      []SearchResult `json:"results"`
	TotalResults int            `json:"total_results"`
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "homeqa personal message knowledge base",
		"status":    "running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"endpoints": gin.H{
			"health":     "/health",
			"connectors": "/connectors",
			"chat":       "/chat",
			"search":     "/search",
			"stats":      "/stats",
		},
	})
}

func (s *Server) health(c *gin.Context) {
	stats := s.ports.Answers.IndexStats(c.Request.Context())
	status, code := "healthy", http.StatusOK
	if stats.Error != "" {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":          status,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"vector_db":       stats.Backend,
		"embedding_model": stats.EmbeddingModel,
		"error":           stats.Error,
	})
}

func (s *Server) chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.Validationf("invalid request body: %v", err))
		return
	}

	answer := s.ports.Answers.Ask(c.Request.Context(), req.Message, domain.MetadataFilter(req.ContextFilter))
	c.JSON(http.StatusOK, ChatResponse{
		Response:       answer.Response,
		Sources:        answer.Sources,
		ProcessingTime: answer.ProcessingSeconds(),
		Intent:         answer.Intent,
	})
}

func (s *Server) search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.Validationf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(c, domain.Validationf("query is required"))
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}

	results, err := s.ports.Answers.Search(c.Request.Context(), req.Query, req.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	out := SearchResponse{Query: req.Query, Results: make([]SearchResult, len(results)), TotalResults: len(results)}
	for i, r := range results {
		out.Results[i] = SearchResult{ID: r.DocID, Content: r.Content, Metadata: r.Metadata, Score: r.Score}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) stats(c *gin.Context) {
	ctx := c.Request.Context()
	sources := s.ports.Sync.ListSources(ctx)

	connected := 0
	statuses := make(map[string]SyncStatusResponse, len(sources))
	for _, src := range sources {
		if src.State == domain.StateConnected {
			connected++
		}
		if p, err := s.ports.Sync.GetProgress(src.SourceID); err == nil {
			statuses[src.SourceID] = toSyncStatus(src.SourceID, p)
		}
	}

	body := gin.H{
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"vector_database": s.ports.Answers.IndexStats(ctx),
		"connectors": gin.H{
			"total_connectors":     len(sources),
			"connected_connectors": connected,
			"sync_status":          statuses,
		},
		"system_status": "operational",
	}
	if sched := s.ports.Scheduler; sched != nil {
		info := gin.H{"running": sched.IsRunning()}
		if next := sched.NextRun(); !next.IsZero() {
			info["next_run"] = next.UTC().Format(time.RFC3339)
		}
		body["scheduler"] = info
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) runScheduler(c *gin.Context) {
	if err := s.ports.Scheduler.RunOnce(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "syncing", "message": "Sync of all connected sources started"})
}
