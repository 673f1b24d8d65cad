package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

const defaultSearchLimit = 5

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question string            `json:"question" jsonschema:"a natural language question about the user's messages"`
	Filter   map[string]string `json:"filter,omitempty" jsonschema:"exact-match metadata filter, e.g. {\"sender\": \"boss@work.com\"}"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Response       string            `json:"response"`
	Intent         string            `json:"intent"`
	Sources        []domain.Citation `json:"sources"`
	ProcessingTime float64           `json:"processing_time"`
}

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"text to find semantically similar messages for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 5)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	DocumentID string  `json:"document_id"`
	Subject    string  `json:"subject"`
	Sender     string  `json:"sender"`
	Date       string  `json:"date,omitempty"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

// StatsInput is the empty input of the index_stats tool.
type StatsInput struct{}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question using the user's synced email messages, with cited sources",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Find the messages most similar to a query",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_stats",
		Description: "Describe the message index: document count, backend and embedding model",
	}, s.handleStats)
}

func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, AskOutput{}, domain.Validationf("question is required")
	}

	answer := s.ports.Answers.Ask(ctx, input.Question, domain.MetadataFilter(input.Filter))
	return nil, AskOutput{
		Response:       answer.Response,
		Intent:         string(answer.Intent),
		Sources:        answer.Sources,
		ProcessingTime: answer.ProcessingSeconds(),
	}, nil
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	results, err := s.ports.Answers.Search(ctx, input.Query, limit)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}
	for i, r := range results {
		output.Results[i] = SearchResultOutput{
			DocumentID: r.DocID,
			Subject:    r.Metadata[domain.MetaSubject],
			Sender:     r.Metadata[domain.MetaSender],
			Date:       r.Metadata[domain.MetaDate],
			Score:      r.Score,
			Content:    r.Content,
		}
	}
	return nil, output, nil
}

func (s *Server) handleStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ StatsInput,
) (*mcp.CallToolResult, domain.IndexStats, error) {
	return nil, s.ports.Answers.IndexStats(ctx), nil
}
