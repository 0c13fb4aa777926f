package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/lecture-rag/internal/retrieval"
	"github.com/bull/lecture-rag/internal/transcript"
)

const maxSearchResults = 20

// makeSearchHandler creates the search_transcripts tool handler.
// Results keep the order of the underlying search: relevance for vector
// matches, transcript order for substring matches.
func makeSearchHandler(r Retriever, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, SearchTranscriptsInput,
) (*mcp.CallToolResult, SearchTranscriptsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchTranscriptsInput) (
		*mcp.CallToolResult, SearchTranscriptsOutput, error,
	) {
		if input.Query == "" {
			return nil, SearchTranscriptsOutput{}, fmt.Errorf("query is required")
		}
		limit := input.MaxResults
		if limit <= 0 {
			limit = retrieval.DefaultLimit
		}
		if limit > maxSearchResults {
			limit = maxSearchResults
		}

		result, err := r.Search(ctx, input.Query, input.SourceID, limit)
		if err != nil {
			return nil, SearchTranscriptsOutput{}, fmt.Errorf("search failed: %w", err)
		}
		logger.Debug("search_transcripts", "source", input.SourceID, "mode", result.Mode, "results", len(result.Matches))

		out := SearchTranscriptsOutput{
			Mode:    string(result.Mode),
			Results: make([]Excerpt, 0, len(result.Matches)),
		}
		for _, m := range result.Matches {
			out.Results = append(out.Results, Excerpt{
				Text:      m.Text,
				StartTime: m.StartTime,
				EndTime:   m.EndTime,
				Range:     transcript.FormatRange(m.StartTime, m.EndTime),
			})
		}
		if len(out.Results) == 0 {
			out.Message = "No relevant transcript content found. Try broader search terms or another video."
		}
		return nil, out, nil
	}
}

// makeTranscriptHandler creates the get_transcript tool handler.
func makeTranscriptHandler(r Retriever) func(
	context.Context, *mcp.CallToolRequest, GetTranscriptInput,
) (*mcp.CallToolResult, GetTranscriptOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetTranscriptInput) (
		*mcp.CallToolResult, GetTranscriptOutput, error,
	) {
		if input.SourceID == "" {
			return nil, GetTranscriptOutput{}, fmt.Errorf("source_id is required")
		}

		t, err := r.EnsureTranscript(ctx, input.SourceID)
		if err != nil {
			return nil, GetTranscriptOutput{}, fmt.Errorf("failed to load transcript: %w", err)
		}

		return nil, GetTranscriptOutput{
			SourceID: t.SourceID,
			Found:    t.Available(),
			Status:   string(t.Status),
			Origin:   string(t.Origin),
			Text:     t.Text,
			Chunks:   len(t.Chunks),
		}, nil
	}
}
