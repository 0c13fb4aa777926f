// Package mcp exposes transcript search and retrieval as Model Context
// Protocol tools.
package mcp

// SearchTranscriptsInput defines the input parameters for the search_transcripts tool.
type SearchTranscriptsInput struct {
	Query      string `json:"query" jsonschema:"what to look for in the lecture transcripts"`
	SourceID   string `json:"source_id,omitempty" jsonschema:"YouTube video id to search within; omit to search every video"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum number of excerpts to return, 1 to 20, default 5"`
}

// SearchTranscriptsOutput contains the matching excerpts.
type SearchTranscriptsOutput struct {
	// Mode is vector, substring or none.
	Mode    string    `json:"mode"`
	Results []Excerpt `json:"results"`
	// Message explains an empty result.
	Message string `json:"message,omitempty"`
}

// Excerpt is one transcript window with its time range.
type Excerpt struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	// Range is the human readable form, e.g. "1:00 - 1:30".
	Range string `json:"range"`
}

// GetTranscriptInput defines the input parameters for the get_transcript tool.
type GetTranscriptInput struct {
	SourceID string `json:"source_id" jsonschema:"YouTube video id"`
}

// GetTranscriptOutput contains a stored transcript. Found is false when the
// video has no captions.
type GetTranscriptOutput struct {
	SourceID string `json:"source_id"`
	Found    bool   `json:"found"`
	Status   string `json:"status"`
	Origin   string `json:"origin,omitempty"`
	Text     string `json:"text,omitempty"`
	Chunks   int    `json:"chunks"`
}
