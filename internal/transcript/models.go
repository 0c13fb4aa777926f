// Package transcript holds the transcript data model and the chunker that
// splits caption tracks or plain text into overlapping, time-stamped windows.
package transcript

import "time"

// CaptionItem is one timed caption line. Start and Duration are in seconds.
type CaptionItem struct {
	Text     string
	Start    float64
	Duration float64
}

// Chunk is a window of transcript text with an estimated time range.
// Chunks are immutable once produced by the Chunker.
type Chunk struct {
	ID        string  `json:"chunkId"`
	Text      string  `json:"text"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
}

// Match is a chunk returned by a search, without its id.
type Match struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
}

// Status records how far a source transcript has progressed.
type Status string

const (
	// StatusExtracted means text and chunks are stored but not yet fully indexed.
	StatusExtracted Status = "extracted"
	// StatusUnavailable is the explicit empty marker written when no captions exist.
	// It stops repeat extraction attempts.
	StatusUnavailable Status = "unavailable"
	// StatusIndexed means every chunk was written to the vector index.
	StatusIndexed Status = "indexed"
)

// Origin records where the transcript text came from.
type Origin string

const (
	OriginCaptions Origin = "captions"
	OriginManual   Origin = "manual"
)

// Transcript is the stored transcript of one source video.
type Transcript struct {
	SourceID  string    `json:"sourceId"`
	Text      string    `json:"text"`
	Chunks    []Chunk   `json:"chunks"`
	Status    Status    `json:"status"`
	Origin    Origin    `json:"origin,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Available reports whether the transcript carries usable text.
func (t *Transcript) Available() bool {
	return t != nil && t.Status != StatusUnavailable && len(t.Chunks) > 0
}

// ToMatch drops the chunk id.
func (c Chunk) ToMatch() Match {
	return Match{Text: c.Text, StartTime: c.StartTime, EndTime: c.EndTime}
}
