package storage

import "github.com/google/uuid"

// Record is one chunk vector stored in the index. ID is "<sourceID>_<chunkID>".
// Text and timing are duplicated into the payload so search results need no
// second lookup.
type Record struct {
	ID        string
	SourceID  string
	ChunkID   string
	Text      string
	StartTime float64
	EndTime   float64
	Values    []float32
}

// ScoredRecord is a Record returned from a similarity search.
// Values are not populated on search results.
type ScoredRecord struct {
	Record
	Score float64
}

// RecordID builds the composite id of a chunk record.
func RecordID(sourceID, chunkID string) string {
	return sourceID + "_" + chunkID
}

// PointID maps a record id onto the UUID Qdrant requires for point ids.
// The mapping is stable, so re-upserting a record overwrites the same point.
func PointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(recordID)).String()
}

// DefaultCollection is the Qdrant collection holding transcript chunks.
const DefaultCollection = "transcripts"

// DefaultVectorDimension is the embedding size for text-embedding-3-small.
const DefaultVectorDimension = 1536

// vectorName is the named vector every chunk point carries.
const vectorName = "content"
