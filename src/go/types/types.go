// Package types holds the shared data model for the retrieval engine:
// chunks and full-text rows read from the external store, embedding
// vectors and cache records, and the result shape returned to callers.
package types

// Chunk is an immutable passage of text owned by an external file. Chunks
// are produced and owned by the ingestion pipeline; the engine only reads
// them.
type Chunk struct {
	ChunkID     int64  `json:"chunk_id"`
	FileUID     string `json:"file_uid"`
	Text        string `json:"text"`
	ContentHash []byte `json:"content_hash"` // 128-bit digest of the UTF-8 body
}

// FTSRow is one row returned from a full-text MATCH query: the chunk id,
// body text, raw BM25 score (lower is more relevant), and content hash.
type FTSRow struct {
	ChunkID  int64
	Text     string
	RawScore float64
	TextHash []byte
}

// Embedding is a fixed-dimension, L2-normalized float32 vector.
type Embedding struct {
	Vector []float32
	Dim    int
}

// CacheRecord is a persisted embedding cache row. Primary key is
// (ContentHash, Model, Dim, VersionKey).
type CacheRecord struct {
	ContentHash []byte
	Model       string
	Dim         int
	VersionKey  string
	Vector      []byte // little-endian float32 bytes, length 4*Dim
	Timestamp   float64
}

// RankStage enumerates the provenance tags attached to a Result.
type RankStage string

const (
	RankStageS1            RankStage = "S1"
	RankStageS1EmbedFail   RankStage = "S1_embed_fail"
	RankStageS3            RankStage = "S3"
	RankStageS3MMR         RankStage = "S3_MMR"
)

// Result is one returned passage-level hit. Ownership is transferred to
// the caller.
type Result struct {
	FileUID    string    `json:"file_uid"`
	FilePath   string    `json:"file_path"`
	ChunkID    int64     `json:"chunk_id"`
	Score      float64   `json:"score"`
	Snippet    string    `json:"snippet"`
	RankStage  RankStage `json:"rank_stage"`
}
