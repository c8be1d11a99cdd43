package domain

import (
	"strconv"

	"github.com/google/uuid"
)

type RetrievalSource string

const (
	SourceDense  RetrievalSource = "dense"
	SourceSparse RetrievalSource = "sparse"
)

// TextChunk is an immutable slice of a knowledge document.
type TextChunk struct {
	ID             string `json:"id"`
	SourceDocument string `json:"source_document"`
	Offset         int    `json:"offset"`
	Text           string `json:"text"`
}

// ChunkID derives a stable identifier so re-indexing the same document overwrites
// instead of duplicating points.
func ChunkID(sourceDocument string, offset int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceDocument+"#"+strconv.Itoa(offset))).String()
}

// RetrievedPassage is a chunk scored for one query. A zero rank means the chunk
// was absent from that retriever's list.
type RetrievedPassage struct {
	Chunk      TextChunk       `json:"chunk"`
	Score      float64         `json:"score"`
	Source     RetrievalSource `json:"source"`
	DenseRank  int             `json:"dense_rank,omitempty"`
	SparseRank int             `json:"sparse_rank,omitempty"`
}

type IngestReport struct {
	Files   int      `json:"files"`
	Chunks  int      `json:"chunks"`
	Skipped []string `json:"skipped,omitempty"`
}
