package chunking

import (
	"strings"

	"github.com/kirillkom/support-assistant/internal/core/domain"
)

const (
	DefaultChunkSize = 800
	DefaultOverlap   = 200
)

// Splitter cuts text into fixed-size rune windows that overlap by Overlap runes.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

// Split returns the chunks of text in document order. Offset is the rune index of
// the window start, which together with sourceDocument identifies the chunk.
func (s *Splitter) Split(sourceDocument, text string) []domain.TextChunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]domain.TextChunk, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+s.ChunkSize, len(runes))
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, domain.TextChunk{
				ID:             domain.ChunkID(sourceDocument, start),
				SourceDocument: sourceDocument,
				Offset:         start,
				Text:           chunk,
			})
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
