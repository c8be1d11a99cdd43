package chunking

import (
	"strings"
	"testing"

	"github.com/kirillkom/support-assistant/internal/core/domain"
)

func TestSplitProducesOverlappingWindows(t *testing.T) {
	s := NewSplitter(10, 4)
	chunks := s.Split("faq.md", "abcdefghijklmnopqrstuvwxyz")

	wantOffsets := []int{0, 6, 12, 18}
	if len(chunks) != len(wantOffsets) {
		t.Fatalf("expected %d chunks, got %d", len(wantOffsets), len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Offset != wantOffsets[i] {
			t.Fatalf("chunk %d offset = %d, want %d", i, chunk.Offset, wantOffsets[i])
		}
		if chunk.ID != domain.ChunkID("faq.md", chunk.Offset) {
			t.Fatalf("chunk %d has unstable id %s", i, chunk.ID)
		}
	}
	if chunks[0].Text != "abcdefghij" || chunks[1].Text != "ghijklmnop" {
		t.Fatalf("unexpected windows %q %q", chunks[0].Text, chunks[1].Text)
	}
	if chunks[3].Text != "stuvwxyz" {
		t.Fatalf("unexpected tail %q", chunks[3].Text)
	}
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	s := NewSplitter(4, 0)
	chunks := s.Split("ru.txt", strings.Repeat("ж", 8))
	if len(chunks) != 2 || chunks[1].Offset != 4 {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
}

func TestSplitSkipsBlankWindows(t *testing.T) {
	s := NewSplitter(5, 0)
	chunks := s.Split("a.txt", "hello          world")
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk.Text) == "" {
			t.Fatalf("blank chunk at offset %d", chunk.Offset)
		}
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
}

func TestNewSplitterNormalizesSettings(t *testing.T) {
	s := NewSplitter(0, -1)
	if s.ChunkSize != DefaultChunkSize || s.Overlap != 0 {
		t.Fatalf("unexpected settings %+v", s)
	}
	s = NewSplitter(100, 100)
	if s.Overlap != 25 {
		t.Fatalf("expected overlap clamp to 25, got %d", s.Overlap)
	}
}
