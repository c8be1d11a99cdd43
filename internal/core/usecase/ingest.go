package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/core/ports"
)

const defaultEmbedBatchSize = 32

var supportedKnowledgeExt = map[string]struct{}{
	".pdf":  {},
	".xlsx": {},
	".txt":  {},
	".md":   {},
}

// IngestKnowledgeUseCase loads knowledge files into the dense index, the chunk
// corpus and the in-memory lexical index.
type IngestKnowledgeUseCase struct {
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	dense     ports.DenseIndex
	corpus    ports.ChunkStore
	lexical   ports.LexicalIndex
	batchSize int
}

func NewIngestKnowledgeUseCase(
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	dense ports.DenseIndex,
	corpus ports.ChunkStore,
	lexical ports.LexicalIndex,
	batchSize int,
) *IngestKnowledgeUseCase {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	return &IngestKnowledgeUseCase{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		dense:     dense,
		corpus:    corpus,
		lexical:   lexical,
		batchSize: batchSize,
	}
}

// IngestPath ingests one file or every supported file under a directory. A
// document is keyed by its path relative to the ingest root (its base name for a
// single file), and re-ingesting it replaces all of its previous chunks.
func (uc *IngestKnowledgeUseCase) IngestPath(ctx context.Context, path string) (domain.IngestReport, error) {
	files, err := collectKnowledgeFiles(path)
	if err != nil {
		return domain.IngestReport{}, domain.WrapError(domain.ErrInvalidInput, "collect files", err)
	}

	var report domain.IngestReport
	for _, file := range files {
		n, err := uc.ingestFile(ctx, file, sourceName(path, file))
		if err != nil {
			if domain.IsKind(err, domain.ErrInvalidInput) {
				slog.Warn("knowledge_file_skipped", "file", file, "error", err)
				report.Skipped = append(report.Skipped, file)
				continue
			}
			return report, err
		}
		report.Files++
		report.Chunks += n
	}

	if err := uc.RefreshLexical(ctx); err != nil {
		return report, err
	}
	return report, nil
}

// RefreshLexical rebuilds the lexical index from the stored corpus.
func (uc *IngestKnowledgeUseCase) RefreshLexical(ctx context.Context) error {
	if uc.lexical == nil || uc.corpus == nil {
		return nil
	}
	chunks, err := uc.corpus.ListChunks(ctx)
	if err != nil {
		return fmt.Errorf("list corpus chunks: %w", err)
	}
	uc.lexical.Rebuild(chunks)
	return nil
}

func (uc *IngestKnowledgeUseCase) ingestFile(ctx context.Context, path, source string) (int, error) {
	text, err := uc.extractor.Extract(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}

	chunks := uc.chunker.Split(source, text)
	if len(chunks) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "split text", errors.New("no chunks produced"))
	}

	if err := uc.dense.DeleteSource(ctx, source); err != nil {
		return 0, fmt.Errorf("drop previous vectors: %w", err)
	}
	for start := 0; start < len(chunks); start += uc.batchSize {
		end := min(start+uc.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}
		vectors, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(batch) {
			return 0, fmt.Errorf("embed chunks: expected %d vectors, got %d", len(batch), len(vectors))
		}
		if err := uc.dense.IndexChunks(ctx, batch, vectors); err != nil {
			return 0, fmt.Errorf("index chunks: %w", err)
		}
	}

	if uc.corpus != nil {
		if err := uc.corpus.ReplaceSource(ctx, source, chunks); err != nil {
			return 0, domain.WrapError(domain.ErrExternalStore, "save corpus chunks", err)
		}
	}

	slog.Info("knowledge_file_ingested", "file", path, "source", source, "chunks", len(chunks))
	return len(chunks), nil
}

// sourceName is file relative to root in slash form, or the base name when root
// is the file itself.
func sourceName(root, file string) string {
	rel, err := filepath.Rel(root, file)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return filepath.Base(file)
	}
	return filepath.ToSlash(rel)
}

func collectKnowledgeFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := supportedKnowledgeExt[strings.ToLower(filepath.Ext(path))]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
