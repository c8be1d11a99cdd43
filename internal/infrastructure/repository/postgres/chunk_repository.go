package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/infrastructure/resilience"
)

// ChunkRepository persists the knowledge corpus so the lexical index can be
// rebuilt after a restart.
type ChunkRepository struct {
	db   *sql.DB
	exec *resilience.Executor
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db, exec: defaultExecutor()}
}

func (r *ChunkRepository) WithExecutor(exec *resilience.Executor) *ChunkRepository {
	if exec != nil {
		r.exec = exec
	}
	return r
}

// ReplaceSource deletes every stored chunk of source and inserts chunks in one
// transaction, so a shorter new version leaves no stale tail behind.
func (r *ChunkRepository) ReplaceSource(ctx context.Context, source string, chunks []domain.TextChunk) error {
	const deleteQuery = `DELETE FROM knowledge_chunks WHERE source = $1`
	const upsertQuery = `
INSERT INTO knowledge_chunks (id, source, chunk_offset, text, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (id) DO UPDATE SET
	source = EXCLUDED.source,
	chunk_offset = EXCLUDED.chunk_offset,
	text = EXCLUDED.text,
	updated_at = NOW()
`
	return r.exec.Execute(ctx, "postgres.chunks.replace", func(attemptCtx context.Context) error {
		tx, err := r.db.BeginTx(attemptCtx, nil)
		if err != nil {
			return fmt.Errorf("begin chunks tx: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		if _, err := tx.ExecContext(attemptCtx, deleteQuery, source); err != nil {
			return fmt.Errorf("delete chunks of %s: %w", source, err)
		}
		for _, chunk := range chunks {
			if _, err := tx.ExecContext(attemptCtx, upsertQuery, chunk.ID, chunk.SourceDocument, chunk.Offset, chunk.Text); err != nil {
				return fmt.Errorf("upsert chunk %s: %w", chunk.ID, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit chunks tx: %w", err)
		}
		return nil
	}, classifyStoreError)
}

func (r *ChunkRepository) ListChunks(ctx context.Context) ([]domain.TextChunk, error) {
	const query = `
SELECT id, source, chunk_offset, text
FROM knowledge_chunks
ORDER BY source ASC, chunk_offset ASC
`
	return resilience.Call(ctx, r.exec, "postgres.chunks.list", func(attemptCtx context.Context) ([]domain.TextChunk, error) {
		rows, err := r.db.QueryContext(attemptCtx, query)
		if err != nil {
			return nil, fmt.Errorf("query chunks: %w", err)
		}
		defer rows.Close()

		out := make([]domain.TextChunk, 0)
		for rows.Next() {
			var chunk domain.TextChunk
			if err := rows.Scan(&chunk.ID, &chunk.SourceDocument, &chunk.Offset, &chunk.Text); err != nil {
				return nil, fmt.Errorf("scan chunk: %w", err)
			}
			out = append(out, chunk)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate chunks: %w", err)
		}
		return out, nil
	}, classifyStoreError)
}
