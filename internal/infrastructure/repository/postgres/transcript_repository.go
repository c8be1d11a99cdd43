package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/infrastructure/resilience"
)

// TranscriptRepository keeps the audit log of conversation turns.
type TranscriptRepository struct {
	db   *sql.DB
	exec *resilience.Executor
}

func NewTranscriptRepository(db *sql.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db, exec: defaultExecutor()}
}

func (r *TranscriptRepository) WithExecutor(exec *resilience.Executor) *TranscriptRepository {
	if exec != nil {
		r.exec = exec
	}
	return r
}

// AppendTurns writes turns in one transaction. Re-sending a turn with the same
// order is a no-op.
func (r *TranscriptRepository) AppendTurns(ctx context.Context, sessionID string, turns []domain.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}
	const query = `
INSERT INTO conversation_turns (session_id, turn_order, role, text, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (session_id, turn_order) DO NOTHING
`
	return r.exec.Execute(ctx, "postgres.transcript.append", func(attemptCtx context.Context) error {
		tx, err := r.db.BeginTx(attemptCtx, nil)
		if err != nil {
			return fmt.Errorf("begin transcript tx: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		for _, turn := range turns {
			if _, err := tx.ExecContext(attemptCtx, query, sessionID, turn.Order, string(turn.Role), turn.Text, turn.CreatedAt.UTC()); err != nil {
				return fmt.Errorf("insert turn %d: %w", turn.Order, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transcript tx: %w", err)
		}
		return nil
	}, classifyStoreError)
}

// ListTurns returns up to limit of the latest turns in chronological order.
func (r *TranscriptRepository) ListTurns(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
SELECT turn_order, role, text, created_at
FROM conversation_turns
WHERE session_id = $1
ORDER BY turn_order DESC
LIMIT $2
`
	return resilience.Call(ctx, r.exec, "postgres.transcript.list", func(attemptCtx context.Context) ([]domain.ConversationTurn, error) {
		rows, err := r.db.QueryContext(attemptCtx, query, sessionID, limit)
		if err != nil {
			return nil, fmt.Errorf("query turns: %w", err)
		}
		defer rows.Close()

		out := make([]domain.ConversationTurn, 0, limit)
		for rows.Next() {
			var (
				turn domain.ConversationTurn
				role string
			)
			if err := rows.Scan(&turn.Order, &role, &turn.Text, &turn.CreatedAt); err != nil {
				return nil, fmt.Errorf("scan turn: %w", err)
			}
			turn.Role = domain.Role(role)
			turn.CreatedAt = turn.CreatedAt.UTC()
			out = append(out, turn)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate turns: %w", err)
		}

		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
		return out, nil
	}, classifyStoreError)
}
