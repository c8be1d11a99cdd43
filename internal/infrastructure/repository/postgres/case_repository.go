package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/infrastructure/resilience"
)

// CaseRepository is the support case table. Emails match case-insensitively.
type CaseRepository struct {
	db   *sql.DB
	exec *resilience.Executor
}

func NewCaseRepository(db *sql.DB) *CaseRepository {
	return &CaseRepository{db: db, exec: defaultExecutor()}
}

func (r *CaseRepository) WithExecutor(exec *resilience.Executor) *CaseRepository {
	if exec != nil {
		r.exec = exec
	}
	return r
}

func (r *CaseRepository) Find(ctx context.Context, email string, status domain.CaseStatus) ([]domain.Case, error) {
	const query = `
SELECT id::text, email, category, title, description, status, created_at
FROM cases
WHERE lower(email) = lower($1) AND status = $2
ORDER BY created_at ASC, id ASC
`
	return resilience.Call(ctx, r.exec, "postgres.cases.find", func(attemptCtx context.Context) ([]domain.Case, error) {
		rows, err := r.db.QueryContext(attemptCtx, query, strings.TrimSpace(email), string(status))
		if err != nil {
			return nil, fmt.Errorf("query cases: %w", err)
		}
		defer rows.Close()

		out := make([]domain.Case, 0)
		for rows.Next() {
			c, err := scanCase(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate cases: %w", err)
		}
		return out, nil
	}, classifyStoreError)
}

func (r *CaseRepository) Create(ctx context.Context, fields domain.CaseFields) (*domain.Case, error) {
	status := fields.Status
	if status == "" {
		status = domain.CaseStatusOpen
	}
	const query = `
INSERT INTO cases (email, category, title, description, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING id::text, email, category, title, description, status, created_at
`
	// Inserts are not idempotent, so a failed attempt is never replayed.
	noRetry := func(err error) resilience.ErrorClassification {
		class := classifyStoreError(err)
		class.Retryable = false
		return class
	}
	return resilience.Call(ctx, r.exec, "postgres.cases.create", func(attemptCtx context.Context) (*domain.Case, error) {
		row := r.db.QueryRowContext(attemptCtx, query,
			strings.TrimSpace(fields.Email),
			fields.Category,
			fields.Title,
			fields.Description,
			string(status),
		)
		c, err := scanCase(row)
		if err != nil {
			return nil, err
		}
		return &c, nil
	}, noRetry)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (domain.Case, error) {
	var (
		c      domain.Case
		status string
	)
	if err := row.Scan(&c.ID, &c.Email, &c.Category, &c.Title, &c.Description, &status, &c.CreatedAt); err != nil {
		return domain.Case{}, fmt.Errorf("scan case: %w", err)
	}
	c.Status = domain.CaseStatus(status)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}
