package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink stores audit events in the audit_events table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (s *PostgresSink) Write(ctx context.Context, e Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_events (id, event_type, subject, email, path, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, string(e.Type), e.Subject, e.Email, e.Path, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
