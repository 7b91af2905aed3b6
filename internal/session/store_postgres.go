package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists sessions in the sessions table, one jsonb record
// per session. The upsert replaces the whole record in a single statement,
// which gives the atomic whole-record semantics Store requires.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT data FROM sessions WHERE id = $1 AND expires_at > now()`, id,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get session: %v", ErrStoreUnavailable, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: decode session %s: %v", ErrStoreUnavailable, id, err)
	}
	return &s, nil
}

func (p *PostgresStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: encode session: %v", ErrStoreUnavailable, err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO sessions (id, data, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (id) DO UPDATE SET data = $2, expires_at = $3, updated_at = now()`,
		s.ID, data, s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: save session: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete session: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (p *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: delete expired sessions: %v", ErrStoreUnavailable, err)
	}
	return tag.RowsAffected(), nil
}
