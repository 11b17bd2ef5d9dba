package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQL stores encoded states in the dialogues table created by the embedded
// migrations. It works with the postgres and sqlite3 drivers.
type SQL[S any] struct {
	db    *sqlx.DB
	codec Codec[S]
	now   func() time.Time

	getQuery string
	setQuery string
}

// NewSQL returns a Store backed by db.
func NewSQL[S any](db *sqlx.DB, codec Codec[S]) *SQL[S] {
	return &SQL[S]{
		db:       db,
		codec:    codec,
		now:      time.Now,
		getQuery: db.Rebind(`SELECT state FROM dialogues WHERE chat_id = ?`),
		setQuery: db.Rebind(`INSERT INTO dialogues (chat_id, state, updated_at) VALUES (?, ?, ?)
ON CONFLICT (chat_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`),
	}
}

// Get loads and decodes the state for key.
func (s *SQL[S]) Get(ctx context.Context, key int64) (S, bool, error) {
	var zero S
	var raw string
	if err := s.db.GetContext(ctx, &raw, s.getQuery, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("state: load %d: %w", key, err)
	}
	v, err := s.codec.Unmarshal([]byte(raw))
	if err != nil {
		return zero, false, fmt.Errorf("state: decode %d: %w", key, err)
	}
	return v, true, nil
}

// Set encodes and upserts the state for key.
func (s *SQL[S]) Set(ctx context.Context, key int64, value S) error {
	data, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %d: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx, s.setQuery, key, string(data), s.now().UTC()); err != nil {
		return fmt.Errorf("state: save %d: %w", key, err)
	}
	return nil
}
