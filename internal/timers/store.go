package timers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// DispatchHorizon bounds how far ahead the dispatch loop picks up a
	// row. Sleeping much past this is unreliable, so further-out timers
	// are left in the table and found on a later pass.
	DispatchHorizon = 40 * 24 * time.Hour

	// PeekHorizon is the short informational window used for status
	// output, not by the dispatch loop itself.
	PeekHorizon = 7 * 24 * time.Hour
)

// Store is the durable half of the scheduler. Rows are write-once,
// delete-once; there are no updates.
type Store interface {
	// Insert appends a row and returns its generated id.
	Insert(ctx context.Context, event string, p Payload, expires, created time.Time) (int64, error)
	// Earliest returns the pending timer with the smallest expiry among
	// rows expiring within horizon, or nil if there is none.
	Earliest(ctx context.Context, horizon time.Duration) (*Timer, error)
	// Delete removes a row. Deleting an id that is already gone is not
	// an error.
	Delete(ctx context.Context, id int64) error
}

// Querier is the slice of database/sql shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore persists timers in the bot's sqlite database.
type SQLiteStore struct {
	q Querier
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{q: db}
}

// WithTx returns a view of the store bound to tx, for callers that need
// the timer insert inside their own transaction.
func (s *SQLiteStore) WithTx(tx *sql.Tx) *SQLiteStore {
	return &SQLiteStore{q: tx}
}

func (s *SQLiteStore) Insert(ctx context.Context, event string, p Payload, expires, created time.Time) (int64, error) {
	if p.Args == nil {
		p.Args = []any{}
	}
	if p.Kwargs == nil {
		p.Kwargs = map[string]any{}
	}
	extra, err := json.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}

	res, err := s.q.ExecContext(ctx,
		`INSERT INTO timers (event, extra, expires, created) VALUES (?, ?, ?, ?)`,
		event, string(extra), expires.UTC().UnixMilli(), created.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) Earliest(ctx context.Context, horizon time.Duration) (*Timer, error) {
	cutoff := time.Now().UTC().Add(horizon).UnixMilli()

	row := s.q.QueryRowContext(ctx,
		`SELECT id, event, extra, expires, created
		 FROM timers
		 WHERE expires < ?
		 ORDER BY expires, id
		 LIMIT 1`,
		cutoff,
	)

	t, err := scanTimer(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM timers WHERE id = ?`, id)
	return err
}

// ListOwned returns up to limit pending timers of the given event whose
// args[0] is authorID, soonest first.
func (s *SQLiteStore) ListOwned(ctx context.Context, event, authorID string, limit int) ([]*Timer, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, event, extra, expires, created
		 FROM timers
		 WHERE event = ? AND json_extract(extra, '$.args[0]') = ?
		 ORDER BY expires, id
		 LIMIT ?`,
		event, authorID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Timer
	for rows.Next() {
		t, err := scanTimer(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteOwned removes one timer by id if it has the given event and
// belongs to authorID; it reports whether a row was removed.
func (s *SQLiteStore) DeleteOwned(ctx context.Context, id int64, event, authorID string) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM timers
		 WHERE id = ? AND event = ? AND json_extract(extra, '$.args[0]') = ?`,
		id, event, authorID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// CountOwned returns how many pending timers of the given event belong to
// authorID.
func (s *SQLiteStore) CountOwned(ctx context.Context, event, authorID string) (int64, error) {
	var n int64
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM timers
		 WHERE event = ? AND json_extract(extra, '$.args[0]') = ?`,
		event, authorID,
	).Scan(&n)
	return n, err
}

// ClearOwned removes every pending timer of the given event belonging to
// authorID and returns how many were removed.
func (s *SQLiteStore) ClearOwned(ctx context.Context, event, authorID string) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM timers
		 WHERE event = ? AND json_extract(extra, '$.args[0]') = ?`,
		event, authorID,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func scanTimer(scan func(dest ...any) error) (*Timer, error) {
	var (
		id               int64
		event, extra     string
		expires, created int64
	)
	if err := scan(&id, &event, &extra, &expires, &created); err != nil {
		return nil, err
	}

	var p Payload
	if err := json.Unmarshal([]byte(extra), &p); err != nil {
		return nil, fmt.Errorf("decode payload for timer %d: %w", id, err)
	}

	return &Timer{
		ID:      id,
		Event:   event,
		Args:    p.Args,
		Kwargs:  p.Kwargs,
		Expires: time.UnixMilli(expires).UTC(),
		Created: time.UnixMilli(created).UTC(),
	}, nil
}
