package worklist

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gitlab.com/tozd/go/errors"

	_ "modernc.org/sqlite"
)

// DBFile is the ledger file name inside the work list directory.
const DBFile = "worklist.db"

// now is swapped in tests.
var now = func() time.Time { return time.Now().UTC() }

// Store is the SQLite-backed work list.
//
// A single connection is used so every mutation is serialized inside the
// process; claims additionally guard on the current state so two processes
// sharing a directory cannot claim the same key.
type Store struct {
	db  *sql.DB
	dir string
}

// Open opens (or creates) the ledger under dir.
func Open(ctx context.Context, dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("worklist: dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Errorf("worklist: create dir: %w", err)
	}

	dsn := filepath.Join(dir, DBFile) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Errorf("worklist: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dir: dir}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, errors.Errorf("worklist: migrate: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Dir returns the directory holding the ledger.
func (s *Store) Dir() string { return s.dir }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS work_items (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			key        TEXT NOT NULL UNIQUE,
			state      TEXT NOT NULL DEFAULT 'pending',
			reason     TEXT NOT NULL DEFAULT '',
			batch_id   TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS work_items_state_seq ON work_items(state, seq)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Initialize records every key not seen before as Pending and returns how many
// were added. Known keys keep their state, so re-seeding after a partial run
// never resurrects Done or Failed items.
func (s *Store) Initialize(ctx context.Context, keys []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Errorf("worklist: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO work_items (key, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO NOTHING`)
	if err != nil {
		return 0, errors.Errorf("worklist: prepare seed: %w", err)
	}
	defer stmt.Close()

	ts := now().Format(time.RFC3339Nano)
	added := 0
	for _, k := range keys {
		if k == "" {
			continue
		}
		res, err := stmt.ExecContext(ctx, k, StatePending, ts)
		if err != nil {
			return 0, errors.Errorf("worklist: seed %q: %w", k, err)
		}
		n, _ := res.RowsAffected()
		added += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Errorf("worklist: commit seed: %w", err)
	}
	return added, nil
}

// ClaimBatch moves up to n Pending items, oldest first, to Claimed and
// returns them. The change is committed before ClaimBatch returns. An empty
// batch means nothing is Pending.
func (s *Store) ClaimBatch(ctx context.Context, n int) (BatchRequest, error) {
	if n < 1 {
		return BatchRequest{}, errors.Errorf("worklist: batch size must be >= 1, got %d", n)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return BatchRequest{}, errors.Errorf("worklist: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx,
		`SELECT key FROM work_items WHERE state = ? ORDER BY seq LIMIT ?`, StatePending, n)
	if err != nil {
		return BatchRequest{}, errors.Errorf("worklist: select pending: %w", err)
	}
	var candidates []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return BatchRequest{}, errors.Errorf("worklist: scan: %w", err)
		}
		candidates = append(candidates, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return BatchRequest{}, errors.Errorf("worklist: select pending: %w", err)
	}

	batch := BatchRequest{ID: uuid.New()}
	ts := now().Format(time.RFC3339Nano)
	for _, k := range candidates {
		res, err := tx.ExecContext(ctx,
			`UPDATE work_items SET state = ?, batch_id = ?, updated_at = ?
			 WHERE key = ? AND state = ?`,
			StateClaimed, batch.ID.String(), ts, k, StatePending)
		if err != nil {
			return BatchRequest{}, errors.Errorf("worklist: claim %q: %w", k, err)
		}
		if aff, _ := res.RowsAffected(); aff == 1 {
			batch.Keys = append(batch.Keys, k)
		}
	}
	if err := tx.Commit(); err != nil {
		return BatchRequest{}, errors.Errorf("worklist: commit claim: %w", err)
	}
	return batch, nil
}

// MarkDone finalizes a Claimed item as Done. Calling it again on a Done item
// is a no-op.
func (s *Store) MarkDone(ctx context.Context, key string) error {
	return s.finish(ctx, key, StateDone, "")
}

// MarkFailed finalizes a Claimed item as Failed with reason. Calling it again
// on a Failed item is a no-op and keeps the first reason.
func (s *Store) MarkFailed(ctx context.Context, key, reason string) error {
	return s.finish(ctx, key, StateFailed, reason)
}

func (s *Store) finish(ctx context.Context, key string, to State, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Errorf("worklist: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	cur, err := stateOf(ctx, tx, key)
	if err != nil {
		return err
	}
	switch cur {
	case to:
		return nil
	case StateClaimed:
	default:
		return errors.Errorf("%w: %q is %s, cannot become %s", ErrInvalidTransition, key, cur, to)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE work_items SET state = ?, reason = ?, updated_at = ? WHERE key = ?`,
		to, reason, now().Format(time.RFC3339Nano), key); err != nil {
		return errors.Errorf("worklist: mark %s %q: %w", to, key, err)
	}
	if err := tx.Commit(); err != nil {
		return errors.Errorf("worklist: commit mark: %w", err)
	}
	return nil
}

// Requeue returns a Claimed or Failed item to Pending. It is the manual
// reconciliation path for items stranded by a crash; Done items cannot be
// requeued. Requeueing a Pending item is a no-op.
func (s *Store) Requeue(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Errorf("worklist: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	cur, err := stateOf(ctx, tx, key)
	if err != nil {
		return err
	}
	switch cur {
	case StatePending:
		return nil
	case StateClaimed, StateFailed:
	default:
		return errors.Errorf("%w: %q is %s, cannot be requeued", ErrInvalidTransition, key, cur)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE work_items SET state = ?, reason = '', batch_id = '', updated_at = ? WHERE key = ?`,
		StatePending, now().Format(time.RFC3339Nano), key); err != nil {
		return errors.Errorf("worklist: requeue %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return errors.Errorf("worklist: commit requeue: %w", err)
	}
	return nil
}

func stateOf(ctx context.Context, tx *sql.Tx, key string) (State, error) {
	var st string
	err := tx.QueryRowContext(ctx, `SELECT state FROM work_items WHERE key = ?`, key).Scan(&st)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.Errorf("%w: unknown key %q", ErrInvalidTransition, key)
	}
	if err != nil {
		return "", errors.Errorf("worklist: lookup %q: %w", key, err)
	}
	return State(st), nil
}

// Items returns every item in seed order.
func (s *Store) Items(ctx context.Context) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, state, reason, batch_id, updated_at FROM work_items ORDER BY seq`)
	if err != nil {
		return nil, errors.Errorf("worklist: list: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var (
			it Item
			st string
			ts string
		)
		if err := rows.Scan(&it.Key, &st, &it.Reason, &it.BatchID, &ts); err != nil {
			return nil, errors.Errorf("worklist: scan: %w", err)
		}
		it.State = State(st)
		it.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Errorf("worklist: list: %w", err)
	}
	return out, nil
}

// Counts returns the number of items per state. Every state is present.
func (s *Store) Counts(ctx context.Context) (map[State]int, error) {
	out := make(map[State]int, len(States))
	for _, st := range States {
		out[st] = 0
	}
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM work_items GROUP BY state`)
	if err != nil {
		return nil, errors.Errorf("worklist: count: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			st string
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, errors.Errorf("worklist: scan: %w", err)
		}
		out[State(st)] = n
	}
	return out, rows.Err()
}
