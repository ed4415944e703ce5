package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	execution_id TEXT PRIMARY KEY,
	graph        TEXT NOT NULL,
	status       TEXT NOT NULL,
	step         INTEGER NOT NULL,
	saved_at     INTEGER NOT NULL,
	data         BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_saved_at ON checkpoints(saved_at);
`

// SQLiteStore keeps snapshots in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at path. Use ":memory:"
// for a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init checkpoint schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, executionID string, snap *Snapshot) error {
	prepared, err := prepare(executionID, snap)
	if err != nil {
		return err
	}
	data, err := encodeSnapshot(prepared)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (execution_id, graph, status, step, saved_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id) DO UPDATE SET
			graph = excluded.graph,
			status = excluded.status,
			step = excluded.step,
			saved_at = excluded.saved_at,
			data = excluded.data`,
		executionID, prepared.Graph, string(prepared.Status), prepared.Step,
		prepared.SavedAt.UnixNano(), data,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, executionID string) (*Snapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM checkpoints WHERE execution_id = ?`, executionID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", executionID, err)
	}
	return snap, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]Info, error) {
	query := `SELECT execution_id, graph, status, step, saved_at FROM checkpoints WHERE 1=1`
	var args []any
	if filter.Graph != "" {
		query += ` AND graph = ?`
		args = append(args, filter.Graph)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY saved_at DESC, execution_id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var (
			info    Info
			status  string
			savedAt int64
		)
		if err := rows.Scan(&info.ExecutionID, &info.Graph, &status, &info.Step, &savedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		info.Status = Status(status)
		info.SavedAt = time.Unix(0, savedAt).UTC()
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, executionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE execution_id = ?`, executionID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
