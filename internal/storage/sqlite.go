package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

// ErrNotFound is returned when a requested entity doesn't exist
var ErrNotFound = types.ErrNotFound

// SQLiteStorage implements both VectorIndex and StateStore on one SQLite
// database.
type SQLiteStorage struct {
	db *sql.DB
}

var (
	_ VectorIndex = (*SQLiteStorage)(nil)
	_ StateStore  = (*SQLiteStorage)(nil)
)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single writer. This also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn inside a transaction, committing on success.
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Workspace operations

func (s *SQLiteStorage) GetWorkspace(ctx context.Context, name string) (*Workspace, error) {
	query := `
		SELECT name, tracked_file_count, chunk_count, last_update_at,
		       last_error_count, last_error, created_at, updated_at
		FROM workspaces
		WHERE name = ?
	`
	ws, err := scanWorkspace(s.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return ws, nil
}

func (s *SQLiteStorage) UpsertWorkspace(ctx context.Context, ws *Workspace) error {
	query := `
		INSERT INTO workspaces (name, tracked_file_count, chunk_count, last_update_at,
		                        last_error_count, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			tracked_file_count = excluded.tracked_file_count,
			chunk_count = excluded.chunk_count,
			last_update_at = excluded.last_update_at,
			last_error_count = excluded.last_error_count,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
		RETURNING created_at
	`
	now := time.Now()
	var created int64
	err := s.db.QueryRowContext(ctx, query,
		ws.Name, ws.TrackedFileCount, ws.ChunkCount, unixNano(ws.LastUpdateAt),
		ws.LastErrorCount, ws.LastError, now.UnixNano(), now.UnixNano()).Scan(&created)
	if err != nil {
		return fmt.Errorf("failed to upsert workspace: %w", err)
	}
	ws.CreatedAt = time.Unix(0, created)
	ws.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) ListWorkspaces(ctx context.Context) ([]*Workspace, error) {
	query := `
		SELECT name, tracked_file_count, chunk_count, last_update_at,
		       last_error_count, last_error, created_at, updated_at
		FROM workspaces
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkspace(row rowScanner) (*Workspace, error) {
	var ws Workspace
	var lastUpdate, created, updated int64
	err := row.Scan(&ws.Name, &ws.TrackedFileCount, &ws.ChunkCount, &lastUpdate,
		&ws.LastErrorCount, &ws.LastError, &created, &updated)
	if err != nil {
		return nil, err
	}
	ws.LastUpdateAt = fromUnixNano(lastUpdate)
	ws.CreatedAt = fromUnixNano(created)
	ws.UpdatedAt = fromUnixNano(updated)
	return &ws, nil
}

// Tracked file operations

func (s *SQLiteStorage) TrackedFiles(ctx context.Context, workspace string) (map[string]*TrackedFile, error) {
	query := `
		SELECT workspace, path, content_hash, language, chunk_count, indexed_at
		FROM tracked_files
		WHERE workspace = ?
	`
	rows, err := s.db.QueryContext(ctx, query, workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]*TrackedFile)
	for rows.Next() {
		var f TrackedFile
		var indexed int64
		if err := rows.Scan(&f.Workspace, &f.Path, &f.ContentHash, &f.Language, &f.ChunkCount, &indexed); err != nil {
			return nil, err
		}
		f.IndexedAt = fromUnixNano(indexed)
		out[f.Path] = &f
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) TrackFile(ctx context.Context, file *TrackedFile) error {
	if file.IndexedAt.IsZero() {
		file.IndexedAt = time.Now()
	}
	return s.withTx(ctx, func(q querier) error {
		if err := ensureWorkspace(ctx, q, file.Workspace); err != nil {
			return err
		}
		query := `
			INSERT INTO tracked_files (workspace, path, content_hash, language, chunk_count, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(workspace, path) DO UPDATE SET
				content_hash = excluded.content_hash,
				language = excluded.language,
				chunk_count = excluded.chunk_count,
				indexed_at = excluded.indexed_at
		`
		_, err := q.ExecContext(ctx, query, file.Workspace, file.Path, file.ContentHash,
			file.Language, file.ChunkCount, file.IndexedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to track file: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStorage) UntrackFile(ctx context.Context, workspace, path string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM tracked_files WHERE workspace = ? AND path = ?", workspace, path)
	if err != nil {
		return fmt.Errorf("failed to untrack file: %w", err)
	}
	return nil
}

// ensureWorkspace creates the workspace row if it does not exist yet.
func ensureWorkspace(ctx context.Context, q querier, name string) error {
	now := time.Now().UnixNano()
	_, err := q.ExecContext(ctx,
		"INSERT INTO workspaces (name, created_at, updated_at) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING",
		name, now, now)
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

// Record operations

func (s *SQLiteStorage) Upsert(ctx context.Context, records []types.Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.withTx(ctx, func(q querier) error {
		return insertRecords(ctx, q, records)
	})
}

func (s *SQLiteStorage) ReplaceSource(ctx context.Context, workspace, sourcePath string, records []types.Record) error {
	return s.withTx(ctx, func(q querier) error {
		if _, err := deleteSource(ctx, q, workspace, sourcePath); err != nil {
			return err
		}
		return insertRecords(ctx, q, records)
	})
}

func (s *SQLiteStorage) DeleteSource(ctx context.Context, workspace, sourcePath string) (int, error) {
	return deleteSource(ctx, s.db, workspace, sourcePath)
}

func (s *SQLiteStorage) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := "DELETE FROM records WHERE id IN (" + placeholders(len(ids)) + ")"
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func deleteSource(ctx context.Context, q querier, workspace, sourcePath string) (int, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM records WHERE workspace = ? AND source_path = ?", workspace, sourcePath)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records for %s: %w", sourcePath, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func insertRecords(ctx context.Context, q querier, records []types.Record) error {
	query := `
		INSERT INTO records (id, text, category, workspace, language, tags, created_at,
		                     source_path, content_hash, start_line, end_line, symbol, vector, dimension)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			category = excluded.category,
			workspace = excluded.workspace,
			language = excluded.language,
			tags = excluded.tags,
			source_path = excluded.source_path,
			content_hash = excluded.content_hash,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			symbol = excluded.symbol,
			vector = excluded.vector,
			dimension = excluded.dimension
	`
	for i := range records {
		r := &records[i]
		if err := r.Validate(); err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
		tags := types.NormalizeTags(r.Tags)
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return err
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = time.Now()
		}
		_, err = q.ExecContext(ctx, query,
			r.ID, r.Text, string(r.Category), r.Workspace, r.Language, string(tagsJSON),
			r.Timestamp.UnixNano(), r.SourcePath, r.ContentHash, r.StartLine, r.EndLine,
			r.Symbol, serializeVector(r.Vector), len(r.Vector))
		if err != nil {
			return fmt.Errorf("failed to insert record %s: %w", r.ID, err)
		}

		if _, err := q.ExecContext(ctx, "DELETE FROM record_tags WHERE record_id = ?", r.ID); err != nil {
			return fmt.Errorf("failed to reset tags for %s: %w", r.ID, err)
		}
		for _, tag := range tags {
			if _, err := q.ExecContext(ctx, "INSERT INTO record_tags (record_id, tag) VALUES (?, ?)", r.ID, tag); err != nil {
				return fmt.Errorf("failed to insert tag for %s: %w", r.ID, err)
			}
		}
	}
	return nil
}

// Count returns the number of records matching filters
func (s *SQLiteStorage) Count(ctx context.Context, filters types.Filters) (int, error) {
	query := "SELECT COUNT(*) FROM records r WHERE 1=1"
	query, args := applyRecordFilters(query, nil, filters)
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// Query runs a filtered nearest-neighbour search
func (s *SQLiteStorage) Query(ctx context.Context, vector []float32, filters types.Filters, topN int) ([]types.Candidate, error) {
	if len(vector) == 0 {
		return nil, types.ErrEmptyVector
	}
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	if topN <= 0 {
		return []types.Candidate{}, nil
	}
	return searchVector(ctx, s.db, vector, filters, topN)
}

const recordColumns = `r.id, r.text, r.category, r.workspace, r.language, r.tags, r.created_at,
	r.source_path, r.content_hash, r.start_line, r.end_line, r.symbol`

// scanRecord scans recordColumns followed by extra destinations.
func scanRecord(rows *sql.Rows, extra ...any) (types.Record, error) {
	var r types.Record
	var category, tags string
	var created int64
	dest := []any{&r.ID, &r.Text, &category, &r.Workspace, &r.Language, &tags, &created,
		&r.SourcePath, &r.ContentHash, &r.StartLine, &r.EndLine, &r.Symbol}
	dest = append(dest, extra...)
	if err := rows.Scan(dest...); err != nil {
		return r, fmt.Errorf("failed to scan record: %w", err)
	}
	r.Category = types.Category(category)
	r.Timestamp = time.Unix(0, created)
	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return r, fmt.Errorf("failed to decode tags for %s: %w", r.ID, err)
	}
	return r, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
