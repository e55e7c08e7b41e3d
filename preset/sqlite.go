package preset

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arloliu/cwkeyer/errs"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// SQLiteStore is a ParamStore backed by a SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ ParamStore = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the parameter database at path. Use ":memory:" for a
// private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// one connection: SQLite has a single writer, and ":memory:" is per connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set user_version: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Uint implements ParamStore.
func (s *SQLiteStore) Uint(ctx context.Context, key string) (uint32, error) {
	var v sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT uint_value FROM params WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) || err == nil && !v.Valid {
		return 0, fmt.Errorf("%w: %s", errs.ErrParamNotFound, key)
	}
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", key, err)
	}

	return uint32(v.Int64), nil
}

// SetUint implements ParamStore.
func (s *SQLiteStore) SetUint(ctx context.Context, key string, v uint32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO params (key, uint_value, text_value, updated_at) VALUES (?, ?, NULL, ?)
		ON CONFLICT(key) DO UPDATE SET
			uint_value = excluded.uint_value,
			text_value = NULL,
			updated_at = excluded.updated_at`,
		key, int64(v), s.now().UnixMicro())
	if err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}

	return nil
}

// Text implements ParamStore.
func (s *SQLiteStore) Text(ctx context.Context, key string) (string, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT text_value FROM params WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) || err == nil && !v.Valid {
		return "", fmt.Errorf("%w: %s", errs.ErrParamNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("query %s: %w", key, err)
	}

	return v.String, nil
}

// SetText implements ParamStore.
func (s *SQLiteStore) SetText(ctx context.Context, key string, v string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO params (key, uint_value, text_value, updated_at) VALUES (?, NULL, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			uint_value = NULL,
			text_value = excluded.text_value,
			updated_at = excluded.updated_at`,
		key, v, s.now().UnixMicro())
	if err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}

	return nil
}

// Keys returns every stored key in order.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM params ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}
