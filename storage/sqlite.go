package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/glebarez/sqlite"
)

const (
	sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
    k BLOB PRIMARY KEY,
    v BLOB NOT NULL
);`

	defaultFilePragmas = "mode=rwc&_busy_timeout=5000&_journal_mode=WAL"
)

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("storage: path must be configured")

// SQLiteDB stores the key space in a single SQLite table. It is useful for
// deployments that prefer one portable file over a LevelDB directory.
type SQLiteDB struct {
	db *sql.DB
}

// FileDSN converts a filesystem path into an on-disk SQLite DSN.
func FileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", ErrPathRequired
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve storage path: %w", err)
	}
	return fmt.Sprintf("file:%s?%s", abs, defaultFilePragmas), nil
}

// NewSQLiteDB opens the database behind dsn and applies the schema.
func NewSQLiteDB(dsn string) (*SQLiteDB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps in-memory DSNs coherent and serialises writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteDB{db: db}, nil
}

func (s *SQLiteDB) Put(key []byte, value []byte) error {
	_, err := s.db.Exec(`INSERT INTO kv(k, v) VALUES(?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`, key, value)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	return nil
}

func (s *SQLiteDB) Get(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT v FROM kv WHERE k = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	return value, nil
}

func (s *SQLiteDB) Has(key []byte) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM kv WHERE k = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has: %w", err)
	}
	return true, nil
}

func (s *SQLiteDB) Delete(key []byte) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE k = ?`, key); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func (s *SQLiteDB) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	rows, err := s.db.Query(`SELECT k, v FROM kv WHERE substr(k, 1, ?) = ? ORDER BY k`, len(prefix), prefix)
	if err != nil {
		return fmt.Errorf("iterate: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("iterate scan: %w", err)
		}
		if !fn(key, value) {
			break
		}
	}
	return rows.Err()
}

func (s *SQLiteDB) NewBatch() Batch {
	return &sqliteBatch{db: s.db}
}

func (s *SQLiteDB) Close() {
	s.db.Close()
}

type sqliteBatch struct {
	db  *sql.DB
	ops []batchOp
}

func (b *sqliteBatch) Put(key []byte, value []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (b *sqliteBatch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), delete: true})
}

func (b *sqliteBatch) Len() int { return len(b.ops) }

func (b *sqliteBatch) Write() error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	for _, op := range b.ops {
		if op.delete {
			_, err = tx.Exec(`DELETE FROM kv WHERE k = ?`, op.key)
		} else {
			_, err = tx.Exec(`INSERT INTO kv(k, v) VALUES(?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`, op.key, op.value)
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	b.ops = nil
	return nil
}
