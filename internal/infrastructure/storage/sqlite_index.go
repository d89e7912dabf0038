package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ChannelManager/internal/domain"
	"ChannelManager/internal/ports"
)

// SQLiteIndexFileName is the SQLite dedup index inside a channel directory.
const SQLiteIndexFileName = "content-index.db"

const postsSchema = `CREATE TABLE IF NOT EXISTS posts (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	msg_id   TEXT,
	topic    TEXT NOT NULL,
	links    TEXT NOT NULL DEFAULT '[]',
	keywords TEXT NOT NULL DEFAULT '[]'
)`

// SQLiteIndex persists the dedup index in an embedded SQLite database.
type SQLiteIndex struct {
	db   *sql.DB
	path string
	// readOnly stores never create the database; db is nil when it is missing.
	readOnly bool
}

var _ ports.IndexStore = (*SQLiteIndex)(nil)

// OpenSQLiteIndex opens (creating if needed) the database at path.
func OpenSQLiteIndex(ctx context.Context, path string) (*SQLiteIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, postsSchema); err != nil {
		_ = db.Close()
		if isUnreadable(err) {
			return nil, fmt.Errorf("create posts table in %s: %v: %w", path, err, domain.ErrCorrupt)
		}
		return nil, fmt.Errorf("create posts table in %s: %w", path, err)
	}

	return &SQLiteIndex{db: db, path: path}, nil
}

// OpenSQLiteIndexReader opens the database at path for queries only. A
// missing database reads as an empty index and is not created.
func OpenSQLiteIndexReader(path string) (*SQLiteIndex, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return &SQLiteIndex{path: path, readOnly: true}, nil
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	return &SQLiteIndex{db: db, path: path, readOnly: true}, nil
}

// isUnreadable reports whether err means the file is not a usable SQLite database.
func isUnreadable(err error) bool {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() & 0xff {
		case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "database disk image is malformed")
}

// Location returns the database path.
func (r *SQLiteIndex) Location() string {
	return r.path
}

// Close releases the database handle.
func (r *SQLiteIndex) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Load returns entries in insertion order.
func (r *SQLiteIndex) Load(ctx context.Context) ([]domain.IndexEntry, error) {
	if r.db == nil {
		return []domain.IndexEntry{}, nil
	}

	query, args, err := sq.Select("msg_id", "topic", "links", "keywords").
		From("posts").
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	switch {
	case err == nil:
	case r.readOnly && strings.Contains(err.Error(), "no such table"):
		return []domain.IndexEntry{}, nil
	case isUnreadable(err):
		return nil, fmt.Errorf("query posts in %s: %v: %w", r.path, err, domain.ErrCorrupt)
	default:
		return nil, fmt.Errorf("query posts in %s: %w", r.path, err)
	}

	entries := []domain.IndexEntry{}
	for rows.Next() {
		var (
			id              sql.NullString
			topic           string
			links, keywords string
		)
		if err := rows.Scan(&id, &topic, &links, &keywords); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan post: %w", err)
		}

		entry := domain.IndexEntry{ID: domain.MessageID(id.String), Topic: topic}
		if err := json.Unmarshal([]byte(links), &entry.Links); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("decode links of %q in %s: %v: %w", topic, r.path, err, domain.ErrCorrupt)
		}
		if err := json.Unmarshal([]byte(keywords), &entry.Keywords); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("decode keywords of %q in %s: %v: %w", topic, r.path, err, domain.ErrCorrupt)
		}
		entries = append(entries, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		if isUnreadable(rowsErr) {
			return nil, fmt.Errorf("read posts in %s: %v: %w", r.path, rowsErr, domain.ErrCorrupt)
		}
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return normalizeEntries(entries), nil
}

// Append inserts entries in a single transaction.
func (r *SQLiteIndex) Append(ctx context.Context, entries ...domain.IndexEntry) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		return insertPosts(ctx, tx, entries)
	})
}

// Replace deletes every row and inserts entries in one transaction.
func (r *SQLiteIndex) Replace(ctx context.Context, entries []domain.IndexEntry) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		query, args, err := sq.Delete("posts").ToSql()
		if err != nil {
			return fmt.Errorf("build delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("clear posts: %w", err)
		}
		return insertPosts(ctx, tx, entries)
	})
}

func (r *SQLiteIndex) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if r.readOnly {
		return fmt.Errorf("index %s is opened read-only", r.path)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", r.path, err)
	}
	return nil
}

func insertPosts(ctx context.Context, tx *sql.Tx, entries []domain.IndexEntry) error {
	for _, e := range normalizeEntries(entries) {
		links, err := json.Marshal(e.Links)
		if err != nil {
			return fmt.Errorf("encode links: %w", err)
		}
		keywords, err := json.Marshal(e.Keywords)
		if err != nil {
			return fmt.Errorf("encode keywords: %w", err)
		}

		var id any
		if e.ID != "" {
			id = string(e.ID)
		}

		query, args, err := sq.Insert("posts").
			Columns("msg_id", "topic", "links", "keywords").
			Values(id, e.Topic, string(links), string(keywords)).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert post %q: %w", e.Topic, err)
		}
	}
	return nil
}
