package cache

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

// SQLite is a Store backed by a sqlite database, for deployments that
// want the cache to survive restarts. It honors the same size limits as
// LRU; recency is an access sequence number persisted per row, so
// eviction order carries over between runs.
type SQLite struct {
	db    *sql.DB
	mu    sync.Mutex
	seq   int64
	limit int64
}

// NewSQLite opens (or creates) the cache database at filename.
func NewSQLite(filename string) (*SQLite, error) {
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	for _, stmt := range []string{
		"CREATE TABLE IF NOT EXISTS objects (key TEXT PRIMARY KEY, size INTEGER, accessed INTEGER, payload BLOB)",
		"CREATE INDEX IF NOT EXISTS accessed_idx ON objects (accessed)",
		"PRAGMA journal_mode=WAL",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init cache db: %w", err)
		}
	}
	s := &SQLite{db: db, limit: MaxCacheSize}
	if err := db.QueryRow("SELECT COALESCE(MAX(accessed), 0) FROM objects").Scan(&s.seq); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache db: %w", err)
	}
	return s, nil
}

func (s *SQLite) Lookup(key string, buf []byte) (int, LookupStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var payload []byte
	if err := s.db.QueryRow("SELECT payload FROM objects WHERE key = ?", key).Scan(&payload); err != nil {
		return 0, Miss
	}
	if len(buf) < len(payload) {
		return 0, BufferTooSmall
	}
	s.seq++
	s.db.Exec("UPDATE objects SET accessed = ? WHERE key = ?", s.seq, key)
	return copy(buf, payload), Hit
}

func (s *SQLite) Insert(key string, payload []byte) InsertStatus {
	if len(payload) > MaxObjectSize {
		return Rejected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Size held by everything except the row being replaced, if any.
	var total int64
	if err := s.db.QueryRow("SELECT COALESCE(SUM(size), 0) FROM objects WHERE key != ?", key).Scan(&total); err != nil {
		return Rejected
	}

	for total+int64(len(payload)) > s.limit {
		var victim string
		var size int64
		err := s.db.QueryRow(
			"SELECT key, size FROM objects WHERE key != ? ORDER BY accessed ASC LIMIT 1", key).
			Scan(&victim, &size)
		if err != nil {
			break
		}
		if _, err := s.db.Exec("DELETE FROM objects WHERE key = ?", victim); err != nil {
			return Rejected
		}
		total -= size
	}

	s.seq++
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO objects (key, size, accessed, payload) VALUES (?, ?, ?, ?)",
		key, len(payload), s.seq, payload)
	if err != nil {
		return Rejected
	}
	return Inserted
}

func (s *SQLite) Purge(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Exec("DELETE FROM objects WHERE key = ?", key)
}

func (s *SQLite) Len() int {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM objects").Scan(&n); err != nil {
		return 0
	}
	return n
}

func (s *SQLite) Size() int64 {
	var total int64
	if err := s.db.QueryRow("SELECT COALESCE(SUM(size), 0) FROM objects").Scan(&total); err != nil {
		return 0
	}
	return total
}

func (s *SQLite) Keys(cb func(key string, size int)) {
	rows, err := s.db.Query("SELECT key, size FROM objects ORDER BY accessed DESC")
	if err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var size int
		if err := rows.Scan(&key, &size); err != nil {
			return
		}
		cb(key, size)
	}
}

// Close closes the database. Entries are kept on disk so the cache
// survives a restart; that is the point of this provider.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
