package recorder

import (
	"database/sql"
	"errors"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `CREATE TABLE IF NOT EXISTS readings (
	ts_ms  INTEGER NOT NULL,
	kind   TEXT    NOT NULL,
	cap_id INTEGER NOT NULL,
	value  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS readings_cap ON readings (kind, cap_id, ts_ms);`

var ErrNoReading = errors.New("no reading")

// Row is one stored reading. Value is in the capability's fixed-point unit
// (deci-°C, %RH x100, deci-Pa).
type Row struct {
	TsMs  int64  `json:"ts_ms"`
	Kind  string `json:"kind"`
	CapID int    `json:"cap_id"`
	Value int64  `json:"value"`
}

// Store is a SQLite table of readings.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Insert(r Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO readings (ts_ms, kind, cap_id, value) VALUES (?, ?, ?, ?)`,
		r.TsMs, r.Kind, r.CapID, r.Value)
	return err
}

// Latest returns the newest reading for a capability, or ErrNoReading.
func (s *Store) Latest(kind string, capID int) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := Row{Kind: kind, CapID: capID}
	err := s.db.QueryRow(`SELECT ts_ms, value FROM readings WHERE kind = ? AND cap_id = ?
		ORDER BY ts_ms DESC, rowid DESC LIMIT 1`, kind, capID).Scan(&r.TsMs, &r.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, ErrNoReading
	}
	return r, err
}

// Count returns the number of stored readings for kind.
func (s *Store) Count(kind string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM readings WHERE kind = ?`, kind).Scan(&n)
	return n, err
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
