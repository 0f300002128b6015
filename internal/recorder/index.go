package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// Index is a SQLite index of recorded frames. Inserts go through a single
// writer goroutine behind a buffered channel so recording never blocks on
// disk; reads query the database directly.
type Index struct {
	db *sql.DB

	ch   chan FrameRow
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type FrameRow struct {
	EpisodeID string
	Frame     uint64
	Elapsed   float64
	Actors    int
}

func OpenIndex(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	idx := &Index{
		db: db,
		// Buffered so bursty tick rates never stall the snapshot stream.
		ch: make(chan FrameRow, 8192),
	}
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		idx.loop()
	}()
	return idx, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only frame log.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS frames (
			frame INTEGER PRIMARY KEY,
			episode_id TEXT NOT NULL,
			elapsed REAL NOT NULL,
			actors INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_frames_episode ON frames(episode_id, frame);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index) loop() {
	for row := range idx.ch {
		_, _ = idx.db.Exec(
			`INSERT OR REPLACE INTO frames (frame, episode_id, elapsed, actors, recorded_at) VALUES (?, ?, ?, ?, ?)`,
			row.Frame, row.EpisodeID, row.Elapsed, row.Actors,
			time.Now().UTC().Format(time.RFC3339Nano),
		)
	}
}

// InsertFrame enqueues one row. Dropped silently if the index is closed or
// the queue is full; the JSONL stream remains the source of truth.
func (idx *Index) InsertFrame(row FrameRow) {
	if idx.closed.Load() {
		return
	}
	select {
	case idx.ch <- row:
	default:
	}
}

// FrameCount returns the number of indexed frames.
func (idx *Index) FrameCount() (int, error) {
	var n int
	err := idx.db.QueryRow(`SELECT COUNT(*) FROM frames`).Scan(&n)
	return n, err
}

// FrameRange returns the lowest and highest indexed frame. ok is false when
// nothing has been recorded yet.
func (idx *Index) FrameRange() (lo, hi uint64, ok bool, err error) {
	var nlo, nhi sql.NullInt64
	err = idx.db.QueryRow(`SELECT MIN(frame), MAX(frame) FROM frames`).Scan(&nlo, &nhi)
	if err != nil || !nlo.Valid {
		return 0, 0, false, err
	}
	return uint64(nlo.Int64), uint64(nhi.Int64), true, nil
}

// RecentFrames returns up to n rows, newest first.
func (idx *Index) RecentFrames(n int) ([]FrameRow, error) {
	rows, err := idx.db.Query(
		`SELECT frame, episode_id, elapsed, actors FROM frames ORDER BY frame DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FrameRow
	for rows.Next() {
		var r FrameRow
		if err := rows.Scan(&r.Frame, &r.EpisodeID, &r.Elapsed, &r.Actors); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close drains pending inserts and closes the database.
func (idx *Index) Close() error {
	var err error
	idx.once.Do(func() {
		idx.closed.Store(true)
		close(idx.ch)
		idx.wg.Wait()
		err = idx.db.Close()
	})
	return err
}
