// Package survey records what the scout saw and decided: a sqlite index
// for queries, a zstd journal for replay, and a session snapshot for
// resuming. The index is a secondary structure; the journal remains the
// source of truth.
package survey

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

type Index struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropScan  atomic.Uint64
	dropRoute atomic.Uint64
}

type reqKind int

const (
	reqScan reqKind = iota + 1
	reqRoute
)

type req struct {
	kind  reqKind
	scan  ScanRow
	route RouteRow
}

type ScanRow struct {
	TakenAt string
	Agent   string
	Radius  int
	Blocks  int
	Digest  string
}

type RouteRow struct {
	RequestedAt string
	Agent       string
	SX, SY, SZ  int
	TX, TY, TZ  int
	// Status is the E_* result code, empty for success.
	Status    string
	Partial   bool
	Waypoints int
	Expanded  int
	Reason    string
}

type Stats struct {
	QueueDepth     int
	QueueCapacity  int
	DropScanTotal  uint64
	DropRouteTotal uint64
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

	s := &Index{
		db: db,
		ch: make(chan req, 8192),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads; NORMAL is a decent
	// durability/perf tradeoff for a secondary index.
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
		`CREATE TABLE IF NOT EXISTS scans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			taken_at TEXT NOT NULL,
			agent TEXT NOT NULL,
			radius INTEGER NOT NULL,
			blocks INTEGER NOT NULL,
			digest TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_scans_taken_at ON scans(taken_at);`,
		`CREATE TABLE IF NOT EXISTS routes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			requested_at TEXT NOT NULL,
			agent TEXT NOT NULL,
			sx INTEGER NOT NULL, sy INTEGER NOT NULL, sz INTEGER NOT NULL,
			tx INTEGER NOT NULL, ty INTEGER NOT NULL, tz INTEGER NOT NULL,
			status TEXT NOT NULL,
			partial INTEGER NOT NULL,
			waypoints INTEGER NOT NULL,
			expanded INTEGER NOT NULL,
			reason TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_routes_requested_at ON routes(requested_at);`,
		`CREATE INDEX IF NOT EXISTS idx_routes_status ON routes(status);`,
		`CREATE TABLE IF NOT EXISTS catalog (
			digest TEXT PRIMARY KEY,
			loaded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Index) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *Index) WriteScan(row ScanRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqScan, scan: row}:
	default:
		// Drop if the indexer falls behind; the journal keeps the record.
		s.dropScan.Add(1)
	}
}

func (s *Index) WriteRoute(row RouteRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqRoute, route: row}:
	default:
		s.dropRoute.Add(1)
	}
}

// RecordCatalog notes which classification catalog was active. Called once
// at startup, so it writes synchronously.
func (s *Index) RecordCatalog(digest string) error {
	if s == nil || digest == "" {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(`INSERT OR REPLACE INTO catalog(digest,loaded_at) VALUES(?,?)`, digest, now)
	return err
}

func (s *Index) Stats() Stats {
	st := Stats{
		DropScanTotal:  s.dropScan.Load(),
		DropRouteTotal: s.dropRoute.Load(),
	}
	if s.ch != nil {
		st.QueueDepth = len(s.ch)
		st.QueueCapacity = cap(s.ch)
	}
	return st
}

func (s *Index) loop() {
	ctx := context.Background()

	insertScan, _ := s.db.Prepare(`INSERT INTO scans(taken_at,agent,radius,blocks,digest) VALUES(?,?,?,?,?)`)
	insertRoute, _ := s.db.Prepare(`INSERT INTO routes(requested_at,agent,sx,sy,sz,tx,ty,tz,status,partial,waypoints,expanded,reason) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertScan != nil {
			_ = insertScan.Close()
		}
		if insertRoute != nil {
			_ = insertRoute.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqScan:
			if insertScan == nil {
				continue
			}
			sc := r.scan
			if _, err := tx.Stmt(insertScan).Exec(sc.TakenAt, sc.Agent, sc.Radius, sc.Blocks, sc.Digest); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqRoute:
			if insertRoute == nil {
				continue
			}
			rt := r.route
			partial := 0
			if rt.Partial {
				partial = 1
			}
			if _, err := tx.Stmt(insertRoute).Exec(
				rt.RequestedAt, rt.Agent,
				rt.SX, rt.SY, rt.SZ,
				rt.TX, rt.TY, rt.TZ,
				rt.Status, partial, rt.Waypoints, rt.Expanded, rt.Reason,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}
