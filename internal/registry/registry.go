// Package registry implements the Process Registry (spec.md §4.3): a
// durable store, keyed by operating-system process id, recording each
// session's metadata and the status a sibling invocation needs to find it.
//
// Backed by an embedded transactional single-file store
// (modernc.org/sqlite — pure Go, no cgo) under
// <cwd>/.agent-yes/pid.sqlite, grounded on the migration/WAL-mode pattern
// used by the example pack's internal/store package. If the store cannot
// be opened (e.g. a read-only filesystem) the Registry degrades to a
// no-op in-memory fallback and logs a warning; the session still runs
// (spec.md §7 Storage errors).
package registry

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/ianremillard/agentyes/internal/logsink"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Status is a registry row's lifecycle state.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusActive Status = "active"
	StatusExited Status = "exited"
)

// Record is one pid_records row.
type Record struct {
	PID        int
	Assistant  string
	Argv       []string
	Prompt     string
	CWD        string
	LogFile    string
	IPCPath    string
	Status     Status
	ExitReason string
	ExitCode   *int
	StartedAt  int64 // unix ms
	UpdatedAt  int64 // unix ms
}

// Registry is the per-workspace handle. Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	db       *sql.DB
	fallback bool
	memRows  map[int]*Record // used only when fallback is true
	warn     *log.Logger
}

// Open ensures the workspace layout (<cwd>/.agent-yes/{logs,fifo}, the
// .gitignore) exists, opens (or creates) pid.sqlite in WAL mode, runs
// pending migrations, and performs the stale-cleanup pass described in
// spec.md §4.3's init() bullet. warn receives degraded-mode diagnostics;
// if nil, the standard log package is used.
func Open(cwd string, warn *log.Logger) (*Registry, error) {
	if warn == nil {
		warn = log.Default()
	}

	if err := logsink.Init(cwd); err != nil {
		return nil, fmt.Errorf("init workspace layout: %w", err)
	}

	r := &Registry{warn: warn}

	dbPath := filepath.Join(logsink.Root(cwd), "pid.sqlite")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		r.degrade(fmt.Errorf("open %s: %w", dbPath, err))
		return r, nil
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		r.degrade(fmt.Errorf("set WAL mode: %w", err))
		return r, nil
	}
	if err := migrate(db); err != nil {
		db.Close()
		r.degrade(fmt.Errorf("migrate: %w", err))
		return r, nil
	}

	r.db = db
	if err := r.staleCleanup(cwd); err != nil {
		r.warn.Printf("registry: stale cleanup failed: %v", err)
	}
	return r, nil
}

// degrade switches the Registry into its no-op in-memory fallback and logs
// once, per spec.md §7.
func (r *Registry) degrade(err error) {
	r.warn.Printf("registry: degrading to in-memory fallback: %v", err)
	r.fallback = true
	r.memRows = make(map[int]*Record)
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return err
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return err
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database handle. A no-op in fallback mode.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Register inserts a new row, or updates the existing row in place if pid
// is reused by the OS (UNIQUE(pid) upsert, spec.md §3 invariant).
func (r *Registry) Register(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fallback {
		cp := rec
		cp.Status = StatusActive
		r.memRows[rec.PID] = &cp
		return nil
	}

	argvJSON, err := json.Marshal(rec.Argv)
	if err != nil {
		return fmt.Errorf("marshal argv: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO pid_records (pid, cli, args, prompt, cwd, logFile, fifoFile, status, exitReason, exitCode, startedAt, updatedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'active', '', NULL, ?, ?)
		ON CONFLICT(pid) DO UPDATE SET
			cli=excluded.cli, args=excluded.args, prompt=excluded.prompt, cwd=excluded.cwd,
			logFile=excluded.logFile, fifoFile=excluded.fifoFile, status='active',
			exitReason='', exitCode=NULL, startedAt=excluded.startedAt, updatedAt=excluded.updatedAt
	`, rec.PID, rec.Assistant, string(argvJSON), nullableString(rec.Prompt), rec.CWD, rec.LogFile, rec.IPCPath, rec.StartedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("register pid %d: %w", rec.PID, err)
	}
	return nil
}

// UpdateStatus performs a partial update of the trailing fields.
func (r *Registry) UpdateStatus(pid int, status Status, exitReason string, exitCode *int, updatedAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fallback {
		if row, ok := r.memRows[pid]; ok {
			row.Status = status
			row.ExitReason = exitReason
			row.ExitCode = exitCode
			row.UpdatedAt = updatedAt
		}
		return nil
	}

	_, err := r.db.Exec(
		`UPDATE pid_records SET status=?, exitReason=?, exitCode=?, updatedAt=? WHERE pid=?`,
		string(status), exitReason, nullableInt(exitCode), updatedAt, pid,
	)
	if err != nil {
		return fmt.Errorf("update status pid %d: %w", pid, err)
	}
	return nil
}

// FindActiveIPC returns the most-recently-started record with
// status != exited for the given workspace, or nil if none.
func (r *Registry) FindActiveIPC(cwd string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fallback {
		var best *Record
		for _, row := range r.memRows {
			if row.CWD != cwd || row.Status == StatusExited {
				continue
			}
			if best == nil || row.StartedAt > best.StartedAt {
				best = row
			}
		}
		return best, nil
	}

	row := r.db.QueryRow(`
		SELECT pid, cli, args, prompt, cwd, logFile, fifoFile, status, exitReason, exitCode, startedAt, updatedAt
		FROM pid_records WHERE cwd=? AND status != 'exited' ORDER BY startedAt DESC LIMIT 1`, cwd)
	return scanRecord(row)
}

// FindByPID looks up a record (including exited ones) for log retrieval.
func (r *Registry) FindByPID(pid int, cwd string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fallback {
		row, ok := r.memRows[pid]
		if !ok || row.CWD != cwd {
			return nil, nil
		}
		return row, nil
	}

	row := r.db.QueryRow(`
		SELECT pid, cli, args, prompt, cwd, logFile, fifoFile, status, exitReason, exitCode, startedAt, updatedAt
		FROM pid_records WHERE pid=? AND cwd=?`, pid, cwd)
	return scanRecord(row)
}

func scanRecord(row *sql.Row) (*Record, error) {
	var rec Record
	var argvJSON string
	var prompt sql.NullString
	var exitCode sql.NullInt64
	if err := row.Scan(&rec.PID, &rec.Assistant, &argvJSON, &prompt, &rec.CWD,
		&rec.LogFile, &rec.IPCPath, &rec.Status, &rec.ExitReason, &exitCode,
		&rec.StartedAt, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}
	_ = json.Unmarshal([]byte(argvJSON), &rec.Argv)
	if prompt.Valid {
		rec.Prompt = prompt.String
	}
	if exitCode.Valid {
		c := int(exitCode.Int64)
		rec.ExitCode = &c
	}
	return &rec, nil
}

// staleCleanup updates every non-exited row whose pid is no longer alive
// to status=exited, reason="stale-cleanup" (spec.md §4.3, §8 property 3).
// Running it twice in a row with no external state change is a no-op,
// since a row already marked exited is skipped.
func (r *Registry) staleCleanup(cwd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fallback {
		for pid, row := range r.memRows {
			if row.Status == StatusExited {
				continue
			}
			if !pidAlive(pid) {
				row.Status = StatusExited
				row.ExitReason = "stale-cleanup"
			}
		}
		return nil
	}

	rows, err := r.db.Query(`SELECT pid FROM pid_records WHERE cwd=? AND status != 'exited'`, cwd)
	if err != nil {
		return err
	}
	var pids []int
	for rows.Next() {
		var pid int
		if err := rows.Scan(&pid); err != nil {
			rows.Close()
			return err
		}
		pids = append(pids, pid)
	}
	rows.Close()

	for _, pid := range pids {
		if pidAlive(pid) {
			continue
		}
		if _, err := r.db.Exec(
			`UPDATE pid_records SET status='exited', exitReason='stale-cleanup' WHERE pid=?`, pid,
		); err != nil {
			return fmt.Errorf("stale cleanup pid %d: %w", pid, err)
		}
	}
	return nil
}

// pidAlive probes liveness via signal 0 (spec.md §4.3: "probe via signal-0").
func pidAlive(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	if err == nil {
		return true
	}
	return err != syscall.ESRCH
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}
