package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/miretskiy/rrsched/simulator"
)

const defaultBatchSize = 10000

// SQLiteRecorder persists simulator trace events to a SQLite database.
// It implements simulator.TraceSink, so it can be attached with AddSink.
// Events are buffered and written in batches inside a transaction.
type SQLiteRecorder struct {
	*sql.DB
	runStatement   *sql.Stmt
	eventStatement *sql.Stmt

	dbName    string
	runID     string
	seq       int
	pending   []simulator.TraceEvent
	batchSize int
	err       error // First write error; Record has no way to return it
}

// NewSQLiteRecorder creates a recorder writing to path (".sqlite3" is appended).
// An empty path picks a unique name in the working directory.
func NewSQLiteRecorder(path string) *SQLiteRecorder {
	r := &SQLiteRecorder{
		dbName:    path,
		batchSize: defaultBatchSize,
	}

	atexit.Register(func() { _ = r.Flush() })

	return r
}

// SetBatchSize changes how many events are buffered before a flush
func (r *SQLiteRecorder) SetBatchSize(n int) {
	if n < 1 {
		n = 1
	}
	r.batchSize = n
}

// Init creates the database file and its tables.
func (r *SQLiteRecorder) Init() error {
	if err := r.createDatabase(); err != nil {
		return err
	}
	if err := r.createTables(); err != nil {
		return err
	}
	return r.prepareStatements()
}

// Filename returns the database file being written
func (r *SQLiteRecorder) Filename() string {
	return r.dbName + ".sqlite3"
}

// RunID returns the id of the current run, or "" before StartRun
func (r *SQLiteRecorder) RunID() string {
	return r.runID
}

// StartRun flushes any previous run and registers a new one for config.
func (r *SQLiteRecorder) StartRun(config simulator.SimConfig) (string, error) {
	if err := r.Flush(); err != nil {
		return "", err
	}

	r.runID = xid.New().String()
	r.seq = 0
	_, err := r.runStatement.Exec(
		r.runID,
		time.Now().UTC().Format(time.RFC3339Nano),
		config.TimeSlice,
		config.CSTPenalty,
		config.AgingThreshold,
		config.DispatchPolicy.String(),
		len(config.Processes),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run %s: %w", r.runID, err)
	}
	return r.runID, nil
}

// Record buffers one event for the current run
func (r *SQLiteRecorder) Record(event simulator.TraceEvent) {
	r.pending = append(r.pending, event)
	if len(r.pending) >= r.batchSize {
		if err := r.Flush(); err != nil && r.err == nil {
			r.err = err
		}
	}
}

// Err returns the first error hit while flushing from Record
func (r *SQLiteRecorder) Err() error {
	return r.err
}

// Flush writes all buffered events to the database.
func (r *SQLiteRecorder) Flush() error {
	if len(r.pending) == 0 {
		return nil
	}
	if r.DB == nil {
		return fmt.Errorf("recorder: %d events buffered but the database is not open", len(r.pending))
	}
	if r.runID == "" {
		return fmt.Errorf("recorder: %d events buffered with no run started", len(r.pending))
	}

	tx, err := r.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt := tx.Stmt(r.eventStatement)
	for _, e := range r.pending {
		_, err := stmt.Exec(
			r.runID,
			r.seq,
			e.Tick,
			e.Clock,
			e.Kind.String(),
			e.ID,
			e.Amount,
			e.CompletionTime,
			e.NewPriority,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert event %d (%s): %w", r.seq, e, err)
		}
		r.seq++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	r.pending = nil
	return nil
}

// Close flushes and closes the database.
func (r *SQLiteRecorder) Close() error {
	if r.DB == nil {
		return nil
	}
	flushErr := r.Flush()
	if err := r.DB.Close(); err != nil {
		return err
	}
	r.DB = nil
	return flushErr
}

// Events reads back the trace of runID in emission order
func (r *SQLiteRecorder) Events(runID string) ([]simulator.TraceEvent, error) {
	rows, err := r.Query(`
		SELECT tick, clock, kind, process_id, amount, completion_time, new_priority
		FROM trace_events
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []simulator.TraceEvent{}
	for rows.Next() {
		var e simulator.TraceEvent
		var kind string
		err := rows.Scan(&e.Tick, &e.Clock, &kind, &e.ID, &e.Amount, &e.CompletionTime, &e.NewPriority)
		if err != nil {
			return nil, err
		}
		if e.Kind, err = simulator.ParseEventKind(kind); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Runs lists recorded run ids, oldest first
func (r *SQLiteRecorder) Runs() ([]string, error) {
	rows, err := r.Query(`SELECT run_id FROM runs ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRecorder) createDatabase() error {
	if r.dbName == "" {
		r.dbName = "rrsched_trace_" + xid.New().String()
	}

	filename := r.Filename()
	if _, err := os.Stat(filename); err == nil {
		return fmt.Errorf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filename, err)
	}

	r.DB = db
	return nil
}

func (r *SQLiteRecorder) createTables() error {
	for _, query := range []string{
		`
		CREATE TABLE IF NOT EXISTS runs
		(
			run_id          VARCHAR(20) NOT NULL PRIMARY KEY,
			started_at      VARCHAR(40) NOT NULL,
			time_slice      INTEGER NOT NULL,
			cst_penalty     INTEGER NOT NULL,
			aging_threshold INTEGER NOT NULL,
			dispatch_policy VARCHAR(20) NOT NULL,
			process_count   INTEGER NOT NULL
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS trace_events
		(
			run_id          VARCHAR(20) NOT NULL,
			seq             INTEGER NOT NULL,
			tick            INTEGER NOT NULL,
			clock           INTEGER NOT NULL,
			kind            VARCHAR(20) NOT NULL,
			process_id      INTEGER NOT NULL,
			amount          INTEGER DEFAULT 0,
			completion_time INTEGER DEFAULT 0,
			new_priority    INTEGER DEFAULT 0
		);
		`,
		`CREATE INDEX IF NOT EXISTS trace_events_run_seq_index ON trace_events (run_id, seq);`,
		`CREATE INDEX IF NOT EXISTS trace_events_kind_index ON trace_events (kind);`,
		`CREATE INDEX IF NOT EXISTS trace_events_process_index ON trace_events (process_id);`,
	} {
		if _, err := r.Exec(query); err != nil {
			return fmt.Errorf("failed to execute %q: %w", query, err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) prepareStatements() error {
	stmt, err := r.Prepare(`INSERT INTO runs VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	r.runStatement = stmt

	stmt, err = r.Prepare(`INSERT INTO trace_events VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	r.eventStatement = stmt
	return nil
}
