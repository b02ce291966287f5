package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/phrazzld/ocr-watch/internal/events"
	"github.com/phrazzld/ocr-watch/internal/redact"
	"github.com/phrazzld/ocr-watch/internal/task"
	"github.com/phrazzld/ocr-watch/internal/view"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS observations (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id              TEXT    NOT NULL,
    generation           INTEGER NOT NULL,
    observed_at          INTEGER NOT NULL,
    status               TEXT    NULL,
    percent              REAL    NULL,
    last_error           TEXT    NOT NULL DEFAULT '',
    active               INTEGER NOT NULL,
    abandoned            INTEGER NOT NULL,
    consecutive_failures INTEGER NOT NULL,
    attempts             INTEGER NOT NULL,
    snapshot_json        TEXT    NULL
);
CREATE INDEX IF NOT EXISTS observations_task_id_idx ON observations (task_id, id);
`

// Entry is one recorded observation.
type Entry struct {
	ID                  int64
	TaskID              string
	Generation          uint64
	ObservedAt          time.Time
	Status              task.Status
	Percent             *float64
	LastError           string
	Active              bool
	Abandoned           bool
	ConsecutiveFailures int
	Attempts            int
	Snapshot            *task.Snapshot
}

// Journal records poller updates in an SQLite database. It implements
// events.Handler so it can be subscribed to a poller or watcher directly.
// It is safe for concurrent use.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure Journal implements events.Handler
var _ events.Handler = (*Journal)(nil)

// Open opens (creating if needed) the journal at dsn, which may be a file
// path or any DSN accepted by modernc.org/sqlite, and ensures the schema
// exists. If logger is nil, a default logger will be used.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Journal, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, ErrEmptyPath
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, mapError("open", err)
	}
	// SQLite allows a single writer; one connection also keeps an in-memory
	// database alive for the lifetime of the journal.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, mapError("create schema", err)
	}

	j := &Journal{
		db:     db,
		logger: logger.With(slog.String("component", "journal")),
	}
	j.logger.Debug("journal opened", slog.String("dsn", redact.String(dsn)))
	return j, nil
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	return mapError("close", j.db.Close())
}

// HandleUpdate implements events.Handler by recording the update.
func (j *Journal) HandleUpdate(ctx context.Context, update events.Update) error {
	return j.Record(ctx, update)
}

// Record stores one update. Transport error messages are redacted before
// they are written.
func (j *Journal) Record(ctx context.Context, update events.Update) error {
	var (
		status       sql.NullString
		percent      sql.NullFloat64
		snapshotJSON sql.NullString
	)
	if s := update.Snapshot; s != nil {
		status = sql.NullString{String: string(s.Status), Valid: true}
		if p, ok := view.PercentComplete(s.Progress); ok {
			percent = sql.NullFloat64{Float64: p, Valid: true}
		}
		raw, err := json.Marshal(s)
		if err != nil {
			return mapError("encode snapshot", err)
		}
		snapshotJSON = sql.NullString{String: string(raw), Valid: true}
	}

	observedAt := update.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	query := `
		INSERT INTO observations (
			task_id, generation, observed_at, status, percent, last_error,
			active, abandoned, consecutive_failures, attempts, snapshot_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := j.db.ExecContext(
		ctx,
		query,
		update.TaskID,
		int64(update.Generation),
		observedAt.UTC().UnixMilli(),
		status,
		percent,
		redact.String(update.LastError),
		update.Active,
		update.Abandoned,
		update.ConsecutiveFailures,
		update.Attempts,
		snapshotJSON,
	)
	if err != nil {
		j.logger.Error("failed to record observation",
			slog.String("error", err.Error()),
			slog.String("task_id", update.TaskID))
		return mapError("record", err)
	}

	j.logger.Debug("observation recorded",
		slog.String("task_id", update.TaskID),
		slog.String("status", status.String),
		slog.Bool("stale", update.Stale()))
	return nil
}

// History returns every observation recorded for taskID, oldest first. An
// unknown task yields an empty slice.
func (j *Journal) History(ctx context.Context, taskID string) ([]Entry, error) {
	query := `
		SELECT id, task_id, generation, observed_at, status, percent, last_error,
		       active, abandoned, consecutive_failures, attempts, snapshot_json
		FROM observations
		WHERE task_id = ?
		ORDER BY id
	`
	rows, err := j.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, mapError("query history", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			j.logger.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("iterate history", err)
	}
	return entries, nil
}

// Tasks returns the distinct task ids in the journal, most recently observed
// first.
func (j *Journal) Tasks(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT task_id FROM observations
		GROUP BY task_id
		ORDER BY MAX(id) DESC
	`)
	if err != nil {
		return nil, mapError("query tasks", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError("scan task id", err)
		}
		ids = append(ids, id)
	}
	return ids, mapError("iterate tasks", rows.Err())
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e            Entry
		generation   int64
		observedAtMs int64
		status       sql.NullString
		percent      sql.NullFloat64
		snapshotJSON sql.NullString
	)
	if err := rows.Scan(
		&e.ID,
		&e.TaskID,
		&generation,
		&observedAtMs,
		&status,
		&percent,
		&e.LastError,
		&e.Active,
		&e.Abandoned,
		&e.ConsecutiveFailures,
		&e.Attempts,
		&snapshotJSON,
	); err != nil {
		return Entry{}, mapError("scan entry", err)
	}

	e.Generation = uint64(generation)
	e.ObservedAt = time.UnixMilli(observedAtMs).UTC()
	if status.Valid {
		e.Status = task.Status(status.String)
	}
	if percent.Valid {
		v := percent.Float64
		e.Percent = &v
	}
	if snapshotJSON.Valid {
		var s task.Snapshot
		if err := json.Unmarshal([]byte(snapshotJSON.String), &s); err != nil {
			return Entry{}, fmt.Errorf("%w: entry %d: %v", ErrCorruptEntry, e.ID, err)
		}
		e.Snapshot = &s
	}
	return e, nil
}
