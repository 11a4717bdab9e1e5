package scrobbler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists unresolved records across restarts and keeps a history of
// resolved ones, using SQLite.
type Store struct {
	db *sql.DB
}

// HistoryEntry is a resolved record as stored in the history table.
type HistoryEntry struct {
	Record
	ResolvedAt time.Time
}

// OpenStore opens or creates the database at path. Use ":memory:" for a
// throwaway store.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps an in-memory database consistent and is
	// plenty for one writer.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS pending (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			track_name TEXT NOT NULL,
			artist TEXT NOT NULL,
			album TEXT NOT NULL DEFAULT '',
			album_artist TEXT NOT NULL DEFAULT '',
			track_number INTEGER NOT NULL DEFAULT 0,
			mbid TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			enqueued_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS history (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			track_name TEXT NOT NULL,
			artist TEXT NOT NULL,
			album TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			state TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			resolved_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_history_resolved ON history(resolved_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const insertPending = `
	INSERT OR IGNORE INTO pending
		(id, track_name, artist, album, album_artist, track_number, mbid,
		 duration_ms, started_at, attempts, reason, enqueued_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func pendingArgs(r Record) []any {
	t := r.Track
	return []any{
		r.ID, t.Name, t.Artist, t.Album, t.AlbumArtist, t.TrackNumber, t.MBID,
		t.Duration.Milliseconds(), t.StartedAt.UnixMilli(),
		r.Attempts, r.Reason, r.EnqueuedAt.UnixMilli(),
	}
}

// AddPending records a newly queued record. A record already stored is
// left alone.
func (s *Store) AddPending(ctx context.Context, r Record) error {
	if _, err := s.db.ExecContext(ctx, insertPending, pendingArgs(r)...); err != nil {
		return fmt.Errorf("failed to insert pending scrobble: %w", err)
	}
	return nil
}

// UpdatePending stores the retry bookkeeping of a record that went back to
// pending.
func (s *Store) UpdatePending(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending SET attempts = ?, reason = ? WHERE id = ?`,
		r.Attempts, r.Reason, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update pending scrobble: %w", err)
	}
	return nil
}

// SavePending replaces every stored pending record with records, keeping
// their order.
func (s *Store) SavePending(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending`); err != nil {
		return fmt.Errorf("failed to clear pending scrobbles: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertPending)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, pendingArgs(r)...); err != nil {
			return fmt.Errorf("failed to save scrobble %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadPending returns the stored pending records, oldest first.
func (s *Store) LoadPending(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, track_name, artist, album, album_artist, track_number, mbid,
		       duration_ms, started_at, attempts, reason, enqueued_at
		FROM pending
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending scrobbles: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r                              Record
			durationMS, started, enqueued int64
		)
		err := rows.Scan(
			&r.ID,
			&r.Track.Name,
			&r.Track.Artist,
			&r.Track.Album,
			&r.Track.AlbumArtist,
			&r.Track.TrackNumber,
			&r.Track.MBID,
			&durationMS,
			&started,
			&r.Attempts,
			&r.Reason,
			&enqueued,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scrobble: %w", err)
		}
		r.Track.Duration = time.Duration(durationMS) * time.Millisecond
		r.Track.StartedAt = time.UnixMilli(started).UTC()
		r.EnqueuedAt = time.UnixMilli(enqueued).UTC()
		r.State = StatePending
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scrobbles: %w", err)
	}
	return records, nil
}

// AppendHistory moves a resolved record out of the pending table and into
// the history.
func (s *Store) AppendHistory(ctx context.Context, ev Event) error {
	r := ev.Record
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending WHERE id = ?`, r.ID); err != nil {
		return fmt.Errorf("failed to delete pending scrobble: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO history
			(id, track_name, artist, album, duration_ms, started_at, state, attempts, reason, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.Track.Name, r.Track.Artist, r.Track.Album,
		r.Track.Duration.Milliseconds(), r.Track.StartedAt.UnixMilli(),
		r.State.String(), r.Attempts, r.Reason, ev.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// History returns up to limit resolved records, newest first. A limit of
// zero returns everything.
func (s *Store) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	query := `
		SELECT id, track_name, artist, album, duration_ms, started_at, state, attempts, reason, resolved_at
		FROM history
		ORDER BY resolved_at DESC, seq DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			e                              HistoryEntry
			state                          string
			durationMS, started, resolved int64
		)
		err := rows.Scan(
			&e.ID,
			&e.Track.Name,
			&e.Track.Artist,
			&e.Track.Album,
			&durationMS,
			&started,
			&state,
			&e.Attempts,
			&e.Reason,
			&resolved,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e.Track.Duration = time.Duration(durationMS) * time.Millisecond
		e.Track.StartedAt = time.UnixMilli(started).UTC()
		e.State = parseRecordState(state)
		e.ResolvedAt = time.UnixMilli(resolved).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return entries, nil
}

// Cleanup removes history entries resolved more than maxAge ago and
// returns how many were deleted. Pending records are never touched.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()

	result, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE resolved_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup history: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

func parseRecordState(s string) RecordState {
	switch s {
	case "in-flight":
		return StateInFlight
	case "failed":
		return StateFailed
	case "scrobbled":
		return StateScrobbled
	default:
		return StatePending
	}
}
