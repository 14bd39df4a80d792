// Package catalog persists editing sessions, their exported artifacts,
// and semantic entries in a SQLite database. Semantic rows are kept when
// a session row is deleted; recovery of labels after an accidental delete
// beats tidiness, so purging is a separate explicit call.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pointlane/trackedit/internal/semantic"
	"github.com/pointlane/trackedit/internal/track"
)

// ErrSessionNotFound is returned when no session row matches an id.
var ErrSessionNotFound = errors.New("session not found")

// Catalog wraps the SQLite connection.
type Catalog struct {
	db *sql.DB
}

// Open opens (or creates) the catalog database at path. Callers run
// MigrateUp before first use.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// SessionRow is the persisted summary of one editing session.
type SessionRow struct {
	ID          string
	VideoPath   string
	Meta        track.VideoMeta
	PointCount  int
	NextPointID int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ArtifactRow records one export.
type ArtifactRow struct {
	ID         int64
	SessionID  string
	Path       string
	Kind       string
	PointCount int
	ExportedAt time.Time
}

// SaveSession upserts a session row, refreshing updated_at.
func (c *Catalog) SaveSession(ctx context.Context, row SessionRow) error {
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO sessions (id, video_path, frame_count, width, height, fps,
			point_count, next_point_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			video_path = excluded.video_path,
			frame_count = excluded.frame_count,
			width = excluded.width,
			height = excluded.height,
			fps = excluded.fps,
			point_count = excluded.point_count,
			next_point_id = excluded.next_point_id,
			updated_at = excluded.updated_at`,
		row.ID, row.VideoPath, row.Meta.FrameCount, row.Meta.Width, row.Meta.Height,
		row.Meta.FPS, row.PointCount, row.NextPointID, row.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("save session %s: %w", row.ID, err)
	}
	return nil
}

// GetSession fetches one session row.
func (c *Catalog) GetSession(ctx context.Context, id string) (SessionRow, error) {
	row := SessionRow{}
	err := c.db.QueryRowContext(ctx, `
		SELECT id, video_path, frame_count, width, height, fps,
			point_count, next_point_id, created_at, updated_at
		FROM sessions WHERE id = ?`, id).Scan(
		&row.ID, &row.VideoPath, &row.Meta.FrameCount, &row.Meta.Width,
		&row.Meta.Height, &row.Meta.FPS, &row.PointCount, &row.NextPointID,
		&row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRow{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return SessionRow{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return row, nil
}

// ListSessions returns all session rows, most recently updated first.
func (c *Catalog) ListSessions(ctx context.Context) ([]SessionRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, video_path, frame_count, width, height, fps,
			point_count, next_point_id, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var row SessionRow
		if err := rows.Scan(&row.ID, &row.VideoPath, &row.Meta.FrameCount,
			&row.Meta.Width, &row.Meta.Height, &row.Meta.FPS, &row.PointCount,
			&row.NextPointID, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its artifact rows. Semantic rows
// survive until PurgeSemanticEntries.
func (c *Catalog) DeleteSession(ctx context.Context, id string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM artifacts WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return tx.Commit()
}

// RecordArtifact appends an export record.
func (c *Catalog) RecordArtifact(ctx context.Context, row ArtifactRow) error {
	if row.ExportedAt.IsZero() {
		row.ExportedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO artifacts (session_id, path, kind, point_count, exported_at)
		VALUES (?, ?, ?, ?, ?)`,
		row.SessionID, row.Path, row.Kind, row.PointCount, row.ExportedAt)
	if err != nil {
		return fmt.Errorf("record artifact %s: %w", row.Path, err)
	}
	return nil
}

// ListArtifacts returns a session's export history, newest first.
func (c *Catalog) ListArtifacts(ctx context.Context, sessionID string) ([]ArtifactRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, session_id, path, kind, point_count, exported_at
		FROM artifacts WHERE session_id = ? ORDER BY exported_at DESC, id DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []ArtifactRow
	for rows.Next() {
		var row ArtifactRow
		if err := rows.Scan(&row.ID, &row.SessionID, &row.Path, &row.Kind,
			&row.PointCount, &row.ExportedAt); err != nil {
			return nil, fmt.Errorf("list artifacts for %s: %w", sessionID, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ReplaceSemanticEntries swaps a session's semantic rows for the given
// set, preserving slice order.
func (c *Catalog) ReplaceSemanticEntries(ctx context.Context, sessionID string, entries []semantic.Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace semantic entries for %s: %w", sessionID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM semantic_entries WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("replace semantic entries for %s: %w", sessionID, err)
	}
	for position, entry := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO semantic_entries (session_id, point_id, label, description, position)
			VALUES (?, ?, ?, ?, ?)`,
			sessionID, entry.PointID, entry.Label, entry.Description, position); err != nil {
			return fmt.Errorf("replace semantic entries for %s: %w", sessionID, err)
		}
	}
	return tx.Commit()
}

// LoadSemanticEntries returns a session's semantic rows in stored order.
func (c *Catalog) LoadSemanticEntries(ctx context.Context, sessionID string) ([]semantic.Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT point_id, label, description
		FROM semantic_entries WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load semantic entries for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []semantic.Entry
	for rows.Next() {
		var entry semantic.Entry
		if err := rows.Scan(&entry.PointID, &entry.Label, &entry.Description); err != nil {
			return nil, fmt.Errorf("load semantic entries for %s: %w", sessionID, err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// PurgeSemanticEntries deletes a session's semantic rows for good.
func (c *Catalog) PurgeSemanticEntries(ctx context.Context, sessionID string) error {
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM semantic_entries WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("purge semantic entries for %s: %w", sessionID, err)
	}
	return nil
}
