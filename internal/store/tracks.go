package store

import (
	"database/sql"
	"fmt"
)

const trackColumns = `id, work_id, title, path, duration_sec, COALESCE(track_number, 0), is_visible`

func scanTrack(row interface{ Scan(...interface{}) error }) (*Track, error) {
	t := &Track{}
	err := row.Scan(&t.ID, &t.WorkID, &t.Title, &t.Path, &t.DurationSec, &t.TrackNumber, &t.Visible)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UpsertTrack inserts a track or, when the path is already known, updates the
// scanner-owned columns (duration, track number, visibility). The title is
// only written on first insert so user edits survive rescans.
func (s *Store) UpsertTrack(t *Track) error {
	var number interface{}
	if t.TrackNumber > 0 {
		number = t.TrackNumber
	}

	_, err := s.db.Exec(`
		INSERT INTO tracks (work_id, title, path, duration_sec, track_number, is_visible)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			work_id = excluded.work_id,
			duration_sec = excluded.duration_sec,
			track_number = excluded.track_number,
			is_visible = excluded.is_visible
	`, t.WorkID, t.Title, t.Path, t.DurationSec, number, t.Visible)
	if err != nil {
		return fmt.Errorf("failed to upsert track: %w", err)
	}

	// LastInsertId is not meaningful on the conflict path, so resolve the ID
	// by the unique key either way
	if err := s.db.QueryRow("SELECT id FROM tracks WHERE path = ?", t.Path).Scan(&t.ID); err != nil {
		return fmt.Errorf("failed to get track ID: %w", err)
	}

	return nil
}

// GetTrack retrieves a track by ID. Returns (nil, nil) when absent.
func (s *Store) GetTrack(id int64) (*Track, error) {
	t, err := scanTrack(s.db.QueryRow(`
		SELECT `+trackColumns+` FROM tracks WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track: %w", err)
	}
	return t, nil
}

// GetTrackByPath retrieves a track by its file path
func (s *Store) GetTrackByPath(path string) (*Track, error) {
	t, err := scanTrack(s.db.QueryRow(`
		SELECT `+trackColumns+` FROM tracks WHERE path = ?
	`, path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track by path: %w", err)
	}
	return t, nil
}

// ListWorkTracks returns the visible tracks of a work in playback order
func (s *Store) ListWorkTracks(workID int64) ([]*Track, error) {
	rows, err := s.db.Query(`
		SELECT `+trackColumns+` FROM tracks
		WHERE work_id = ? AND is_visible = 1
		ORDER BY track_number IS NULL, track_number, title COLLATE NOCASE
	`, workID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	defer rows.Close()

	return collectTracks(rows)
}

// ListAllWorkTracks returns every track row of a work, hidden duplicates included
func (s *Store) ListAllWorkTracks(workID int64) ([]*Track, error) {
	rows, err := s.db.Query(`
		SELECT `+trackColumns+` FROM tracks
		WHERE work_id = ?
		ORDER BY track_number IS NULL, track_number, title COLLATE NOCASE
	`, workID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	defer rows.Close()

	return collectTracks(rows)
}

func collectTracks(rows *sql.Rows) ([]*Track, error) {
	var tracks []*Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// DeleteTracksNotIn removes tracks of a work whose paths are no longer
// present on disk after a rescan
func (s *Store) DeleteTracksNotIn(workID int64, keepPaths []string) error {
	return s.Transaction(func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT id, path FROM tracks WHERE work_id = ?", workID)
		if err != nil {
			return fmt.Errorf("failed to query tracks: %w", err)
		}

		keep := make(map[string]bool, len(keepPaths))
		for _, p := range keepPaths {
			keep[p] = true
		}

		var stale []int64
		for rows.Next() {
			var id int64
			var path string
			if err := rows.Scan(&id, &path); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan track: %w", err)
			}
			if !keep[path] {
				stale = append(stale, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range stale {
			if _, err := tx.Exec("DELETE FROM tracks WHERE id = ?", id); err != nil {
				return fmt.Errorf("failed to delete stale track: %w", err)
			}
		}
		return nil
	})
}
