package store

import (
	"database/sql"
	"fmt"
	"time"
)

// AddHistory appends one play log row
func (s *Store) AddHistory(workID, trackID int64) error {
	_, err := s.db.Exec(`
		INSERT INTO play_history (work_id, track_id) VALUES (?, ?)
	`, workID, trackID)
	if err != nil {
		return fmt.Errorf("failed to add history: %w", err)
	}
	return nil
}

// ListHistory returns the newest play log rows, most recent first
func (s *Store) ListHistory(limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, work_id, track_id, played_at FROM play_history
		ORDER BY played_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		e := &HistoryEntry{}
		if err := rows.Scan(&e.ID, &e.WorkID, &e.TrackID, &e.PlayedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ToggleFavorite flips a work's favorite membership and returns the new state
func (s *Store) ToggleFavorite(workID int64) (bool, error) {
	var favorite bool
	err := s.Transaction(func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRow(
			"SELECT COUNT(*) FROM favorites WHERE work_id = ?", workID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check favorite: %w", err)
		}

		if exists > 0 {
			_, err = tx.Exec("DELETE FROM favorites WHERE work_id = ?", workID)
			favorite = false
		} else {
			_, err = tx.Exec("INSERT INTO favorites (work_id) VALUES (?)", workID)
			favorite = true
		}
		if err != nil {
			return fmt.Errorf("failed to toggle favorite: %w", err)
		}
		return nil
	})
	return favorite, err
}

// ListFavorites returns the favorited work IDs
func (s *Store) ListFavorites() ([]int64, error) {
	rows, err := s.db.Query("SELECT work_id FROM favorites ORDER BY work_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveProgress upserts the resume position for a work
func (s *Store) SaveProgress(workID, trackID int64, positionSec float64) error {
	_, err := s.db.Exec(`
		INSERT INTO track_progress (work_id, track_id, position_sec, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(work_id) DO UPDATE SET
			track_id = excluded.track_id,
			position_sec = excluded.position_sec,
			updated_at = excluded.updated_at
	`, workID, trackID, positionSec, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// GetProgress returns the resume position for a work. Returns (nil, nil)
// when the work has never been played.
func (s *Store) GetProgress(workID int64) (*Progress, error) {
	p := &Progress{}
	err := s.db.QueryRow(`
		SELECT work_id, track_id, position_sec, updated_at
		FROM track_progress WHERE work_id = ?
	`, workID).Scan(&p.WorkID, &p.TrackID, &p.PositionSec, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	return p, nil
}
