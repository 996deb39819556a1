package store

import (
	"database/sql"
	"fmt"
)

// CreatePlaylist creates a named playlist and returns it
func (s *Store) CreatePlaylist(name string) (*Playlist, error) {
	result, err := s.db.Exec("INSERT INTO playlists (name) VALUES (?)", name)
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist ID: %w", err)
	}

	return s.GetPlaylist(id)
}

// GetPlaylist retrieves a playlist by ID. Returns (nil, nil) when absent.
func (s *Store) GetPlaylist(id int64) (*Playlist, error) {
	p := &Playlist{}
	err := s.db.QueryRow(`
		SELECT id, name, created_at FROM playlists WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist: %w", err)
	}
	return p, nil
}

// ListPlaylists returns all playlists, newest first
func (s *Store) ListPlaylists() ([]*Playlist, error) {
	rows, err := s.db.Query(`
		SELECT id, name, created_at FROM playlists
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*Playlist
	for rows.Next() {
		p := &Playlist{}
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		playlists = append(playlists, p)
	}
	return playlists, rows.Err()
}

// DeletePlaylist removes a playlist and its membership rows
func (s *Store) DeletePlaylist(id int64) error {
	_, err := s.db.Exec("DELETE FROM playlists WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	return nil
}

// AddTrackToPlaylist appends a track at the end of a playlist. Adding an
// already-present track is a no-op.
func (s *Store) AddTrackToPlaylist(playlistID, trackID int64) error {
	return s.Transaction(func(tx *sql.Tx) error {
		var next int
		err := tx.QueryRow(`
			SELECT COALESCE(MAX(position), -1) + 1 FROM playlist_tracks
			WHERE playlist_id = ?
		`, playlistID).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to get playlist position: %w", err)
		}

		_, err = tx.Exec(`
			INSERT INTO playlist_tracks (playlist_id, track_id, position)
			VALUES (?, ?, ?)
			ON CONFLICT(playlist_id, track_id) DO NOTHING
		`, playlistID, trackID, next)
		if err != nil {
			return fmt.Errorf("failed to add track to playlist: %w", err)
		}
		return nil
	})
}

// RemoveTrackFromPlaylist drops a track and closes the position gap
func (s *Store) RemoveTrackFromPlaylist(playlistID, trackID int64) error {
	return s.Transaction(func(tx *sql.Tx) error {
		var pos int
		err := tx.QueryRow(`
			SELECT position FROM playlist_tracks
			WHERE playlist_id = ? AND track_id = ?
		`, playlistID, trackID).Scan(&pos)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get playlist position: %w", err)
		}

		if _, err := tx.Exec(`
			DELETE FROM playlist_tracks WHERE playlist_id = ? AND track_id = ?
		`, playlistID, trackID); err != nil {
			return fmt.Errorf("failed to remove track from playlist: %w", err)
		}

		if _, err := tx.Exec(`
			UPDATE playlist_tracks SET position = position - 1
			WHERE playlist_id = ? AND position > ?
		`, playlistID, pos); err != nil {
			return fmt.Errorf("failed to compact playlist positions: %w", err)
		}
		return nil
	})
}

// ListPlaylistTracks returns a playlist's tracks in position order
func (s *Store) ListPlaylistTracks(playlistID int64) ([]*Track, error) {
	rows, err := s.db.Query(`
		SELECT t.id, t.work_id, t.title, t.path, t.duration_sec, COALESCE(t.track_number, 0), t.is_visible
		FROM tracks t
		JOIN playlist_tracks pt ON pt.track_id = t.id
		WHERE pt.playlist_id = ?
		ORDER BY pt.position
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlist tracks: %w", err)
	}
	defer rows.Close()

	return collectTracks(rows)
}
