package store

import (
	"database/sql"
	"fmt"
)

// WorkSort selects the ordering of work listings
type WorkSort string

const (
	// SortNewest orders by creation time, newest first (default)
	SortNewest WorkSort = "newest"
	// SortTitle orders by title, case-insensitive
	SortTitle WorkSort = "title"
	// SortCode orders by external catalog code; works without a code sort last
	SortCode WorkSort = "code"
)

func scanWork(row interface{ Scan(...interface{}) error }) (*Work, error) {
	w := &Work{}
	err := row.Scan(&w.ID, &w.Code, &w.Title, &w.DirPath, &w.CoverPath, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return w, nil
}

const workColumns = `id, COALESCE(rj_code, ''), title, dir_path, COALESCE(cover_path, ''), created_at`

// InsertWork inserts a new work and sets its ID
func (s *Store) InsertWork(w *Work) error {
	var code interface{}
	if w.Code != "" {
		code = w.Code
	}
	var cover interface{}
	if w.CoverPath != "" {
		cover = w.CoverPath
	}

	result, err := s.db.Exec(`
		INSERT INTO works (rj_code, title, dir_path, cover_path)
		VALUES (?, ?, ?, ?)
	`, code, w.Title, w.DirPath, cover)
	if err != nil {
		return fmt.Errorf("failed to insert work: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get work ID: %w", err)
	}
	w.ID = id

	return nil
}

// GetWork retrieves a work by ID. Returns (nil, nil) when absent.
func (s *Store) GetWork(id int64) (*Work, error) {
	w, err := scanWork(s.db.QueryRow(`
		SELECT `+workColumns+` FROM works WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work: %w", err)
	}
	return w, nil
}

// GetWorkByDirPath retrieves a work by its directory path
func (s *Store) GetWorkByDirPath(dirPath string) (*Work, error) {
	w, err := scanWork(s.db.QueryRow(`
		SELECT `+workColumns+` FROM works WHERE dir_path = ?
	`, dirPath))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work by path: %w", err)
	}
	return w, nil
}

// GetWorkByCode retrieves a work by its external catalog code
func (s *Store) GetWorkByCode(code string) (*Work, error) {
	w, err := scanWork(s.db.QueryRow(`
		SELECT `+workColumns+` FROM works WHERE rj_code = ?
	`, code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work by code: %w", err)
	}
	return w, nil
}

// ListWorks returns all works in the requested order
func (s *Store) ListWorks(sort WorkSort) ([]*Work, error) {
	order := "created_at DESC, id DESC"
	switch sort {
	case SortTitle:
		order = "title COLLATE NOCASE ASC"
	case SortCode:
		order = "rj_code IS NULL, rj_code ASC"
	}

	rows, err := s.db.Query(`SELECT ` + workColumns + ` FROM works ORDER BY ` + order)
	if err != nil {
		return nil, fmt.Errorf("failed to list works: %w", err)
	}
	defer rows.Close()

	return collectWorks(rows)
}

// ListWorksWithCode returns all works that carry an external catalog code
func (s *Store) ListWorksWithCode() ([]*Work, error) {
	rows, err := s.db.Query(`
		SELECT ` + workColumns + ` FROM works
		WHERE rj_code IS NOT NULL
		ORDER BY rj_code ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list works with code: %w", err)
	}
	defer rows.Close()

	return collectWorks(rows)
}

func collectWorks(rows *sql.Rows) ([]*Work, error) {
	var works []*Work
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work: %w", err)
		}
		works = append(works, w)
	}
	return works, rows.Err()
}

// UpdateWorkTitle sets a work's title (user edit or enrichment)
func (s *Store) UpdateWorkTitle(workID int64, title string) error {
	_, err := s.db.Exec("UPDATE works SET title = ? WHERE id = ?", title, workID)
	if err != nil {
		return fmt.Errorf("failed to update work title: %w", err)
	}
	return nil
}

// UpdateWorkCover sets a work's resolved cover image path
func (s *Store) UpdateWorkCover(workID int64, coverPath string) error {
	var cover interface{}
	if coverPath != "" {
		cover = coverPath
	}
	_, err := s.db.Exec("UPDATE works SET cover_path = ? WHERE id = ?", cover, workID)
	if err != nil {
		return fmt.Errorf("failed to update work cover: %w", err)
	}
	return nil
}

// DeleteWork removes a work. Tracks, progress, history, playlist membership
// and taxonomy joins go with it via foreign key cascades.
func (s *Store) DeleteWork(workID int64) error {
	return s.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM works WHERE id = ?", workID); err != nil {
			return fmt.Errorf("failed to delete work: %w", err)
		}
		return nil
	})
}
