package store

import (
	"database/sql"
	"fmt"
)

// taxonomyTable describes one of the three free-form taxonomy entities.
// They share identical shape, so the operations are table-driven.
type taxonomyTable struct {
	entity string // entity table name
	join   string // work join table name
	fk     string // entity FK column in the join table
}

var (
	tagTable    = taxonomyTable{entity: "tags", join: "work_tags", fk: "tag_id"}
	circleTable = taxonomyTable{entity: "circles", join: "work_circles", fk: "circle_id"}
	actorTable  = taxonomyTable{entity: "voice_actors", join: "work_voice_actors", fk: "voice_actor_id"}
)

// getOrCreate resolves a taxonomy name to its row ID, inserting on first
// sight. Matching is case-sensitive exact; the unique constraint makes the
// insert race-free within the single-writer pool.
func getOrCreate(tx *sql.Tx, table taxonomyTable, name string) (int64, error) {
	if _, err := tx.Exec(
		fmt.Sprintf("INSERT INTO %s (name) VALUES (?) ON CONFLICT(name) DO NOTHING", table.entity),
		name,
	); err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", table.entity, err)
	}

	var id int64
	err := tx.QueryRow(
		fmt.Sprintf("SELECT id FROM %s WHERE name = ?", table.entity), name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s id: %w", table.entity, err)
	}
	return id, nil
}

func replaceAssociations(tx *sql.Tx, table taxonomyTable, workID int64, names []string) error {
	if _, err := tx.Exec(
		fmt.Sprintf("DELETE FROM %s WHERE work_id = ?", table.join), workID,
	); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table.join, err)
	}

	for _, name := range names {
		if name == "" {
			continue
		}
		id, err := getOrCreate(tx, table, name)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			fmt.Sprintf("INSERT INTO %s (work_id, %s) VALUES (?, ?) ON CONFLICT DO NOTHING", table.join, table.fk),
			workID, id,
		); err != nil {
			return fmt.Errorf("failed to associate %s: %w", table.entity, err)
		}
	}
	return nil
}

// ReplaceWorkTaxonomy swaps a work's full tag/circle/voice-actor association
// sets in one transaction. The replacement is not additive: associations
// missing from the new sets are dropped.
func (s *Store) ReplaceWorkTaxonomy(workID int64, tags, circles, voiceActors []string) error {
	return s.Transaction(func(tx *sql.Tx) error {
		if err := replaceAssociations(tx, tagTable, workID, tags); err != nil {
			return err
		}
		if err := replaceAssociations(tx, circleTable, workID, circles); err != nil {
			return err
		}
		return replaceAssociations(tx, actorTable, workID, voiceActors)
	})
}

func (s *Store) listWorkNames(table taxonomyTable, workID int64) ([]string, error) {
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT e.name FROM %s e
		JOIN %s j ON j.%s = e.id
		WHERE j.work_id = ?
		ORDER BY e.name
	`, table.entity, table.join, table.fk), workID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table.entity, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// WorkTags returns a work's tag names, sorted
func (s *Store) WorkTags(workID int64) ([]string, error) {
	return s.listWorkNames(tagTable, workID)
}

// WorkCircles returns a work's circle names, sorted
func (s *Store) WorkCircles(workID int64) ([]string, error) {
	return s.listWorkNames(circleTable, workID)
}

// WorkVoiceActors returns a work's voice actor names, sorted
func (s *Store) WorkVoiceActors(workID int64) ([]string, error) {
	return s.listWorkNames(actorTable, workID)
}

func (s *Store) listNameCounts(table taxonomyTable) ([]NameCount, error) {
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT e.name, COUNT(j.work_id) FROM %s e
		LEFT JOIN %s j ON j.%s = e.id
		GROUP BY e.id
		ORDER BY e.name
	`, table.entity, table.join, table.fk))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s counts: %w", table.entity, err)
	}
	defer rows.Close()

	var counts []NameCount
	for rows.Next() {
		var nc NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts = append(counts, nc)
	}
	return counts, rows.Err()
}

// ListTags returns every tag with its work count, for suggestion UIs
func (s *Store) ListTags() ([]NameCount, error) {
	return s.listNameCounts(tagTable)
}

// ListCircles returns every circle with its work count
func (s *Store) ListCircles() ([]NameCount, error) {
	return s.listNameCounts(circleTable)
}

// ListVoiceActors returns every voice actor with its work count
func (s *Store) ListVoiceActors() ([]NameCount, error) {
	return s.listNameCounts(actorTable)
}

func (s *Store) listWorksByName(table taxonomyTable, name string) ([]*Work, error) {
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT w.id, COALESCE(w.rj_code, ''), w.title, w.dir_path, COALESCE(w.cover_path, ''), w.created_at
		FROM works w
		JOIN %s j ON j.work_id = w.id
		JOIN %s e ON e.id = j.%s
		WHERE e.name = ?
		ORDER BY w.created_at DESC, w.id DESC
	`, table.join, table.entity, table.fk), name)
	if err != nil {
		return nil, fmt.Errorf("failed to filter works by %s: %w", table.entity, err)
	}
	defer rows.Close()

	return collectWorks(rows)
}

// WorksByTag returns works carrying the named tag, newest first
func (s *Store) WorksByTag(name string) ([]*Work, error) {
	return s.listWorksByName(tagTable, name)
}

// WorksByCircle returns works attributed to the named circle
func (s *Store) WorksByCircle(name string) ([]*Work, error) {
	return s.listWorksByName(circleTable, name)
}

// WorksByVoiceActor returns works featuring the named voice actor
func (s *Store) WorksByVoiceActor(name string) ([]*Work, error) {
	return s.listWorksByName(actorTable, name)
}
