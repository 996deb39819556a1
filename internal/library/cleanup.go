package library

import (
	"fmt"
	"os"

	"github.com/franz/earshelf/internal/util"
)

// CleanupOrphans deletes every work whose backing directory no longer exists
// on disk and returns the number removed. Child rows go with each work via
// the store's cascades.
func (s *Scanner) CleanupOrphans() (int, error) {
	works, err := s.store.ListWorks("")
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, w := range works {
		if _, err := os.Stat(w.DirPath); !os.IsNotExist(err) {
			continue
		}

		if err := s.store.DeleteWork(w.ID); err != nil {
			return removed, err
		}
		removed++

		if s.logger != nil {
			s.logger.LogCleanup(w.ID, w.DirPath)
		}
		util.InfoLog("Removed orphaned work %d (%s)", w.ID, w.DirPath)
	}

	return removed, nil
}

// DeleteWork removes a work from the catalog and, when deleteFiles is set,
// its directory from disk. File removal is best effort: by the time it runs
// the catalog rows are already gone, so a filesystem failure is logged and
// swallowed rather than leaving the two out of sync.
func (s *Scanner) DeleteWork(workID int64, deleteFiles bool) error {
	w, err := s.store.GetWork(workID)
	if err != nil {
		return err
	}
	if w == nil {
		return fmt.Errorf("work %d: %w", workID, util.ErrNotFound)
	}

	if err := s.store.DeleteWork(workID); err != nil {
		return fmt.Errorf("failed to delete work: %w", err)
	}
	if s.logger != nil {
		s.logger.LogCleanup(w.ID, w.DirPath)
	}

	if deleteFiles {
		if err := os.RemoveAll(w.DirPath); err != nil {
			util.WarnLog("Failed to remove %s: %v", w.DirPath, err)
		}
	}
	return nil
}
