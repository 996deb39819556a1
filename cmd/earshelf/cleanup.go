package main

import (
	"fmt"

	"github.com/franz/earshelf/internal/library"
	"github.com/franz/earshelf/internal/util"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove works whose directories no longer exist",
	Long: `Walk the catalog and delete every work whose directory has disappeared
from disk. Tracks, progress, taxonomy links, history, and playlist entries
of a removed work go with it.`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	logger := newEventLogger()
	defer logger.Close()

	scanner := library.New(&library.Config{
		Store:  db,
		Logger: logger,
	})

	removed, err := scanner.CleanupOrphans()
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	if removed == 0 {
		util.InfoLog("Nothing to clean up")
	} else {
		util.SuccessLog("Removed %d orphaned works", removed)
	}
	return nil
}
