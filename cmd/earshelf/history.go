package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/franz/earshelf/internal/util"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently played tracks",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", 50, "number of entries to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	limit, _ := cmd.Flags().GetInt("limit")

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.ListHistory(limit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	if len(entries) == 0 {
		util.InfoLog("Nothing played yet")
		return nil
	}

	for _, e := range entries {
		title := fmt.Sprintf("track %d", e.TrackID)
		workTitle := ""
		if t, err := db.GetTrack(e.TrackID); err == nil && t != nil {
			title = t.Title
		}
		if w, err := db.GetWork(e.WorkID); err == nil && w != nil {
			workTitle = w.Title
		}
		fmt.Printf("%-20s  %s — %s\n", humanize.Time(e.PlayedAt), workTitle, title)
	}
	return nil
}
