package main

import (
	"fmt"

	"github.com/franz/earshelf/internal/util"
	"github.com/spf13/cobra"
)

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "List favorite works",
	RunE:  runFavorites,
}

var favoritesToggleCmd = &cobra.Command{
	Use:   "toggle <work-id>",
	Short: "Toggle a work's favorite flag",
	Args:  cobra.ExactArgs(1),
	RunE:  runFavoritesToggle,
}

func init() {
	rootCmd.AddCommand(favoritesCmd)
	favoritesCmd.AddCommand(favoritesToggleCmd)
}

func runFavorites(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	ids, err := db.ListFavorites()
	if err != nil {
		return fmt.Errorf("failed to list favorites: %w", err)
	}
	if len(ids) == 0 {
		util.InfoLog("No favorites yet. Mark one with 'earshelf favorites toggle <work-id>'.")
		return nil
	}

	for _, id := range ids {
		w, err := db.GetWork(id)
		if err != nil || w == nil {
			continue
		}
		code := w.Code
		if code == "" {
			code = "-"
		}
		fmt.Printf("%4d  %-10s  %s\n", w.ID, code, w.Title)
	}
	return nil
}

func runFavoritesToggle(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	id, err := parseWorkID(args[0])
	if err != nil {
		return err
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	w, err := db.GetWork(id)
	if err != nil {
		return fmt.Errorf("failed to get work: %w", err)
	}
	if w == nil {
		return fmt.Errorf("no work with id %d", id)
	}

	favored, err := db.ToggleFavorite(id)
	if err != nil {
		return fmt.Errorf("failed to toggle favorite: %w", err)
	}
	if favored {
		util.SuccessLog("Added %q to favorites", w.Title)
	} else {
		util.SuccessLog("Removed %q from favorites", w.Title)
	}
	return nil
}
