package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/franz/earshelf/internal/util"
	"github.com/spf13/cobra"
)

var playlistCmd = &cobra.Command{
	Use:   "playlist",
	Short: "Manage track playlists",
}

var playlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List playlists",
	RunE:  runPlaylistList,
}

var playlistCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty playlist",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlaylistCreate,
}

var playlistDeleteCmd = &cobra.Command{
	Use:   "delete <playlist-id>",
	Short: "Delete a playlist",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlaylistDelete,
}

var playlistAddCmd = &cobra.Command{
	Use:   "add <playlist-id> <track-id>",
	Short: "Append a track to a playlist",
	Args:  cobra.ExactArgs(2),
	RunE:  runPlaylistAdd,
}

var playlistRemoveCmd = &cobra.Command{
	Use:   "remove <playlist-id> <track-id>",
	Short: "Remove a track from a playlist",
	Args:  cobra.ExactArgs(2),
	RunE:  runPlaylistRemove,
}

var playlistShowCmd = &cobra.Command{
	Use:   "show <playlist-id>",
	Short: "Show a playlist's tracks in order",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlaylistShow,
}

func init() {
	rootCmd.AddCommand(playlistCmd)
	playlistCmd.AddCommand(playlistListCmd)
	playlistCmd.AddCommand(playlistCreateCmd)
	playlistCmd.AddCommand(playlistDeleteCmd)
	playlistCmd.AddCommand(playlistAddCmd)
	playlistCmd.AddCommand(playlistRemoveCmd)
	playlistCmd.AddCommand(playlistShowCmd)
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return id, nil
}

func runPlaylistList(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	playlists, err := db.ListPlaylists()
	if err != nil {
		return fmt.Errorf("failed to list playlists: %w", err)
	}
	if len(playlists) == 0 {
		util.InfoLog("No playlists. Create one with 'earshelf playlist create <name>'.")
		return nil
	}

	for _, p := range playlists {
		tracks, err := db.ListPlaylistTracks(p.ID)
		if err != nil {
			return fmt.Errorf("failed to list playlist tracks: %w", err)
		}
		fmt.Printf("%4d  %-30s  %d tracks  (created %s)\n", p.ID, p.Name, len(tracks), humanize.Time(p.CreatedAt))
	}
	return nil
}

func runPlaylistCreate(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := db.CreatePlaylist(args[0])
	if err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}
	util.SuccessLog("Created playlist %q (id %d)", p.Name, p.ID)
	return nil
}

func runPlaylistDelete(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	id, err := parseID(args[0], "playlist")
	if err != nil {
		return err
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeletePlaylist(id); err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	util.SuccessLog("Deleted playlist %d", id)
	return nil
}

func runPlaylistAdd(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	playlistID, err := parseID(args[0], "playlist")
	if err != nil {
		return err
	}
	trackID, err := parseID(args[1], "track")
	if err != nil {
		return err
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.AddTrackToPlaylist(playlistID, trackID); err != nil {
		return fmt.Errorf("failed to add track: %w", err)
	}
	util.SuccessLog("Added track %d to playlist %d", trackID, playlistID)
	return nil
}

func runPlaylistRemove(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	playlistID, err := parseID(args[0], "playlist")
	if err != nil {
		return err
	}
	trackID, err := parseID(args[1], "track")
	if err != nil {
		return err
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RemoveTrackFromPlaylist(playlistID, trackID); err != nil {
		return fmt.Errorf("failed to remove track: %w", err)
	}
	util.SuccessLog("Removed track %d from playlist %d", trackID, playlistID)
	return nil
}

func runPlaylistShow(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	id, err := parseID(args[0], "playlist")
	if err != nil {
		return err
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := db.GetPlaylist(id)
	if err != nil {
		return fmt.Errorf("failed to get playlist: %w", err)
	}
	if p == nil {
		return fmt.Errorf("no playlist with id %d", id)
	}

	tracks, err := db.ListPlaylistTracks(id)
	if err != nil {
		return fmt.Errorf("failed to list playlist tracks: %w", err)
	}

	fmt.Printf("%s (%d tracks)\n\n", p.Name, len(tracks))
	for i, t := range tracks {
		fmt.Printf("  %2d. [%d] %s  (%s)\n", i+1, t.ID, t.Title, formatSeconds(float64(t.DurationSec)))
	}
	return nil
}
