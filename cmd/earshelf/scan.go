package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/franz/earshelf/internal/library"
	"github.com/franz/earshelf/internal/util"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var scanCmd = &cobra.Command{
	Use:   "scan [library-root]",
	Short: "Scan a directory tree into the catalog",
	Long: `Scan a directory tree for audio works and register them in the catalog.

Each directory carrying a release code (RJ123456 style) or directly
containing audio files becomes a work; its audio files become tracks.
Rescanning the same tree is safe: existing rows are updated in place and
titles you have edited are never overwritten. Tracks whose files have
disappeared are removed from their work.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("library", "l", "", "library root directory")
	viper.BindPFlag("library", scanCmd.Flags().Lookup("library"))
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	applyLogFlags()

	root := viper.GetString("library")
	if len(args) > 0 {
		root = args[0]
	}
	if root == "" {
		return fmt.Errorf("library root is required (pass it as an argument, use --library, or set it in config)")
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return fmt.Errorf("library root does not exist: %s", root)
	}

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

	var bar *progressbar.ProgressBar
	if !viper.GetBool("quiet") {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("works"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	progress := make(chan library.Progress, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range progress {
			if bar != nil {
				bar.Add(1)
			}
		}
	}()

	startTime := time.Now()
	result, err := scanner.Scan(ctx, root, progress)
	<-done
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	util.SuccessLog("Scan complete in %v", time.Since(startTime).Round(time.Millisecond))
	util.InfoLog("  Works: %d", result.WorksSeen)
	util.InfoLog("  Tracks: %d", result.TracksSeen)
	if len(result.Errors) > 0 {
		util.WarnLog("  Errors: %d", len(result.Errors))
		for _, e := range result.Errors {
			util.DebugLog("  %v", e)
		}
	}

	util.InfoLog("")
	util.InfoLog("Next step: earshelf enrich --all")

	return nil
}
