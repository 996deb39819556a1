package main

import (
	"context"
	"fmt"
	"time"

	"github.com/franz/earshelf/internal/enrich"
	"github.com/franz/earshelf/internal/lookup"
	"github.com/franz/earshelf/internal/util"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich [work-id]",
	Short: "Fetch catalog metadata for works by their release code",
	Long: `Look up works in the external catalog by their release code and merge
the result: the title is replaced and the tags, circle, and voice actor
associations are rewritten to match the catalog record.

Pass a work id to enrich one work, or --all to refresh every coded work.
Batch runs pace their requests; works that fail to resolve are skipped
and logged.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnrich,
}

func init() {
	rootCmd.AddCommand(enrichCmd)

	enrichCmd.Flags().Bool("all", false, "enrich every work that has a release code")
	enrichCmd.Flags().String("base-url", "", "catalog endpoint ({code} is substituted)")
	enrichCmd.Flags().Duration("delay", 0, "pacing delay between batch lookups (default 1s)")
	viper.BindPFlag("lookup.base_url", enrichCmd.Flags().Lookup("base-url"))
}

func runEnrich(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	applyLogFlags()

	all, _ := cmd.Flags().GetBool("all")
	delay, _ := cmd.Flags().GetDuration("delay")
	if !all && len(args) == 0 {
		return fmt.Errorf("pass a work id or --all")
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	logger := newEventLogger()
	defer logger.Close()

	pipeline := enrich.New(&enrich.Config{
		Store:  db,
		Lookup: lookup.NewClient(viper.GetString("lookup.base_url")),
		Logger: logger,
		Delay:  delay,
	})

	if !all {
		id, err := parseWorkID(args[0])
		if err != nil {
			return err
		}
		meta, err := pipeline.EnrichWork(ctx, id)
		if err != nil {
			return fmt.Errorf("enrich failed: %w", err)
		}
		util.SuccessLog("Updated work %d: %q", id, meta.Title)
		return nil
	}

	var bar *progressbar.ProgressBar
	progress := make(chan enrich.Progress, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for tick := range progress {
			if bar == nil && !util.IsQuiet() {
				bar = progressbar.NewOptions(tick.Total,
					progressbar.OptionSetDescription("Enriching"),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionThrottle(200*time.Millisecond),
					progressbar.OptionClearOnFinish(),
				)
			}
			if bar != nil {
				bar.Set(tick.Current)
			}
		}
	}()

	startTime := time.Now()
	updated, err := pipeline.EnrichAll(ctx, progress)
	<-done
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("enrich failed: %w", err)
	}

	util.SuccessLog("Enriched %d works in %v", updated, time.Since(startTime).Round(time.Millisecond))
	return nil
}
