package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/franz/earshelf/internal/library"
	"github.com/franz/earshelf/internal/store"
	"github.com/franz/earshelf/internal/util"
	"github.com/spf13/cobra"
)

var worksCmd = &cobra.Command{
	Use:   "works",
	Short: "List and manage cataloged works",
}

var worksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List works in the catalog",
	Long: `List cataloged works, optionally filtered by a taxonomy name.

Sort orders:
  newest  most recently added first (default)
  title   alphabetical by title
  code    by release code, uncoded works last`,
	RunE: runWorksList,
}

var worksShowCmd = &cobra.Command{
	Use:   "show <work-id>",
	Short: "Show one work with its tracks and metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorksShow,
}

var worksDeleteCmd = &cobra.Command{
	Use:   "delete <work-id>",
	Short: "Delete a work from the catalog",
	Long: `Delete a work and everything attached to it (tracks, progress, taxonomy
links, history, playlist entries). Files on disk are kept unless
--delete-files is given, which also removes the work's directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorksDelete,
}

var worksEditCmd = &cobra.Command{
	Use:   "edit <work-id>",
	Short: "Edit a work's title or taxonomy",
	Long: `Set a work's title or taxonomy by hand. Each taxonomy flag replaces
that whole set, so '--tags sleep,rain' drops every tag not listed.
Edits survive rescans; a later enrich run will overwrite them with the
catalog record.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorksEdit,
}

var worksTagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List known tags with their work counts",
	RunE:  func(cmd *cobra.Command, args []string) error { return runNameCounts("tags") },
}

var worksCirclesCmd = &cobra.Command{
	Use:   "circles",
	Short: "List known circles with their work counts",
	RunE:  func(cmd *cobra.Command, args []string) error { return runNameCounts("circles") },
}

var worksActorsCmd = &cobra.Command{
	Use:   "actors",
	Short: "List known voice actors with their work counts",
	RunE:  func(cmd *cobra.Command, args []string) error { return runNameCounts("actors") },
}

func init() {
	rootCmd.AddCommand(worksCmd)
	worksCmd.AddCommand(worksListCmd)
	worksCmd.AddCommand(worksShowCmd)
	worksCmd.AddCommand(worksDeleteCmd)
	worksCmd.AddCommand(worksEditCmd)
	worksCmd.AddCommand(worksTagsCmd)
	worksCmd.AddCommand(worksCirclesCmd)
	worksCmd.AddCommand(worksActorsCmd)

	worksListCmd.Flags().String("sort", "newest", "sort order: newest, title, code")
	worksListCmd.Flags().String("tag", "", "only works carrying this tag")
	worksListCmd.Flags().String("circle", "", "only works by this circle")
	worksListCmd.Flags().String("actor", "", "only works voiced by this actor")

	worksDeleteCmd.Flags().Bool("delete-files", false, "also remove the work's directory from disk")

	worksEditCmd.Flags().String("title", "", "new title")
	worksEditCmd.Flags().String("tags", "", "comma-separated tags, replaces the full set")
	worksEditCmd.Flags().String("circles", "", "comma-separated circles, replaces the full set")
	worksEditCmd.Flags().String("actors", "", "comma-separated voice actors, replaces the full set")
}

func parseWorkID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid work id %q", arg)
	}
	return id, nil
}

func runWorksList(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	sortFlag, _ := cmd.Flags().GetString("sort")
	tag, _ := cmd.Flags().GetString("tag")
	circle, _ := cmd.Flags().GetString("circle")
	actor, _ := cmd.Flags().GetString("actor")

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	var works []*store.Work
	switch {
	case tag != "":
		works, err = db.WorksByTag(tag)
	case circle != "":
		works, err = db.WorksByCircle(circle)
	case actor != "":
		works, err = db.WorksByVoiceActor(actor)
	default:
		var sort store.WorkSort
		switch sortFlag {
		case "newest":
			sort = store.SortNewest
		case "title":
			sort = store.SortTitle
		case "code":
			sort = store.SortCode
		default:
			return fmt.Errorf("unknown sort order %q (want newest, title, or code)", sortFlag)
		}
		works, err = db.ListWorks(sort)
	}
	if err != nil {
		return fmt.Errorf("failed to list works: %w", err)
	}

	if len(works) == 0 {
		util.InfoLog("No works in the catalog. Run 'earshelf scan' first.")
		return nil
	}

	favorites, err := db.ListFavorites()
	if err != nil {
		return fmt.Errorf("failed to list favorites: %w", err)
	}
	favored := make(map[int64]bool, len(favorites))
	for _, id := range favorites {
		favored[id] = true
	}

	for _, w := range works {
		marker := " "
		if favored[w.ID] {
			marker = "★"
		}
		code := w.Code
		if code == "" {
			code = "-"
		}
		fmt.Printf("%s %4d  %-10s  %s  (added %s)\n", marker, w.ID, code, w.Title, humanize.Time(w.CreatedAt))
	}
	util.InfoLog("")
	util.InfoLog("%d works", len(works))
	return nil
}

func runWorksShow(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("Title:  %s\n", w.Title)
	if w.Code != "" {
		fmt.Printf("Code:   %s\n", w.Code)
	}
	fmt.Printf("Dir:    %s\n", w.DirPath)
	if w.CoverPath != "" {
		fmt.Printf("Cover:  %s\n", w.CoverPath)
	}
	fmt.Printf("Added:  %s\n", humanize.Time(w.CreatedAt))

	tags, _ := db.WorkTags(id)
	circles, _ := db.WorkCircles(id)
	actors, _ := db.WorkVoiceActors(id)
	if len(circles) > 0 {
		fmt.Printf("Circle: %s\n", strings.Join(circles, ", "))
	}
	if len(actors) > 0 {
		fmt.Printf("Voices: %s\n", strings.Join(actors, ", "))
	}
	if len(tags) > 0 {
		fmt.Printf("Tags:   %s\n", strings.Join(tags, ", "))
	}

	progress, err := db.GetProgress(id)
	if err != nil {
		return fmt.Errorf("failed to get progress: %w", err)
	}

	tracks, err := db.ListWorkTracks(id)
	if err != nil {
		return fmt.Errorf("failed to list tracks: %w", err)
	}

	fmt.Println()
	for _, t := range tracks {
		resume := ""
		if progress != nil && progress.TrackID == t.ID {
			resume = fmt.Sprintf("  [resume at %s]", formatSeconds(progress.PositionSec))
		}
		fmt.Printf("  %2d. %s  (%s)%s\n", t.TrackNumber, t.Title, formatSeconds(float64(t.DurationSec)), resume)
	}
	util.InfoLog("")
	util.InfoLog("%d tracks", len(tracks))
	return nil
}

func runWorksDelete(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	id, err := parseWorkID(args[0])
	if err != nil {
		return err
	}
	deleteFiles, _ := cmd.Flags().GetBool("delete-files")

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

	logger := newEventLogger()
	defer logger.Close()

	lib := library.New(&library.Config{Store: db, Logger: logger})
	if err := lib.DeleteWork(id, deleteFiles); err != nil {
		return fmt.Errorf("failed to delete work: %w", err)
	}
	if deleteFiles {
		util.SuccessLog("Deleted %q and its directory", w.Title)
	} else {
		util.SuccessLog("Deleted %q (files on disk untouched)", w.Title)
	}
	return nil
}

func runWorksEdit(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	id, err := parseWorkID(args[0])
	if err != nil {
		return err
	}
	title, _ := cmd.Flags().GetString("title")
	taxonomyFlags := cmd.Flags().Changed("tags") || cmd.Flags().Changed("circles") || cmd.Flags().Changed("actors")
	if title == "" && !taxonomyFlags {
		return fmt.Errorf("nothing to edit: pass --title, --tags, --circles, or --actors")
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

	if title != "" {
		if err := db.UpdateWorkTitle(id, title); err != nil {
			return fmt.Errorf("failed to update title: %w", err)
		}
		util.SuccessLog("Renamed %q to %q", w.Title, title)
	}

	if taxonomyFlags {
		// Untouched dimensions carry over so one flag replaces one set
		tags, err := editedNames(cmd, "tags", func() ([]string, error) { return db.WorkTags(id) })
		if err != nil {
			return err
		}
		circles, err := editedNames(cmd, "circles", func() ([]string, error) { return db.WorkCircles(id) })
		if err != nil {
			return err
		}
		actors, err := editedNames(cmd, "actors", func() ([]string, error) { return db.WorkVoiceActors(id) })
		if err != nil {
			return err
		}

		if err := db.ReplaceWorkTaxonomy(id, tags, circles, actors); err != nil {
			return fmt.Errorf("failed to update taxonomy: %w", err)
		}
		util.SuccessLog("Updated taxonomy: %d tags, %d circles, %d voice actors",
			len(tags), len(circles), len(actors))
	}
	return nil
}

// editedNames resolves one taxonomy dimension for an edit: the parsed flag
// value when the flag was given, the work's current names otherwise.
func editedNames(cmd *cobra.Command, flag string, current func() ([]string, error)) ([]string, error) {
	if !cmd.Flags().Changed(flag) {
		return current()
	}
	raw, _ := cmd.Flags().GetString(flag)
	return splitNames(raw), nil
}

// splitNames parses a comma-separated name list, trimming whitespace and
// dropping empty entries.
func splitNames(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func runNameCounts(kind string) error {
	applyLogFlags()

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	var counts []store.NameCount
	switch kind {
	case "tags":
		counts, err = db.ListTags()
	case "circles":
		counts, err = db.ListCircles()
	default:
		counts, err = db.ListVoiceActors()
	}
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", kind, err)
	}

	for _, c := range counts {
		fmt.Printf("%4d  %s\n", c.Count, c.Name)
	}
	return nil
}

func formatSeconds(sec float64) string {
	total := int(sec)
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total/60)%60, total%60)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
