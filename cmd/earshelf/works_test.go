package main

import (
	"fmt"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/franz/earshelf/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newEditCommand mirrors the works edit flag set on a fresh command so
// Changed state never leaks between tests
func newEditCommand(t *testing.T) *cobra.Command {
	t.Helper()

	cmd := &cobra.Command{}
	cmd.Flags().String("title", "", "")
	cmd.Flags().String("tags", "", "")
	cmd.Flags().String("circles", "", "")
	cmd.Flags().String("actors", "", "")
	return cmd
}

func seedCatalog(t *testing.T) (string, int64) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "library.db")
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	w := &store.Work{Title: "placeholder", DirPath: "/lib/RJ123456", Code: "RJ123456"}
	if err := db.InsertWork(w); err != nil {
		t.Fatalf("failed to insert work: %v", err)
	}
	if err := db.ReplaceWorkTaxonomy(w.ID, []string{"stale"}, []string{"old circle"}, []string{"old voice"}); err != nil {
		t.Fatalf("failed to seed taxonomy: %v", err)
	}
	return dbPath, w.ID
}

func TestWorksEditReplacesTitleAndTaxonomy(t *testing.T) {
	dbPath, workID := seedCatalog(t)
	prev := viper.GetString("db")
	viper.Set("db", dbPath)
	t.Cleanup(func() { viper.Set("db", prev) })

	cmd := newEditCommand(t)
	cmd.Flags().Set("title", "Quiet Rain")
	cmd.Flags().Set("tags", "sleep, rain")
	cmd.Flags().Set("actors", "New Voice")

	if err := runWorksEdit(cmd, []string{fmt.Sprint(workID)}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer db.Close()

	w, err := db.GetWork(workID)
	if err != nil {
		t.Fatalf("failed to get work: %v", err)
	}
	if w.Title != "Quiet Rain" {
		t.Errorf("expected the new title, got %q", w.Title)
	}

	tags, _ := db.WorkTags(workID)
	if !reflect.DeepEqual(tags, []string{"rain", "sleep"}) {
		t.Errorf("expected the tag set replaced, got %v", tags)
	}
	actors, _ := db.WorkVoiceActors(workID)
	if !reflect.DeepEqual(actors, []string{"New Voice"}) {
		t.Errorf("expected the voice actor set replaced, got %v", actors)
	}
	// --circles was not passed, so the old set survives
	circles, _ := db.WorkCircles(workID)
	if !reflect.DeepEqual(circles, []string{"old circle"}) {
		t.Errorf("expected circles untouched, got %v", circles)
	}
}

func TestWorksEditRequiresAFlag(t *testing.T) {
	dbPath, workID := seedCatalog(t)
	prev := viper.GetString("db")
	viper.Set("db", dbPath)
	t.Cleanup(func() { viper.Set("db", prev) })

	cmd := newEditCommand(t)
	if err := runWorksEdit(cmd, []string{fmt.Sprint(workID)}); err == nil {
		t.Error("expected an error when no edit flag is given")
	}
}

func TestSplitNames(t *testing.T) {
	cases := []struct {
		raw  string
		want []string
	}{
		{"sleep,rain", []string{"sleep", "rain"}},
		{" sleep , rain ", []string{"sleep", "rain"}},
		{"solo", []string{"solo"}},
		{",, ,", nil},
		{"", nil},
	}
	for _, c := range cases {
		if got := splitNames(c.raw); !reflect.DeepEqual(got, c.want) {
			t.Errorf("splitNames(%q) = %v, want %v", c.raw, got, c.want)
		}
	}
}
