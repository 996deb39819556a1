package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/earshelf/internal/store"
	"github.com/franz/earshelf/internal/util"
)

func newTestScanner(t *testing.T) (*Scanner, *store.Store) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return New(&Config{Store: s}), s
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}

func buildLibrary(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	// Coded work with a duplicate-format pair and a cover
	writeFile(t, filepath.Join(root, "RJ123456", "01.wav"), 64)
	writeFile(t, filepath.Join(root, "RJ123456", "01.mp3"), 32)
	writeFile(t, filepath.Join(root, "RJ123456", "02.mp3"), 32)
	writeFile(t, filepath.Join(root, "RJ123456", "cover.jpg"), 16)
	// Code-less work detected by its audio content
	writeFile(t, filepath.Join(root, "loose tracks", "ambience.mp3"), 32)
	writeFile(t, filepath.Join(root, "loose tracks", "rain.mp3"), 32)
	// Non-audio directory, ignored
	writeFile(t, filepath.Join(root, "notes", "readme.txt"), 8)
	return root
}

func runScan(t *testing.T, s *Scanner, root string) (*Result, int) {
	t.Helper()

	progress := make(chan Progress, 64)
	result, err := s.Scan(context.Background(), root, progress)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	ticks := 0
	for range progress {
		ticks++
	}
	return result, ticks
}

func TestScanCreatesWorksAndTracks(t *testing.T) {
	scanner, db := newTestScanner(t)
	root := buildLibrary(t)

	result, ticks := runScan(t, scanner, root)
	if result.WorksSeen != 2 {
		t.Fatalf("expected 2 works, got %d", result.WorksSeen)
	}
	if ticks != 2 {
		t.Errorf("expected 2 progress ticks, got %d", ticks)
	}

	coded, err := db.GetWorkByCode("RJ123456")
	if err != nil {
		t.Fatalf("failed to get coded work: %v", err)
	}
	if coded == nil {
		t.Fatal("expected coded work to exist")
	}
	if coded.Title != "RJ123456" {
		t.Errorf("expected directory-name title, got %q", coded.Title)
	}
	if filepath.Base(coded.CoverPath) != "cover.jpg" {
		t.Errorf("expected cover.jpg, got %q", coded.CoverPath)
	}

	loose, err := db.GetWorkByDirPath(filepath.Join(root, "loose tracks"))
	if err != nil {
		t.Fatalf("failed to get loose work: %v", err)
	}
	if loose == nil {
		t.Fatal("expected code-less work to exist")
	}
	if loose.Code != "" {
		t.Errorf("expected no code, got %q", loose.Code)
	}

	tracks, err := db.ListWorkTracks(loose.ID)
	if err != nil {
		t.Fatalf("failed to list tracks: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}
	// No numeric prefix: natural order assigns ordinals
	if tracks[0].Title != "ambience" || tracks[0].TrackNumber != 1 {
		t.Errorf("unexpected first track: %q #%d", tracks[0].Title, tracks[0].TrackNumber)
	}
	if tracks[1].Title != "rain" || tracks[1].TrackNumber != 2 {
		t.Errorf("unexpected second track: %q #%d", tracks[1].Title, tracks[1].TrackNumber)
	}
}

func TestDuplicateFormatKeepsOneVisibleTrack(t *testing.T) {
	scanner, db := newTestScanner(t)
	root := buildLibrary(t)
	runScan(t, scanner, root)

	work, err := db.GetWorkByCode("RJ123456")
	if err != nil || work == nil {
		t.Fatalf("failed to get work: %v", err)
	}

	visible, err := db.ListWorkTracks(work.ID)
	if err != nil {
		t.Fatalf("failed to list visible tracks: %v", err)
	}
	if len(visible) != 2 {
		t.Fatalf("expected 2 visible tracks, got %d", len(visible))
	}
	// Lossless copy wins position 1
	if filepath.Ext(visible[0].Path) != ".wav" || visible[0].TrackNumber != 1 {
		t.Errorf("expected 01.wav visible at #1, got %s #%d", visible[0].Path, visible[0].TrackNumber)
	}

	all, err := db.ListAllWorkTracks(work.ID)
	if err != nil {
		t.Fatalf("failed to list all tracks: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 stored tracks, got %d", len(all))
	}

	hidden := 0
	for _, tr := range all {
		if !tr.Visible {
			hidden++
			if filepath.Ext(tr.Path) != ".mp3" || tr.TrackNumber != 1 {
				t.Errorf("unexpected hidden track %s #%d", tr.Path, tr.TrackNumber)
			}
		}
	}
	if hidden != 1 {
		t.Errorf("expected exactly 1 hidden duplicate, got %d", hidden)
	}
}

func TestRescanIsIdempotent(t *testing.T) {
	scanner, db := newTestScanner(t)
	root := buildLibrary(t)

	first, _ := runScan(t, scanner, root)
	second, _ := runScan(t, scanner, root)

	if first.WorksSeen != second.WorksSeen || first.TracksSeen != second.TracksSeen {
		t.Errorf("rescan changed counts: %+v vs %+v", first, second)
	}

	works, err := db.ListWorks(store.SortNewest)
	if err != nil {
		t.Fatalf("failed to list works: %v", err)
	}
	if len(works) != 2 {
		t.Fatalf("expected 2 works after rescan, got %d", len(works))
	}

	var trackRows int
	if err := db.DB().QueryRow("SELECT COUNT(*) FROM tracks").Scan(&trackRows); err != nil {
		t.Fatalf("failed to count tracks: %v", err)
	}
	if trackRows != 5 {
		t.Errorf("expected 5 track rows after rescan, got %d", trackRows)
	}
}

func TestRescanPreservesEditedTitle(t *testing.T) {
	scanner, db := newTestScanner(t)
	root := buildLibrary(t)
	runScan(t, scanner, root)

	work, err := db.GetWorkByCode("RJ123456")
	if err != nil || work == nil {
		t.Fatalf("failed to get work: %v", err)
	}
	if err := db.UpdateWorkTitle(work.ID, "Hand-curated Title"); err != nil {
		t.Fatalf("failed to edit title: %v", err)
	}
	if err := db.ReplaceWorkTaxonomy(work.ID, []string{"whisper"}, nil, nil); err != nil {
		t.Fatalf("failed to set taxonomy: %v", err)
	}

	runScan(t, scanner, root)

	work, err = db.GetWork(work.ID)
	if err != nil || work == nil {
		t.Fatalf("failed to reload work: %v", err)
	}
	if work.Title != "Hand-curated Title" {
		t.Errorf("rescan overwrote edited title: %q", work.Title)
	}

	tags, err := db.WorkTags(work.ID)
	if err != nil {
		t.Fatalf("failed to get tags: %v", err)
	}
	if len(tags) != 1 || tags[0] != "whisper" {
		t.Errorf("rescan touched taxonomy: %v", tags)
	}
}

func TestScanRejectsConcurrentRun(t *testing.T) {
	scanner, _ := newTestScanner(t)

	scanner.scanning.Store(true)
	_, err := scanner.Scan(context.Background(), t.TempDir(), nil)
	if !errors.Is(err, util.ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	scanner.scanning.Store(false)
}

func TestCleanupOrphans(t *testing.T) {
	scanner, db := newTestScanner(t)
	root := buildLibrary(t)
	runScan(t, scanner, root)

	if err := os.RemoveAll(filepath.Join(root, "loose tracks")); err != nil {
		t.Fatalf("failed to remove dir: %v", err)
	}

	removed, err := scanner.CleanupOrphans()
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 orphan removed, got %d", removed)
	}

	works, err := db.ListWorks(store.SortNewest)
	if err != nil {
		t.Fatalf("failed to list works: %v", err)
	}
	if len(works) != 1 || works[0].Code != "RJ123456" {
		t.Errorf("expected only the coded work to remain, got %v", works)
	}

	var orphanTracks int
	err = db.DB().QueryRow(
		"SELECT COUNT(*) FROM tracks WHERE work_id NOT IN (SELECT id FROM works)",
	).Scan(&orphanTracks)
	if err != nil {
		t.Fatalf("failed to count orphan tracks: %v", err)
	}
	if orphanTracks != 0 {
		t.Errorf("expected no orphan tracks, got %d", orphanTracks)
	}
}

func TestDeleteWorkKeepsFilesByDefault(t *testing.T) {
	scanner, db := newTestScanner(t)
	root := buildLibrary(t)
	runScan(t, scanner, root)

	works, err := db.ListWorks(store.SortCode)
	if err != nil {
		t.Fatalf("failed to list works: %v", err)
	}
	coded := works[0]
	if coded.Code != "RJ123456" {
		t.Fatalf("expected the coded work first, got %v", coded)
	}

	if err := scanner.DeleteWork(coded.ID, false); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	w, err := db.GetWork(coded.ID)
	if err != nil {
		t.Fatalf("failed to get work: %v", err)
	}
	if w != nil {
		t.Error("expected the work gone from the catalog")
	}
	if _, err := os.Stat(coded.DirPath); err != nil {
		t.Errorf("expected the directory kept on disk: %v", err)
	}
}

func TestDeleteWorkRemovesFilesWhenAsked(t *testing.T) {
	scanner, db := newTestScanner(t)
	root := buildLibrary(t)
	runScan(t, scanner, root)

	works, err := db.ListWorks(store.SortCode)
	if err != nil {
		t.Fatalf("failed to list works: %v", err)
	}
	coded := works[0]

	if err := scanner.DeleteWork(coded.ID, true); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := os.Stat(coded.DirPath); !os.IsNotExist(err) {
		t.Errorf("expected the directory removed from disk, stat err = %v", err)
	}

	if err := scanner.DeleteWork(coded.ID, true); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a deleted work, got %v", err)
	}
}

func TestNaturalLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"2.mp3", "10.mp3", true},
		{"10.mp3", "2.mp3", false},
		{"01.mp3", "01.wav", true},
		{"track 9", "track 12", true},
		{"a", "b", true},
		{"same", "same", false},
	}
	for _, c := range cases {
		if got := naturalLess(c.a, c.b); got != c.want {
			t.Errorf("naturalLess(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestCodePattern(t *testing.T) {
	cases := map[string]string{
		"RJ123456":                    "RJ123456",
		"[circle] RJ01234567 release": "RJ01234567",
		"BJ654321":                    "BJ654321",
		"plain folder":                "",
		"RJ123 too short":             "",
	}
	for name, want := range cases {
		if got := codePattern.FindString(name); got != want {
			t.Errorf("codePattern(%q) = %q, want %q", name, got, want)
		}
	}
}
