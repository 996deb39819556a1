package library

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/dhowden/tag"
	"github.com/franz/earshelf/internal/report"
	"github.com/franz/earshelf/internal/store"
	"github.com/franz/earshelf/internal/util"
)

// codePattern matches an external catalog code embedded in a directory name
var codePattern = regexp.MustCompile(`(RJ|BJ)\d{6,8}`)

// AudioExtensions are the audio file extensions grouped into works
var AudioExtensions = []string{
	".mp3",
	".wav",
	".flac",
	".m4a",
	".ogg",
	".opus",
	".aac",
}

// Scanner builds and reconciles the catalog from a directory tree
type Scanner struct {
	store      *store.Store
	extensions map[string]bool
	logger     *report.EventLogger
	scanning   atomic.Bool
}

// Config holds scanner configuration
type Config struct {
	Store  *store.Store
	Logger *report.EventLogger
}

// New creates a new Scanner
func New(cfg *Config) *Scanner {
	extMap := make(map[string]bool)
	for _, ext := range AudioExtensions {
		extMap[ext] = true
	}

	return &Scanner{
		store:      cfg.Store,
		extensions: extMap,
		logger:     cfg.Logger,
	}
}

// Progress is one scan progress tick: the count of works processed so far
type Progress struct {
	Processed int
	DirPath   string
}

// Result represents a completed scan
type Result struct {
	WorksSeen  int
	TracksSeen int
	Errors     []error
}

// Scan walks the root directory, turning each directory that carries a
// catalog code or directly contains audio files into a Work. Rescanning is
// idempotent: rows are matched by dir path (works) and file path (tracks),
// and user-owned fields are never overwritten. A progress tick is sent after
// each work; the channel is closed when the scan finishes.
//
// Only one scan may run at a time; a second call returns util.ErrBusy.
// The directory walk itself is not cancellable, but ctx is honored between
// works.
func (s *Scanner) Scan(ctx context.Context, rootPath string, progress chan<- Progress) (*Result, error) {
	if !s.scanning.CompareAndSwap(false, true) {
		return nil, util.ErrBusy
	}
	defer s.scanning.Store(false)

	if progress != nil {
		defer close(progress)
	}

	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", rootPath)
	}

	util.InfoLog("Starting scan of: %s", rootPath)

	result := &Result{}

	var candidates []string
	walkErr := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			util.WarnLog("Error accessing path %s: %v", path, err)
			result.Errors = append(result.Errors, fmt.Errorf("access error: %s: %w", path, err))
			return nil // Continue walking
		}
		if !d.IsDir() {
			return nil
		}
		if codePattern.MatchString(d.Name()) || s.containsAudio(path) {
			candidates = append(candidates, path)
		}
		return nil
	})
	if walkErr != nil {
		return result, fmt.Errorf("walk error: %w", walkErr)
	}

	for _, dir := range candidates {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		tracks, err := s.processWork(dir)
		if err != nil {
			util.ErrorLog("Failed to process %s: %v", dir, err)
			result.Errors = append(result.Errors, err)
			continue
		}

		result.WorksSeen++
		result.TracksSeen += tracks
		if progress != nil {
			progress <- Progress{Processed: result.WorksSeen, DirPath: dir}
		}
	}

	util.SuccessLog("Scan complete: %d works, %d tracks, %d errors",
		result.WorksSeen, result.TracksSeen, len(result.Errors))

	return result, nil
}

// Scanning reports whether a scan is currently in flight
func (s *Scanner) Scanning() bool {
	return s.scanning.Load()
}

// containsAudio reports whether the directory directly contains audio files
func (s *Scanner) containsAudio(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if s.extensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			return true
		}
	}
	return false
}

// processWork reconciles one work directory into the catalog and returns the
// number of track files seen
func (s *Scanner) processWork(dir string) (int, error) {
	dirName := filepath.Base(dir)
	code := codePattern.FindString(dirName)
	cover := findCover(dir)

	work, err := s.reconcileWork(dir, dirName, code, cover)
	if err != nil {
		return 0, err
	}

	files, err := s.listAudioFiles(dir)
	if err != nil {
		return 0, err
	}

	groups := groupByPosition(files)
	paths := make([]string, 0, len(files))

	for _, g := range groups {
		for i, f := range g.files {
			title, tagNumber := readEmbeddedTags(f)
			if title == "" {
				title = stem(f)
			}
			number := g.number
			if number == 0 && tagNumber > 0 {
				number = tagNumber
			}

			duration, err := ProbeDuration(f)
			if err != nil {
				util.DebugLog("Duration probe failed for %s: %v", f, err)
			}

			track := &store.Track{
				WorkID:      work.ID,
				Title:       title,
				Path:        f,
				DurationSec: duration,
				TrackNumber: number,
				Visible:     i == 0, // winner of the format-priority order
			}
			if err := s.store.UpsertTrack(track); err != nil {
				return 0, err
			}
			paths = append(paths, f)
		}
	}

	// Drop rows for files that disappeared since the last scan
	if err := s.store.DeleteTracksNotIn(work.ID, paths); err != nil {
		return 0, err
	}

	if s.logger != nil {
		s.logger.LogScan(work.ID, code, dir, len(paths))
	}

	util.DebugLog("Scanned %s (%d files)", dir, len(paths))
	return len(paths), nil
}

// reconcileWork finds or creates the work row for a directory. Matching is
// by dir path first, catalog code second (the directory may have moved).
// Title and taxonomy are user- or pipeline-owned once set, so an existing
// row only gets its path and cover refreshed.
func (s *Scanner) reconcileWork(dir, dirName, code, cover string) (*store.Work, error) {
	work, err := s.store.GetWorkByDirPath(dir)
	if err != nil {
		return nil, err
	}
	if work == nil && code != "" {
		work, err = s.store.GetWorkByCode(code)
		if err != nil {
			return nil, err
		}
	}

	if work == nil {
		work = &store.Work{Code: code, Title: dirName, DirPath: dir, CoverPath: cover}
		if err := s.store.InsertWork(work); err != nil {
			return nil, err
		}
		return work, nil
	}

	if work.CoverPath != cover {
		if err := s.store.UpdateWorkCover(work.ID, cover); err != nil {
			return nil, err
		}
		work.CoverPath = cover
	}
	return work, nil
}

// listAudioFiles returns the audio files directly inside dir in natural order
func (s *Scanner) listAudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if s.extensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return naturalLess(filepath.Base(files[i]), filepath.Base(files[j]))
	})
	return files, nil
}

// readEmbeddedTags pulls the title and track number tags, tolerating
// unreadable or untagged files
func readEmbeddedTags(path string) (string, int) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return "", 0
	}

	number, _ := m.Track()
	return strings.TrimSpace(m.Title()), number
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// naturalLess compares strings with embedded digit runs compared numerically,
// so "2.mp3" sorts before "10.mp3"
func naturalLess(a, b string) bool {
	for len(a) > 0 && len(b) > 0 {
		if isDigit(a[0]) && isDigit(b[0]) {
			aRun, aRest := digitRun(a)
			bRun, bRest := digitRun(b)
			if aRun != bRun {
				return aRun < bRun
			}
			a, b = aRest, bRest
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// digitRun splits the leading digit run off a string, returning its numeric
// value with leading zeros ignored
func digitRun(s string) (int, string) {
	i := 0
	value := 0
	for i < len(s) && isDigit(s[i]) {
		if value < 1<<40 { // avoid overflow on absurd runs
			value = value*10 + int(s[i]-'0')
		}
		i++
	}
	return value, s[i:]
}
