package library

import (
	"path/filepath"
	"regexp"
	"strings"
)

// formatPriority ranks container formats for duplicate resolution: lossless
// before lossy, then by typical fidelity. Higher wins.
var formatPriority = map[string]int{
	".wav":  7,
	".flac": 6,
	".m4a":  5,
	".ogg":  4,
	".opus": 3,
	".aac":  2,
	".mp3":  1,
}

var leadingNumber = regexp.MustCompile(`^\d+`)

// positionGroup is one logical track position: files that differ only by
// container format. files[0] is the preferred copy.
type positionGroup struct {
	key    string
	number int
	files  []string
}

// groupByPosition clusters a work's audio files into logical track
// positions. Files sharing a filename stem are format duplicates of one
// track; within a group the fixed format-priority order decides which copy
// stays visible. Groups come back in natural filename order with 1-based
// ordinal numbers for files that carry no numeric prefix.
func groupByPosition(files []string) []*positionGroup {
	var order []string
	groups := make(map[string]*positionGroup)

	for _, f := range files {
		key := strings.ToLower(stem(f))
		g, ok := groups[key]
		if !ok {
			g = &positionGroup{key: key}
			groups[key] = g
			order = append(order, key)
		}
		g.files = append(g.files, f)
	}

	result := make([]*positionGroup, 0, len(order))
	for i, key := range order {
		g := groups[key]
		sortByFormatPriority(g.files)

		g.number = numericPrefix(g.files[0])
		if g.number == 0 {
			g.number = i + 1
		}
		result = append(result, g)
	}
	return result
}

// sortByFormatPriority orders duplicate copies best-first, keeping the
// incoming (natural) order for equal formats
func sortByFormatPriority(files []string) {
	// Insertion sort keeps this stable without pulling in sort.SliceStable
	// for the tiny slices involved
	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && priorityOf(files[j]) > priorityOf(files[j-1]); j-- {
			files[j], files[j-1] = files[j-1], files[j]
		}
	}
}

func priorityOf(path string) int {
	return formatPriority[strings.ToLower(filepath.Ext(path))]
}

// numericPrefix extracts a track number from a leading digit run in the
// filename, e.g. "03 track.mp3" -> 3. Returns 0 when absent.
func numericPrefix(path string) int {
	match := leadingNumber.FindString(filepath.Base(path))
	if match == "" {
		return 0
	}
	n, _ := digitRun(match)
	return n
}
