package library

import (
	"os"
	"path/filepath"
	"strings"
)

// coverStems are well-known cover image names, checked first
var coverStems = []string{"cover", "folder", "front", "main", "jacket"}

// imageExtensions are the image formats considered for cover art
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".bmp":  true,
}

// findCover selects one cover image for a work directory: a well-known stem
// wins outright, otherwise the largest image stands in. Empty when the
// directory has no images.
func findCover(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var bestPath string
	var bestSize int64

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !imageExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}

		s := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		for _, known := range coverStems {
			if s == known {
				return filepath.Join(dir, name)
			}
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			bestSize = info.Size()
			bestPath = filepath.Join(dir, name)
		}
	}

	return bestPath
}
