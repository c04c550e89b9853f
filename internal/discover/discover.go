// Package discover lists the source images of a batch.
package discover

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Supported image extensions (lowercase, with leading dot).
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsImage reports whether name is a non-hidden file with a supported
// extension, compared case-insensitively.
func IsImage(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Enumerate returns the image files directly under root, or anywhere below
// it when recursive is set. The listing is recomputed on every call and
// sorted lexicographically. Hidden directories are still descended into;
// only file names are subject to the dotfile rule.
func Enumerate(root string, recursive bool) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []string
	if recursive {
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && IsImage(d.Name()) {
				files = append(files, path)
			}
			return nil
		})
	} else {
		var entries []fs.DirEntry
		entries, err = os.ReadDir(root)
		for _, e := range entries {
			if !e.IsDir() && IsImage(e.Name()) {
				files = append(files, filepath.Join(root, e.Name()))
			}
		}
	}
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
