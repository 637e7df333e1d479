package assets

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Manifest merges explicit paths with files matching patterns in fsys,
// returning URL paths without duplicates. Explicit paths keep their order
// and come first; glob matches follow sorted. A matched index.html is listed
// as its directory path.
func Manifest(fsys fs.FS, paths, patterns []string) ([]string, error) {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range paths {
		add(p)
	}
	if fsys == nil || len(patterns) == 0 {
		return out, nil
	}

	var matched []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid precache pattern %q", pattern)
		}
		names, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", pattern, err)
		}
		matched = append(matched, names...)
	}
	sort.Strings(matched)
	for _, name := range matched {
		add(urlPath(name))
	}
	return out, nil
}

func urlPath(name string) string {
	if name == "index.html" {
		return "/"
	}
	if strings.HasSuffix(name, "/index.html") {
		return "/" + strings.TrimSuffix(name, "index.html")
	}
	return "/" + name
}
