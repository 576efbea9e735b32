package validate

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Discover walks root and returns every file with a validated extension,
// sorted for deterministic validator invocations. Directories named in
// excludeDirs (dependency, cache, and VCS trees) are pruned wherever they
// appear; unreadable subtrees are skipped rather than failing the scan.
func Discover(root string, extensions, excludeDirs []string) ([]string, error) {
	exclude := make(map[string]bool, len(excludeDirs))
	for _, d := range excludeDirs {
		exclude[d] = true
	}
	exts := normalizeExtensions(extensions)

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && exclude[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if matchesExtension(path, exts) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func filterByExtension(paths, extensions []string) []string {
	exts := normalizeExtensions(extensions)
	var out []string
	for _, p := range paths {
		if matchesExtension(p, exts) {
			out = append(out, p)
		}
	}
	return out
}

func normalizeExtensions(extensions []string) map[string]bool {
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	return exts
}

func matchesExtension(path string, exts map[string]bool) bool {
	return exts[strings.ToLower(filepath.Ext(path))]
}
