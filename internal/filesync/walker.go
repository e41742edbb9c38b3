package filesync

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"
)

// DefaultIgnorePatterns covers typical build outputs, VCS directories,
// caches, and dependency folders. Hidden entries (dot-prefixed at any
// path segment) are always skipped regardless of patterns.
var DefaultIgnorePatterns = []string{
	"**/node_modules/**",
	"**/vendor/**",
	"**/dist/**",
	"**/build/**",
	"**/out/**",
	"**/target/**",
	"**/__pycache__/**",
	"**/coverage/**",
	"**/*.min.js",
	"**/*.bundle.js",
	"**/*.map",
	"**/*.lock",
	"**/logs/**",
	"**/tmp/**",
	"**/temp/**",
}

// Walker traverses a root directory yielding relative file paths that
// survive the hidden-prefix rule and the ignore patterns.
type Walker struct {
	ignores []string
	log     *logrus.Entry
}

// NewWalker creates a walker. With no patterns the defaults apply.
func NewWalker(ignores []string) *Walker {
	if len(ignores) == 0 {
		ignores = DefaultIgnorePatterns
	}
	return &Walker{
		ignores: ignores,
		log:     logrus.WithField("component", "filesync"),
	}
}

// Walk returns every tracked file under root as a relative path using
// the host separator. Unreadable files are logged and skipped.
func (w *Walker) Walk(root string) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Permission or transient error: skip the entry, keep walking.
			w.log.WithError(err).WithField("path", path).Warn("skipping unreadable path")
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if relPath == "." {
			return nil
		}

		if info.IsDir() {
			if isHidden(relPath) || w.matchesIgnore(relPath+string(filepath.Separator)) {
				return filepath.SkipDir
			}
			return nil
		}

		if isHidden(relPath) || w.matchesIgnore(relPath) {
			return nil
		}

		files = append(files, relPath)
		return nil
	})
	return files, err
}

// isHidden reports whether any path segment starts with a dot.
func isHidden(relPath string) bool {
	for _, seg := range strings.Split(relPath, string(filepath.Separator)) {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}

func (w *Walker) matchesIgnore(relPath string) bool {
	// doublestar matches on forward slashes.
	slashed := filepath.ToSlash(relPath)
	for _, pattern := range w.ignores {
		if ok, err := doublestar.Match(pattern, slashed); err == nil && ok {
			return true
		}
	}
	return false
}
