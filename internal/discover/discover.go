// Package discover decides which files under a source root belong in the
// index. The same Filter serves the initial scan and the file watcher.
package discover

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jward/lineage/internal/extract"
)

// Default patterns, matched against slash-separated paths relative to the root.
var (
	DefaultInclude = []string{"**/*.ts", "**/*.tsx", "**/*.mts", "**/*.cts"}
	DefaultExclude = []string{"node_modules/**", "**/node_modules/**", "**/*.d.ts"}
)

var skipDirs = map[string]struct{}{
	"node_modules": {},
	"dist":         {},
	"build":        {},
	"coverage":     {},
}

// Filter matches root-relative paths against include and exclude globs and
// the root's .gitignore.
type Filter struct {
	root    string
	include []string
	exclude []string
	gi      *ignore.GitIgnore
}

// NewFilter builds a Filter for root. Nil pattern lists fall back to the
// defaults.
func NewFilter(root string, include, exclude []string) *Filter {
	if include == nil {
		include = DefaultInclude
	}
	if exclude == nil {
		exclude = DefaultExclude
	}
	f := &Filter{root: filepath.Clean(root), include: include, exclude: exclude}
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(f.root, ".gitignore")); err == nil {
		f.gi = gi
	}
	return f
}

// Root returns the directory the filter is relative to.
func (f *Filter) Root() string {
	return f.root
}

// Exclude adds patterns to the exclude list.
func (f *Filter) Exclude(patterns ...string) {
	f.exclude = append(append([]string(nil), f.exclude...), patterns...)
}

func (f *Filter) rel(path string) (string, bool) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(path), true
	}
	rel, err := filepath.Rel(f.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// MatchFile reports whether the file at path (absolute, or relative to the
// root) should be indexed.
func (f *Filter) MatchFile(path string) bool {
	rel, ok := f.rel(path)
	if !ok || rel == "." {
		return false
	}
	if !extract.Supported(rel) {
		return false
	}
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return false
		}
	}
	if f.gi != nil && f.gi.MatchesPath(rel) {
		return false
	}
	for _, p := range f.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	for _, p := range f.include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// SkipDir reports whether nothing below the directory at path can match.
func (f *Filter) SkipDir(path string) bool {
	rel, ok := f.rel(path)
	if !ok {
		return true
	}
	if rel == "." {
		return false
	}
	name := filepath.Base(rel)
	if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
		return true
	}
	if f.gi != nil && f.gi.MatchesPath(rel+"/") {
		return true
	}
	for _, p := range f.exclude {
		if ok, _ := doublestar.Match(strings.TrimSuffix(p, "/**"), rel); ok {
			return true
		}
	}
	return false
}

// Files returns the absolute paths of every file under the filter's root that
// MatchFile accepts, sorted. Inside a git work tree, untracked ignored files
// are left out using git itself; elsewhere the .gitignore is applied.
func Files(f *Filter) ([]string, error) {
	tracked := gitLsFiles(f.root)

	var paths []string
	err := filepath.WalkDir(f.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != f.root && f.SkipDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 || !f.MatchFile(path) {
			return nil
		}
		if tracked != nil {
			rel, _ := filepath.Rel(f.root, path)
			if _, ok := tracked[filepath.ToSlash(rel)]; !ok {
				return nil
			}
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func gitLsFiles(root string) map[string]struct{} {
	info, err := os.Stat(filepath.Join(root, ".git"))
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}
