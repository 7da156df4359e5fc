package extract

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// knownExts are stripped from file keys and import specifiers. Longest first.
var knownExts = []string{".d.ts", ".tsx", ".mts", ".cts", ".ts", ".js"}

// FileKey returns the index identity of an absolute path below root: the
// slash-separated relative path with its extension and any trailing
// "/index" removed. "src/foo/index.ts" and "src/foo.ts" both map to "src/foo".
func FileKey(root, absPath string) (string, error) {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return "", fmt.Errorf("extract: file key %s: %w", absPath, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("extract: file key %s: outside root %s", absPath, root)
	}
	return normalizeKey(rel), nil
}

func normalizeKey(rel string) string {
	rel = strings.TrimPrefix(path.Clean(rel), "./")
	for _, ext := range knownExts {
		if strings.HasSuffix(rel, ext) {
			rel = strings.TrimSuffix(rel, ext)
			break
		}
	}
	if rel == "index" || rel == "." {
		return ""
	}
	return strings.TrimSuffix(rel, "/index")
}

// resolveSpecifier maps an import specifier written in the file identified by
// fromRel to the key of the imported file. Only relative specifiers and
// specifiers starting with alias (root-relative) are tracked; bare package
// imports report false.
func resolveSpecifier(fromRel, alias, spec string) (string, bool) {
	spec = strings.ReplaceAll(spec, `\`, "/")
	switch {
	case alias != "" && strings.HasPrefix(spec, alias):
		return normalizeKey(strings.TrimPrefix(spec, alias)), true
	case spec == "." || spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../"):
		dir := path.Dir(fromRel)
		joined := path.Join(dir, spec)
		if joined == ".." || strings.HasPrefix(joined, "../") {
			return "", false
		}
		return normalizeKey(joined), true
	}
	return "", false
}
