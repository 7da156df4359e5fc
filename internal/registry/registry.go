// Package registry turns `exportGlobal("key", Type)` statements into the
// generated global declarations and the manual-reset module.
package registry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/jward/lineage/internal/runtime"
	"github.com/jward/lineage/internal/store"
	"github.com/jward/lineage/internal/tags"
	"github.com/jward/lineage/scripts"
)

// Artifact file names.
const (
	DeclarationsFile = "global.d.ts"
	ResetFile        = "manual-reset.ts"
)

var exportPattern = regexp.MustCompile(`exportGlobal\s*\(\s*['"](.+)['"]\s*,\s*(\w+).*\)`)

// Entry is one registered global.
type Entry struct {
	Key  string `json:"key" yaml:"key"`
	Type string `json:"type" yaml:"type"`
	File string `json:"file" yaml:"file"`
}

// Source lists tagged global statements in their natural order.
type Source interface {
	GlobalStatementsTagged(tag string) ([]*store.GlobalStatement, error)
}

// ParseExport extracts the registration key and type name from a statement.
func ParseExport(text string) (key, typeName string, ok bool) {
	m := exportPattern.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Entries reads every statement tagged exportGlobal and returns the ones
// matching the registration pattern. File is the statement's file key with
// importPrefix prepended.
func Entries(src Source, importPrefix string) ([]Entry, error) {
	stmts, err := src.GlobalStatementsTagged(tags.ExportGlobal)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	entries := []Entry{}
	for _, st := range stmts {
		key, typeName, ok := ParseExport(st.Text)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Key: key, Type: typeName, File: importPrefix + filepath.ToSlash(st.File)})
	}
	return entries, nil
}

// Generator renders and writes the artifacts.
type Generator struct {
	dir       string
	prefix    string
	scriptsFS fs.FS
	rt        *runtime.Runtime
	logger    *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithImportPrefix sets the prefix placed before file keys in generated
// imports. Defaults to "@/".
func WithImportPrefix(prefix string) Option {
	return func(g *Generator) {
		g.prefix = prefix
	}
}

// WithScriptsFS renders with the emit scripts in fsys instead of the
// embedded ones.
func WithScriptsFS(fsys fs.FS) Option {
	return func(g *Generator) {
		g.scriptsFS = fsys
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = l
	}
}

// NewGenerator creates a Generator writing into dir.
func NewGenerator(dir string, opts ...Option) *Generator {
	g := &Generator{dir: dir, prefix: "@/", scriptsFS: scripts.FS, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	g.rt = runtime.NewRuntime("", runtime.WithRuntimeFS(g.scriptsFS), runtime.WithLogger(g.logger))
	return g
}

// Dir returns the output directory.
func (g *Generator) Dir() string {
	return g.dir
}

// Render produces the artifact contents for entries, keyed by file name.
func (g *Generator) Render(ctx context.Context, entries []Entry) (map[string]string, error) {
	items := make([]map[string]string, 0, len(entries))
	for _, e := range entries {
		items = append(items, map[string]string{"key": e.Key, "type": e.Type, "file": e.File})
	}
	list, err := runtime.ToObject(items)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	out := make(map[string]string, 2)
	for script, name := range map[string]string{"global_dts": DeclarationsFile, "manual_reset": ResetFile} {
		rendered, err := g.rt.Render(ctx, runtime.EmitScriptPath(script), map[string]any{
			"entries": list,
			"out":     name,
		})
		if err != nil {
			return nil, fmt.Errorf("registry: render %s: %w", name, err)
		}
		text, ok := rendered[name]
		if !ok {
			return nil, fmt.Errorf("registry: render %s: script emitted nothing", name)
		}
		out[name] = text
	}
	return out, nil
}

// Generate rebuilds both artifacts from src and overwrites them in full,
// returning the names of the files written.
func (g *Generator) Generate(ctx context.Context, src Source) ([]string, error) {
	entries, err := Entries(src, g.prefix)
	if err != nil {
		return nil, err
	}
	rendered, err := g.Render(ctx, entries)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, fmt.Errorf("registry: create %s: %w", g.dir, err)
	}

	var written []string
	for _, name := range []string{DeclarationsFile, ResetFile} {
		path := filepath.Join(g.dir, name)
		if err := os.WriteFile(path, []byte(rendered[name]), 0o644); err != nil {
			return nil, fmt.Errorf("registry: write %s: %w", path, err)
		}
		written = append(written, name)
	}
	g.logger.Debug("registry.generate", "entries", len(entries), "written", len(written))
	return written, nil
}
