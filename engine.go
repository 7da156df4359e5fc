package lineage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jward/lineage/internal/discover"
	"github.com/jward/lineage/internal/extract"
	"github.com/jward/lineage/internal/metrics"
	"github.com/jward/lineage/internal/registry"
	"github.com/jward/lineage/internal/resolve"
	"github.com/jward/lineage/internal/store"
	"github.com/jward/lineage/internal/tags"
)

// ErrClosed is returned by operations on a closed Engine.
var ErrClosed = errors.New("lineage: engine closed")

// EventKind says what happened to a file.
type EventKind int

const (
	Added EventKind = iota
	Changed
	Removed
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one change notification for an absolute file path.
type Event struct {
	Kind EventKind
	Path string
}

// Engine owns the index: it applies change events one at a time, keeps the
// generated registry artifacts current, and hands out query builders.
type Engine struct {
	store     *store.Store
	extractor *extract.Extractor
	generator *registry.Generator
	filter    *discover.Filter
	metrics   *metrics.Metrics
	logger    *slog.Logger

	importPrefix string
	generatedDir string
	scriptsFS    fs.FS
	include      []string
	exclude      []string

	// mu serializes writers. Readers go through read transactions instead.
	mu     sync.Mutex
	closed bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics records engine activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithImportPrefix sets the import prefix that addresses the source root,
// both when reading imports and when writing generated imports.
func WithImportPrefix(prefix string) Option {
	return func(e *Engine) {
		e.importPrefix = prefix
	}
}

// WithGeneratedDir sets where the registry artifacts are written. Defaults to
// <root>/generated. The directory is never indexed.
func WithGeneratedDir(dir string) Option {
	return func(e *Engine) {
		e.generatedDir = dir
	}
}

// WithScriptsFS renders artifacts with the emit scripts in fsys instead of
// the embedded ones.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithInclude replaces the glob patterns a file must match to be indexed.
func WithInclude(patterns ...string) Option {
	return func(e *Engine) {
		e.include = patterns
	}
}

// WithExclude replaces the glob patterns that keep a file out of the index.
func WithExclude(patterns ...string) Option {
	return func(e *Engine) {
		e.exclude = patterns
	}
}

// New creates an Engine indexing the TypeScript sources under root, backed by
// a SQLite database at dbPath.
func New(dbPath, root string, opts ...Option) (*Engine, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("lineage: root: %w", err)
	}
	e := &Engine{
		logger:       slog.Default(),
		importPrefix: extract.RootAlias,
		generatedDir: filepath.Join(absRoot, "generated"),
	}
	for _, opt := range opts {
		opt(e)
	}

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("lineage: create db dir: %w", err)
		}
	}
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("lineage: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("lineage: migrate: %w", err)
	}
	e.store = s

	e.extractor = extract.New(absRoot, extract.WithAlias(e.importPrefix))

	genOpts := []registry.Option{
		registry.WithImportPrefix(e.importPrefix),
		registry.WithLogger(e.logger),
	}
	if e.scriptsFS != nil {
		genOpts = append(genOpts, registry.WithScriptsFS(e.scriptsFS))
	}
	e.generator = registry.NewGenerator(e.generatedDir, genOpts...)

	e.filter = discover.NewFilter(absRoot, e.include, e.exclude)
	if rel, err := filepath.Rel(absRoot, e.generatedDir); err == nil && !strings.HasPrefix(rel, "..") {
		e.filter.Exclude(filepath.ToSlash(rel) + "/**")
	}
	return e, nil
}

// Close releases the database. Later calls return ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.closed = true
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Root returns the absolute source root.
func (e *Engine) Root() string {
	return e.extractor.Root()
}

// GeneratedDir returns where the registry artifacts are written.
func (e *Engine) GeneratedDir() string {
	return e.generatedDir
}

// Filter returns the include/exclude filter shared with file watchers.
func (e *Engine) Filter() *discover.Filter {
	return e.filter
}

// FileKey converts an absolute path below the root into its index key.
func (e *Engine) FileKey(path string) (string, error) {
	return e.extractor.FileKey(path)
}

// Query returns a QueryBuilder reading committed state.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store, keyFn: e.FileKey, metrics: e.metrics}
}

// HandleEvent applies one change event in its own transaction and, when the
// index changed, regenerates the registry artifacts. Events are serialized.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	logger := e.logger.With("event_id", uuid.NewString(), "kind", ev.Kind.String(), "path", ev.Path)
	start := time.Now()
	changed, err := e.apply(ctx, ev, logger)
	if err == nil && changed {
		_, err = e.generate(ctx)
	}
	e.metrics.EventProcessed(ctx, ev.Kind.String(), outcome(changed, err), time.Since(start))
	if err != nil {
		logger.Warn("engine.event_failed", "err", err)
		return err
	}
	logger.Debug("engine.event", "changed", changed, "duration", time.Since(start))
	return nil
}

// Run applies events from ch in delivery order until ch is closed or ctx is
// done. Per-event failures are logged and do not stop the loop.
func (e *Engine) Run(ctx context.Context, ch <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := e.HandleEvent(ctx, ev); errors.Is(err, ErrClosed) {
				return err
			}
		}
	}
}

// IndexDirectory brings the index in line with the files currently under the
// root: every matching file is indexed, records of files that no longer exist
// are removed, and the artifacts are generated once at the end.
func (e *Engine) IndexDirectory(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	paths, err := discover.Files(e.filter)
	if err != nil {
		return fmt.Errorf("lineage: discover: %w", err)
	}

	var errs []error
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev := Event{Kind: Changed, Path: path}
		logger := e.logger.With("event_id", uuid.NewString(), "kind", "scan", "path", path)
		if key, err := e.FileKey(path); err == nil {
			seen[key] = true
		}
		start := time.Now()
		changed, err := e.apply(ctx, ev, logger)
		e.metrics.EventProcessed(ctx, "scan", outcome(changed, err), time.Since(start))
		if err != nil {
			errs = append(errs, fmt.Errorf("index %s: %w", path, err))
		}
	}

	stale, err := e.staleFiles(seen)
	if err != nil {
		return err
	}
	for _, f := range stale {
		logger := e.logger.With("event_id", uuid.NewString(), "kind", "prune", "path", f.Path)
		if _, err := e.apply(ctx, Event{Kind: Removed, Path: f.Path}, logger); err != nil {
			errs = append(errs, fmt.Errorf("prune %s: %w", f.Key, err))
		}
	}

	if _, err := e.generate(ctx); err != nil {
		errs = append(errs, err)
	}
	e.logger.Info("engine.indexed", "files", len(paths), "pruned", len(stale), "errors", len(errs))
	if len(errs) > 0 {
		return fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

// Generate rewrites the registry artifacts from committed state and returns
// the names of the files that changed.
func (e *Engine) Generate(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.generate(ctx)
}

func (e *Engine) generate(ctx context.Context) ([]string, error) {
	var written []string
	err := e.store.WithReadTransaction(ctx, func(snap *store.Store) error {
		var err error
		written, err = e.generator.Generate(ctx, snap)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("lineage: generate: %w", err)
	}
	e.metrics.ArtifactsWritten(ctx, len(written))
	if len(written) > 0 {
		e.logger.Info("engine.generated", "dir", e.generatedDir, "files", written)
	}
	return written, nil
}

func (e *Engine) staleFiles(seen map[string]bool) ([]*store.File, error) {
	files, err := e.store.Files()
	if err != nil {
		return nil, fmt.Errorf("lineage: list files: %w", err)
	}
	var stale []*store.File
	for _, f := range files {
		if !seen[f.Key] {
			stale = append(stale, f)
		}
	}
	return stale, nil
}

// apply updates the store for one event and reports whether anything changed.
// Parsing happens before the transaction, so a file that fails to parse keeps
// its previous records.
func (e *Engine) apply(ctx context.Context, ev Event, logger *slog.Logger) (bool, error) {
	key, err := e.FileKey(ev.Path)
	if err != nil {
		return false, err
	}

	if ev.Kind == Removed {
		return e.remove(ctx, key, logger)
	}
	if !extract.Supported(ev.Path) {
		return false, nil
	}

	content, err := os.ReadFile(ev.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return e.remove(ctx, key, logger)
	}
	if err != nil {
		return false, fmt.Errorf("read file: %w", err)
	}
	hash := store.ContentHash(content)

	existing, err := e.store.FileByKey(key)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.Hash == hash {
		logger.Debug("engine.unchanged", "file", key)
		return false, nil
	}

	res, err := e.extractor.Extract(ctx, ev.Path, content)
	if err != nil {
		if errors.Is(err, extract.ErrSyntax) {
			e.metrics.ParseFailed(ctx)
			logger.Warn("engine.parse_failed", "file", key, "err", err)
		}
		return false, err
	}

	var promoted int
	err = e.store.WithTransaction(context.WithoutCancel(ctx), func(tx *store.Store) error {
		stats, err := tx.InvalidateFile(key)
		if err != nil {
			return err
		}
		if stats.Demoted > 0 {
			logger.Debug("engine.demoted", "file", key, "count", stats.Demoted)
		}
		if _, err := tx.UpsertFile(&store.File{
			Key:         key,
			Path:        ev.Path,
			Hash:        hash,
			LastIndexed: time.Now(),
		}); err != nil {
			return err
		}
		promoted, err = persist(tx, res, logger)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("lineage: index %s: %w", key, err)
	}
	e.metrics.Promoted(ctx, promoted)
	logger.Debug("engine.indexed_file", "file", key,
		"classes", len(res.Classes), "globals", len(res.Globals), "promoted", promoted)
	return true, nil
}

func (e *Engine) remove(ctx context.Context, key string, logger *slog.Logger) (bool, error) {
	existing, err := e.store.FileByKey(key)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	var stats store.InvalidationStats
	err = e.store.WithTransaction(context.WithoutCancel(ctx), func(tx *store.Store) error {
		var err error
		stats, err = tx.InvalidateFile(key)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("lineage: remove %s: %w", key, err)
	}
	logger.Debug("engine.removed", "file", key, "classes", stats.Classes, "demoted", stats.Demoted)
	return true, nil
}

// persist writes the extracted facts of one file and returns how many
// pending classes were promoted.
func persist(tx *store.Store, res *extract.Result, logger *slog.Logger) (int, error) {
	pass := resolve.NewPass(tx, res.File, res.Imports)
	for _, cls := range res.Classes {
		c, created, err := pass.Declare(cls.Name, cls.Parent)
		if err != nil {
			return 0, err
		}
		if !created {
			logger.Debug("engine.duplicate_class", "file", res.File, "class", cls.Name)
			continue
		}
		if err := tx.InsertTags(store.OwnerClass, c.ID, storeTags(cls.Tags)); err != nil {
			return 0, err
		}

		seen := make(map[string]bool, len(cls.Methods))
		for _, m := range cls.Methods {
			// Accessor pairs and overloads share a name; the first body wins.
			if seen[m.Name] {
				continue
			}
			seen[m.Name] = true
			method := &store.Method{ClassID: c.ID, Name: m.Name}
			if _, err := tx.InsertMethod(method); err != nil {
				return 0, err
			}
			if err := tx.InsertTags(store.OwnerMethod, method.ID, storeTags(m.Tags)); err != nil {
				return 0, err
			}
		}
	}

	for _, g := range res.Globals {
		st := &store.GlobalStatement{File: res.File, Text: g.Text}
		if _, err := tx.InsertGlobalStatement(st); err != nil {
			return 0, err
		}
		if err := tx.InsertTags(store.OwnerGlobalStatement, st.ID, storeTags(g.Tags)); err != nil {
			return 0, err
		}
	}
	return pass.Promoted(), nil
}

func storeTags(ts []tags.Tag) []store.Tag {
	out := make([]store.Tag, len(ts))
	for i, t := range ts {
		out[i] = store.Tag{Name: t.Name, Args: t.Args}
	}
	return out
}

func outcome(changed bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case changed:
		return "indexed"
	}
	return "skipped"
}
