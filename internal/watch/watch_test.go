package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jward/lineage"
	"github.com/jward/lineage/internal/discover"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	root   string
	w      *Watcher
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, debounce time.Duration, setup func(root string)) *harness {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	if setup != nil {
		setup(root)
	}
	w := New(discover.NewFilter(root, nil, nil), WithDebounce(debounce))
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{root: root, w: w, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- w.Run(ctx) }()
	t.Cleanup(h.stop)

	select {
	case <-w.Ready():
	case err := <-h.done:
		t.Fatalf("watcher exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher not ready")
	}
	return h
}

func (h *harness) stop() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
	}
}

func (h *harness) path(rel string) string {
	return filepath.Join(h.root, filepath.FromSlash(rel))
}

func (h *harness) write(t *testing.T, rel, content string) {
	t.Helper()
	p := h.path(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// next returns the next event for a path matching want, skipping events for
// other paths.
func (h *harness) next(t *testing.T, rel string) lineage.Event {
	t.Helper()
	want := h.path(rel)
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-h.w.Events():
			require.True(t, ok, "event channel closed")
			if ev.Path == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("no event for %s", rel)
		}
	}
}

// =============================================================================
// Event kinds
// =============================================================================

func TestWatcher_AddChangeRemove(t *testing.T) {
	t.Parallel()
	h := start(t, 50*time.Millisecond, nil)

	h.write(t, "a.ts", "export class A {}")
	assert.Equal(t, lineage.Added, h.next(t, "a.ts").Kind)

	h.write(t, "a.ts", "export class A { run(): void {} }")
	assert.Equal(t, lineage.Changed, h.next(t, "a.ts").Kind)

	require.NoError(t, os.Remove(h.path("a.ts")))
	assert.Equal(t, lineage.Removed, h.next(t, "a.ts").Kind)
}

func TestWatcher_RenameIsRemoveThenAdd(t *testing.T) {
	t.Parallel()
	h := start(t, 50*time.Millisecond, func(root string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "old.ts"), []byte("class A {}"), 0o644))
	})

	require.NoError(t, os.Rename(h.path("old.ts"), h.path("new.ts")))
	assert.Equal(t, lineage.Removed, h.next(t, "old.ts").Kind)
	assert.Equal(t, lineage.Added, h.next(t, "new.ts").Kind)
}

// =============================================================================
// Ordering and coalescing
// =============================================================================

func TestWatcher_DeliversInFirstChangeOrder(t *testing.T) {
	t.Parallel()
	h := start(t, 200*time.Millisecond, nil)

	h.write(t, "one.ts", "class One {}")
	h.write(t, "two.ts", "class Two {}")
	h.write(t, "one.ts", "class One { x = 1; }")

	var got []lineage.Event
	deadline := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-h.w.Events():
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("got %v", got)
		}
	}
	assert.Equal(t, []lineage.Event{
		{Kind: lineage.Added, Path: h.path("one.ts")},
		{Kind: lineage.Added, Path: h.path("two.ts")},
	}, got)
}

func TestWatcher_IgnoresFilteredPaths(t *testing.T) {
	t.Parallel()
	h := start(t, 20*time.Millisecond, func(root string) {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755))
	})

	h.write(t, "README.md", "# hi")
	h.write(t, "types.d.ts", "declare const x: number;")
	h.write(t, "node_modules/pkg/index.ts", "export class P {}")
	h.write(t, "real.ts", "class Real {}")

	select {
	case ev := <-h.w.Events():
		assert.Equal(t, lineage.Event{Kind: lineage.Added, Path: h.path("real.ts")}, ev)
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
	}
}

// =============================================================================
// Directories
// =============================================================================

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	t.Parallel()
	h := start(t, 50*time.Millisecond, nil)

	h.write(t, "roles/deep/miner.ts", "export class Miner {}")
	assert.Equal(t, lineage.Added, h.next(t, "roles/deep/miner.ts").Kind)

	h.write(t, "roles/deep/miner.ts", "export class Miner { run(): void {} }")
	assert.Equal(t, lineage.Changed, h.next(t, "roles/deep/miner.ts").Kind)
}

func TestWatcher_RemovedDirectoryRemovesFiles(t *testing.T) {
	t.Parallel()
	h := start(t, 50*time.Millisecond, func(root string) {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "room"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, "room", "manager.ts"), []byte("class M {}"), 0o644))
	})

	require.NoError(t, os.RemoveAll(h.path("room")))
	assert.Equal(t, lineage.Removed, h.next(t, "room/manager.ts").Kind)
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestWatcher_ClosesChannelOnCancel(t *testing.T) {
	t.Parallel()
	h := start(t, 0, nil)
	h.stop()

	select {
	case _, ok := <-h.w.Events():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestWatcher_MissingRootFails(t *testing.T) {
	t.Parallel()
	w := New(discover.NewFilter(filepath.Join(t.TempDir(), "missing"), nil, nil))
	err := w.Run(context.Background())
	require.Error(t, err)
	_, ok := <-w.Events()
	assert.False(t, ok)
}

func TestWatcher_FeedsEngine(t *testing.T) {
	t.Parallel()
	h := start(t, 20*time.Millisecond, nil)
	e, err := lineage.New(filepath.Join(t.TempDir(), "index.db"), h.root,
		lineage.WithGeneratedDir(filepath.Join(t.TempDir(), "generated")))
	require.NoError(t, err)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- e.Run(ctx, h.w.Events()) }()

	h.write(t, "base.ts", "export class Base {}")
	h.write(t, "child.ts", "import { Base } from './base';\nexport class Child extends Base {}")

	require.Eventually(t, func() bool {
		out, err := e.Query().Chain(context.Background(), "child")
		if err != nil || out["Child"] == nil || len(out["Child"].ParentChain) != 1 {
			return false
		}
		return out["Child"].ParentChain[0].Name == "Base"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-runDone)
}
