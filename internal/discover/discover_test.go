package discover

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFilter_MatchFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	f := NewFilter(root, nil, nil)

	tests := []struct {
		path string
		want bool
	}{
		{"src/room.ts", true},
		{"src/view.tsx", true},
		{"src/types.d.ts", false},
		{"node_modules/pkg/index.ts", false},
		{"src/node_modules/pkg/index.ts", false},
		{".cache/a.ts", false},
		{"README.md", false},
		{filepath.Join(root, "src", "abs.ts"), true},
		{filepath.Join(filepath.Dir(root), "outside.ts"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.MatchFile(tt.path), tt.path)
	}
}

func TestFilter_Exclude(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	f := NewFilter(root, nil, nil)
	f.Exclude("generated/**")

	assert.False(t, f.MatchFile("generated/manual-reset.ts"))
	assert.True(t, f.SkipDir(filepath.Join(root, "generated")))
	assert.False(t, f.SkipDir(filepath.Join(root, "src")))
	assert.False(t, f.SkipDir(root))
}

func TestFilter_Gitignore(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "tmp/\nscratch.ts\n")
	f := NewFilter(root, nil, nil)

	assert.False(t, f.MatchFile("scratch.ts"))
	assert.True(t, f.SkipDir(filepath.Join(root, "tmp")))
	assert.True(t, f.MatchFile("keep.ts"))
}

func TestFiles_WalksAndSorts(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	b := writeFile(t, root, "src/b.ts", "")
	a := writeFile(t, root, "src/a.ts", "")
	idx := writeFile(t, root, "index.tsx", "")
	writeFile(t, root, "src/a.d.ts", "")
	writeFile(t, root, "node_modules/x/index.ts", "")
	writeFile(t, root, "dist/out.ts", "")

	paths, err := Files(NewFilter(root, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{idx, a, b}, paths)
}

func TestFiles_CustomInclude(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	keep := writeFile(t, root, "src/keep.ts", "")
	writeFile(t, root, "test/skip.ts", "")

	paths, err := Files(NewFilter(root, []string{"src/**/*.ts"}, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{keep}, paths)
}
