package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pyingest/pkg/types"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func byPath(files []types.DiscoveredFile) map[string]types.DiscoveredFile {
	m := make(map[string]types.DiscoveredFile, len(files))
	for _, f := range files {
		m[f.RelativePath] = f
	}
	return m
}

func TestNew_Defaults(t *testing.T) {
	d, err := New(Options{}, nil)
	require.NoError(t, err)

	opts := d.Options()
	assert.Equal(t, DefaultIncludePatterns, opts.IncludePatterns)
	assert.Equal(t, DefaultExcludePatterns, opts.ExcludePatterns)
	assert.Equal(t, DefaultMaxFileSize, opts.MaxFileSize)
	assert.Equal(t, DefaultCodeExtensions, opts.CodeExtensions)
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New(Options{IncludePatterns: []string{"["}}, nil)
	assert.Error(t, err)
}

func TestDiscover_MaxFileCount(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.py", "b.py", "c.py", "d.py", "e.py"} {
		writeFile(t, root, name, "x = 1\n")
	}

	d, err := New(Options{
		IncludePatterns: []string{"**/*.py"},
		ExcludePatterns: []string{},
		MaxFileCount:    3,
	}, nil)
	require.NoError(t, err)

	files, err := d.Discover(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, files, 3)
	for _, f := range files {
		assert.True(t, f.ShouldProcess, f.RelativePath)
	}
	assert.Equal(t, []string{"a.py", "b.py", "c.py"},
		[]string{files[0].RelativePath, files[1].RelativePath, files[2].RelativePath})
}

func TestDiscover_CapKeepsEarlierSkips(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "x = 1\n")
	writeFile(t, root, "b.txt", "notes\n")
	writeFile(t, root, "c.py", "y = 2\n")
	writeFile(t, root, "d.py", "z = 3\n")

	d, err := New(Options{
		IncludePatterns: []string{"**/*.py"},
		ExcludePatterns: []string{},
		MaxFileCount:    2,
	}, nil)
	require.NoError(t, err)

	files, err := d.Discover(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, files, 3)
	assert.False(t, files[1].ShouldProcess)
	assert.Equal(t, 2, Count(files).ToProcess)
	assert.Len(t, Selected(files), 2)
}

func TestDiscover_EmptyFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "empty.py", "")
	writeFile(t, root, "full.py", "print('hi')\n")

	d, err := New(DefaultOptions(), nil)
	require.NoError(t, err)

	files, err := d.Discover(context.Background(), root)
	require.NoError(t, err)

	m := byPath(files)
	require.Contains(t, m, "empty.py")
	assert.False(t, m["empty.py"].ShouldProcess)
	assert.Equal(t, "Empty file", m["empty.py"].SkipReason)
	assert.True(t, m["full.py"].ShouldProcess)
	assert.Empty(t, m["full.py"].SkipReason)
}

func TestDiscover_Filters(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.py", "import app\n")
	writeFile(t, root, "pkg/mod.py", "def f():\n    pass\n")
	writeFile(t, root, "__pycache__/mod.py", "cached\n")
	writeFile(t, root, ".env.local", "SECRET=1\n")
	writeFile(t, root, "README.md", "# Project\n")
	writeFile(t, root, "notes.txt", "hello\n")
	writeFile(t, root, "big.py", strings.Repeat("x", 64))

	opts := DefaultOptions()
	opts.MaxFileSize = 32
	d, err := New(opts, nil)
	require.NoError(t, err)

	files, err := d.Discover(context.Background(), root)
	require.NoError(t, err)
	m := byPath(files)

	assert.True(t, m["main.py"].ShouldProcess)
	assert.True(t, m["main.py"].IsCode)
	assert.True(t, m["pkg/mod.py"].ShouldProcess)
	assert.True(t, m["README.md"].ShouldProcess)
	assert.False(t, m["README.md"].IsCode)

	// exclude wins over include
	assert.False(t, m["__pycache__/mod.py"].ShouldProcess)
	assert.Equal(t, "Excluded by pattern: __pycache__/**", m["__pycache__/mod.py"].SkipReason)
	assert.Equal(t, "Excluded by pattern: .env*", m[".env.local"].SkipReason)

	assert.Equal(t, "File too large: 64 > 32", m["big.py"].SkipReason)
	assert.True(t, strings.HasPrefix(m["notes.txt"].SkipReason, "Not matched by include patterns: ["))

	for _, f := range files {
		assert.True(t, filepath.IsAbs(f.AbsolutePath))
		assert.Equal(t, f.ShouldProcess, f.SkipReason == "", f.RelativePath)
	}
}

func TestDiscover_LexicalOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.py", "b = 1\n")
	writeFile(t, root, "a/z.py", "z = 1\n")
	writeFile(t, root, "a.py", "a = 1\n")

	d, err := New(DefaultOptions(), nil)
	require.NoError(t, err)

	files, err := d.Discover(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "a/z.py", files[0].RelativePath)
	assert.Equal(t, "a.py", files[1].RelativePath)
	assert.Equal(t, "b.py", files[2].RelativePath)
}

func TestDiscover_InvalidRoot(t *testing.T) {
	d, err := New(DefaultOptions(), nil)
	require.NoError(t, err)

	_, err = d.Discover(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrIO))

	root := t.TempDir()
	writeFile(t, root, "file.py", "x = 1\n")
	_, err = d.Discover(context.Background(), filepath.Join(root, "file.py"))
	assert.Error(t, err)
}

func TestDiscover_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "x = 1\n")

	d, err := New(DefaultOptions(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Discover(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecide(t *testing.T) {
	d, err := New(Options{
		IncludePatterns: []string{"**/*.py", "docs/*.md"},
		ExcludePatterns: []string{"*.pyc", "build/**"},
		MaxFileSize:     100,
	}, nil)
	require.NoError(t, err)

	tests := []struct {
		path   string
		size   int64
		ok     bool
		reason string
	}{
		{"app.py", 10, true, ""},
		{"deep/nested/app.py", 10, true, ""},
		{"docs/guide.md", 10, true, ""},
		{"build/gen.py", 10, false, "Excluded by pattern: build/**"},
		{"mod.pyc", 10, false, "Excluded by pattern: *.pyc"},
		{"build/empty.py", 0, false, "Excluded by pattern: build/**"},
		{"empty.py", 0, false, "Empty file"},
		{"huge.py", 101, false, "File too large: 101 > 100"},
		{"README.md", 10, false, `Not matched by include patterns: ["**/*.py" "docs/*.md"]`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			ok, reason := d.Decide(tt.path, tt.size)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestIsCode(t *testing.T) {
	d, err := New(Options{CodeExtensions: []string{".py", "pyi"}}, nil)
	require.NoError(t, err)

	assert.True(t, d.IsCode("a/b.py"))
	assert.True(t, d.IsCode("B.PY"))
	assert.True(t, d.IsCode("stubs.pyi"))
	assert.False(t, d.IsCode("README.md"))
	assert.False(t, d.IsCode("Makefile"))
}
