package inventory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRoot = "/archive/trades"

func newMemSource(t *testing.T, files map[string]string) (*FilesystemSource, billy.Filesystem) {
	t.Helper()
	fs := memfs.New()
	for name, content := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(name), 0o755))
		require.NoError(t, util.WriteFile(fs, name, []byte(content), 0o644))
	}
	return NewFilesystemSource(testRoot, fs), fs
}

func buildOpts(maxDepth int) BuildOptions {
	return BuildOptions{
		MaxDepth: maxDepth,
		Policy:   DateFromFilename,
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
}

// brokenDirFS fails ReadDir for a single directory.
type brokenDirFS struct {
	billy.Filesystem
	broken string
}

func (b *brokenDirFS) ReadDir(path string) ([]os.FileInfo, error) {
	if path == b.broken {
		return nil, os.ErrPermission
	}
	return b.Filesystem.ReadDir(path)
}

func TestBuild_CollectsFilesWithDates(t *testing.T) {
	src, _ := newMemSource(t, map[string]string{
		"TRADE_IRS_20240101.csv":       "a",
		"sub/TRADE_OIS_20240102.csv":   "bb",
		"sub/deep/TRADE_BS_20240103":   "ccc",
		"README.txt":                   "no date here",
		"sub/TRADE_IRS_2024010199.csv": "run too long",
	})

	snap, err := Build(context.Background(), src, buildOpts(0))
	require.NoError(t, err)

	assert.Equal(t, testRoot, snap.SourceRoot)
	assert.Equal(t, 0, snap.MaxDepth)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), snap.BuiltAt)
	require.Len(t, snap.Records, 3)

	byName := make(map[string]FileRecord)
	for _, r := range snap.Records {
		byName[r.Filename] = r
	}

	irs := byName["TRADE_IRS_20240101.csv"]
	assert.Equal(t, filepath.Join(testRoot, "TRADE_IRS_20240101.csv"), irs.FullPath)
	assert.Equal(t, "2024-01-01", irs.MarketDateString())
	assert.Equal(t, "1", irs.Extra)

	ois := byName["TRADE_OIS_20240102.csv"]
	assert.Equal(t, filepath.Join(testRoot, "sub", "TRADE_OIS_20240102.csv"), ois.FullPath)
	assert.Equal(t, "2", ois.Extra)

	assert.Equal(t, "2024-01-03", byName["TRADE_BS_20240103"].MarketDateString())
}

func TestBuild_RespectsMaxDepth(t *testing.T) {
	src, _ := newMemSource(t, map[string]string{
		"A_IRS_20240101.csv":          "",
		"l1/A_IRS_20240102.csv":       "",
		"l1/l2/A_IRS_20240103.csv":    "",
		"l1/l2/l3/A_IRS_20240104.csv": "",
	})

	tests := []struct {
		depth int
		want  int
	}{
		{0, 4},
		{1, 2},
		{2, 3},
		{5, 4},
	}

	for _, tt := range tests {
		snap, err := Build(context.Background(), src, buildOpts(tt.depth))
		require.NoError(t, err)
		assert.Equal(t, tt.want, snap.Len(), "depth %d", tt.depth)
	}
}

func TestBuild_SkipsUnreadableSubfolder(t *testing.T) {
	_, fs := newMemSource(t, map[string]string{
		"ok/A_IRS_20240101.csv":     "",
		"locked/A_IRS_20240102.csv": "",
		"A_OIS_20240103.csv":        "",
	})
	src := NewFilesystemSource(testRoot, &brokenDirFS{Filesystem: fs, broken: "locked"})

	snap, err := Build(context.Background(), src, buildOpts(0))
	require.NoError(t, err)

	names := make([]string, 0, snap.Len())
	for _, r := range snap.Records {
		names = append(names, r.Filename)
	}
	assert.ElementsMatch(t, []string{"A_IRS_20240101.csv", "A_OIS_20240103.csv"}, names)
}

func TestBuild_UnreadableRootFails(t *testing.T) {
	_, fs := newMemSource(t, map[string]string{"A_IRS_20240101.csv": ""})
	src := NewFilesystemSource(testRoot, &brokenDirFS{Filesystem: fs, broken: "."})

	_, err := Build(context.Background(), src, buildOpts(0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}

func TestBuild_FilePatterns(t *testing.T) {
	src, _ := newMemSource(t, map[string]string{
		"A_IRS_20240101.csv": "",
		"A_IRS_20240101.tmp": "",
		"A_OIS_20240101.CSV": "",
	})
	opts := buildOpts(0)
	opts.Patterns = []string{"*.csv", "*.CSV"}

	snap, err := Build(context.Background(), src, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())
}

func TestBuild_IsReproducible(t *testing.T) {
	src, _ := newMemSource(t, map[string]string{
		"b/A_IRS_20240101.csv": "",
		"a/A_IRS_20240102.csv": "",
		"A_IRS_20240103.csv":   "",
	})

	first, err := Build(context.Background(), src, buildOpts(0))
	require.NoError(t, err)
	second, err := Build(context.Background(), src, buildOpts(0))
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
}

func TestBuild_CancelledContext(t *testing.T) {
	src, _ := newMemSource(t, map[string]string{"sub/A_IRS_20240101.csv": ""})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, src, buildOpts(0))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalSource_ModTimePolicy(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "trades.csv")
	require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
	mtime := time.Date(2023, 6, 15, 22, 30, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(name, mtime, mtime))

	src, err := NewLocalSource(dir)
	require.NoError(t, err)

	opts := buildOpts(0)
	opts.Policy = DateFromModTime
	snap, err := Build(context.Background(), src, opts)
	require.NoError(t, err)

	require.Len(t, snap.Records, 1)
	assert.Equal(t, name, snap.Records[0].FullPath)
	assert.Equal(t, "2023-06-15", snap.Records[0].MarketDateString())
}

func TestLocalSource_MissingRoot(t *testing.T) {
	src, err := NewLocalSource(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)

	_, err = Build(context.Background(), src, buildOpts(0))
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}
