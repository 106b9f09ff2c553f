package inventory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// ErrSourceUnavailable is returned when the source root itself cannot be listed.
var ErrSourceUnavailable = errors.New("source location unavailable")

// Entry describes one file found by a Source.
type Entry struct {
	// Path is the full location of the file, suitable for FileRecord.FullPath.
	Path    string
	Name    string
	ModTime time.Time
	Size    int64
}

// VisitFunc is called for every file. When a subfolder cannot be listed it is
// called with a nil entry and the listing error; returning nil skips that
// subfolder, returning an error aborts the walk.
type VisitFunc func(path string, entry *Entry, err error) error

// Source lists candidate files under a root location.
type Source interface {
	// Location is the root as configured, recorded as snapshot provenance.
	Location() string
	// Walk visits files down to maxDepth subfolder levels (0 = unlimited).
	// It fails with ErrSourceUnavailable when the root cannot be listed.
	Walk(ctx context.Context, maxDepth int, visit VisitFunc) error
}

// FilesystemSource walks a go-billy filesystem.
type FilesystemSource struct {
	location string
	fs       billy.Filesystem
}

// NewLocalSource returns a source rooted at a directory on the local disk.
func NewLocalSource(root string) (*FilesystemSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve source root %q: %w", root, err)
	}
	return NewFilesystemSource(abs, osfs.New(abs)), nil
}

// NewFilesystemSource wraps fs, whose root corresponds to location.
func NewFilesystemSource(location string, fs billy.Filesystem) *FilesystemSource {
	return &FilesystemSource{location: location, fs: fs}
}

func (s *FilesystemSource) Location() string {
	return s.location
}

func (s *FilesystemSource) Walk(ctx context.Context, maxDepth int, visit VisitFunc) error {
	entries, err := s.readDir(".")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, s.location, err)
	}
	return s.walkEntries(ctx, ".", entries, 0, maxDepth, visit)
}

func (s *FilesystemSource) walkDir(ctx context.Context, dir string, depth, maxDepth int, visit VisitFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := s.readDir(dir)
	if err != nil {
		return visit(s.fullPath(dir), nil, err)
	}
	return s.walkEntries(ctx, dir, entries, depth, maxDepth, visit)
}

func (s *FilesystemSource) walkEntries(ctx context.Context, dir string, entries []os.FileInfo, depth, maxDepth int, visit VisitFunc) error {
	for _, fi := range entries {
		rel := s.fs.Join(dir, fi.Name())

		if fi.IsDir() {
			if maxDepth > 0 && depth+1 > maxDepth {
				continue
			}
			if err := s.walkDir(ctx, rel, depth+1, maxDepth, visit); err != nil {
				return err
			}
			continue
		}

		if !fi.Mode().IsRegular() {
			continue
		}

		full := s.fullPath(rel)
		entry := &Entry{
			Path:    full,
			Name:    fi.Name(),
			ModTime: fi.ModTime(),
			Size:    fi.Size(),
		}
		if err := visit(full, entry, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *FilesystemSource) readDir(dir string) ([]os.FileInfo, error) {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

func (s *FilesystemSource) fullPath(rel string) string {
	return filepath.Join(s.location, filepath.FromSlash(rel))
}
