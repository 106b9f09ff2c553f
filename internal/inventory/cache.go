package inventory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/fileevent-populator/internal/diff"
)

// SchemaVersion is bumped whenever cacheRow or the metadata keys change.
const SchemaVersion = 1

const (
	metaSchemaVersion = "fileevent.schema_version"
	metaSourceRoot    = "fileevent.source_root"
	metaBuiltAt       = "fileevent.built_at"
	metaMaxDepth      = "fileevent.max_depth"
)

// ErrCacheLoad marks every failure to reuse a cache artifact.
var ErrCacheLoad = errors.New("cache load failed")

// SchemaMismatchError is returned when an artifact was written with another schema.
type SchemaMismatchError struct {
	Found string
	Want  string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("cache schema mismatch: found %q, want %q", e.Found, e.Want)
}

func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrCacheLoad
}

type cacheRow struct {
	FullPath   string `parquet:"full_path"`
	Filename   string `parquet:"filename"`
	MarketDate string `parquet:"market_date"`
	Extra      string `parquet:"extra"`
}

// Save writes snap to path. The artifact is written to a temporary file in the
// same directory and renamed into place, so a failed save leaves any previous
// artifact untouched.
func Save(snap *Snapshot, path string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache folder %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	writer := parquet.NewGenericWriter[cacheRow](tmp,
		parquet.Compression(&parquet.Zstd),
		parquet.KeyValueMetadata(metaSchemaVersion, strconv.Itoa(SchemaVersion)),
		parquet.KeyValueMetadata(metaSourceRoot, snap.SourceRoot),
		parquet.KeyValueMetadata(metaBuiltAt, snap.BuiltAt.UTC().Format(time.RFC3339Nano)),
		parquet.KeyValueMetadata(metaMaxDepth, strconv.Itoa(snap.MaxDepth)),
	)

	rows := make([]cacheRow, len(snap.Records))
	for i, r := range snap.Records {
		rows[i] = cacheRow{
			FullPath:   r.FullPath,
			Filename:   r.Filename,
			MarketDate: r.MarketDateString(),
			Extra:      r.Extra,
		}
	}

	if _, err = writer.Write(rows); err != nil {
		_ = writer.Close()
		return fmt.Errorf("write cache rows: %w", err)
	}
	if err = writer.Close(); err != nil {
		return fmt.Errorf("close cache writer: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync cache file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace cache file %s: %w", path, err)
	}
	return nil
}

// Load reads a snapshot written by Save. Every error it returns matches ErrCacheLoad.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheLoad, err)
	}

	pqFile, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrCacheLoad, path, err)
	}

	version, _ := pqFile.Lookup(metaSchemaVersion)
	if version != strconv.Itoa(SchemaVersion) {
		return nil, &SchemaMismatchError{Found: version, Want: strconv.Itoa(SchemaVersion)}
	}
	if err := checkColumns(pqFile.Schema()); err != nil {
		return nil, err
	}

	snap := &Snapshot{}
	snap.SourceRoot, _ = pqFile.Lookup(metaSourceRoot)
	if v, ok := pqFile.Lookup(metaBuiltAt); ok {
		if snap.BuiltAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("%w: built_at %q: %v", ErrCacheLoad, v, err)
		}
	}
	if v, ok := pqFile.Lookup(metaMaxDepth); ok {
		if snap.MaxDepth, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("%w: max_depth %q: %v", ErrCacheLoad, v, err)
		}
	}

	reader := parquet.NewGenericReader[cacheRow](pqFile)
	defer reader.Close()

	seen := make(map[string]struct{})
	batch := make([]cacheRow, 256)
	for {
		n, readErr := reader.Read(batch)
		for _, row := range batch[:n] {
			record, err := row.record()
			if err != nil {
				return nil, err
			}
			if _, dup := seen[record.FullPath]; dup {
				return nil, fmt.Errorf("%w: duplicate path %s", ErrCacheLoad, record.FullPath)
			}
			seen[record.FullPath] = struct{}{}
			snap.Records = append(snap.Records, record)
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: read rows: %v", ErrCacheLoad, readErr)
		}
	}

	return snap, nil
}

func (r cacheRow) record() (FileRecord, error) {
	date, err := time.Parse(time.DateOnly, r.MarketDate)
	if err != nil {
		return FileRecord{}, fmt.Errorf("%w: market_date %q for %s", ErrCacheLoad, r.MarketDate, r.FullPath)
	}
	return FileRecord{
		FullPath:   r.FullPath,
		Filename:   r.Filename,
		MarketDate: date,
		Extra:      r.Extra,
	}, nil
}

func checkColumns(schema *parquet.Schema) error {
	want := parquet.SchemaOf(cacheRow{}).Fields()
	got := schema.Fields()
	if len(got) != len(want) {
		return &SchemaMismatchError{Found: columnList(got), Want: columnList(want)}
	}
	for i := range want {
		if got[i].Name() != want[i].Name() {
			return &SchemaMismatchError{Found: columnList(got), Want: columnList(want)}
		}
	}
	return nil
}

func columnList(fields []parquet.Field) string {
	var buf bytes.Buffer
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(f.Name())
	}
	return buf.String()
}

// Cache owns the snapshot for one data file type and its on-disk artifact.
type Cache struct {
	source   Source
	path     string
	opts     BuildOptions
	logger   zerolog.Logger
	snapshot *Snapshot
	reused   bool
}

// NewCache returns a cache for src persisted at path.
func NewCache(src Source, path string, opts BuildOptions, logger zerolog.Logger) *Cache {
	opts.Logger = logger
	return &Cache{
		source: src,
		path:   path,
		opts:   opts,
		logger: logger.With().Str("component", "InventoryCache").Str("cache_file", path).Logger(),
	}
}

// Path returns the artifact location.
func (c *Cache) Path() string {
	return c.path
}

// Snapshot returns the current snapshot, nil before Build or Load.
func (c *Cache) Snapshot() *Snapshot {
	return c.snapshot
}

// Reused reports whether the current snapshot came from the artifact.
func (c *Cache) Reused() bool {
	return c.reused
}

// Build walks the source and replaces the current snapshot.
func (c *Cache) Build(ctx context.Context) error {
	snap, err := Build(ctx, c.source, c.opts)
	if err != nil {
		return err
	}
	c.snapshot = snap
	c.reused = false
	return nil
}

// Save persists the current snapshot.
func (c *Cache) Save() error {
	if c.snapshot == nil {
		return errors.New("no snapshot to save")
	}
	if err := Save(c.snapshot, c.path); err != nil {
		return err
	}
	c.logger.Info().Int("files", c.snapshot.Len()).Msg("Inventory cache saved")
	return nil
}

// Load replaces the current snapshot with the artifact's. A missing, corrupt or
// incompatible artifact, or one built for another root or depth, returns false
// and leaves the current snapshot unchanged.
func (c *Cache) Load() bool {
	snap, err := Load(c.path)
	if err != nil {
		var mismatch *SchemaMismatchError
		switch {
		case errors.Is(err, os.ErrNotExist):
			c.logger.Info().Msg("No inventory cache found")
		case errors.As(err, &mismatch):
			c.logger.Warn().Err(err).Msg("Inventory cache schema is incompatible")
		default:
			c.logger.Warn().Err(err).Msg("Inventory cache is unreadable")
		}
		return false
	}

	if snap.SourceRoot != c.source.Location() || snap.MaxDepth != c.opts.MaxDepth {
		c.logger.Warn().
			Str("cached_root", snap.SourceRoot).
			Int("cached_depth", snap.MaxDepth).
			Msg("Inventory cache was built for another source, ignoring it")
		return false
	}

	c.snapshot = snap
	c.reused = true
	c.logger.Info().
		Int("files", snap.Len()).
		Time("built_at", snap.BuiltAt).
		Msg("Inventory cache loaded")
	return true
}

// LoadOrBuild reuses the artifact when useCached is set and it loads cleanly,
// otherwise rebuilds and saves. A failed save is logged and does not fail the run.
func (c *Cache) LoadOrBuild(ctx context.Context, useCached bool) (*Snapshot, error) {
	if useCached && c.Load() {
		return c.snapshot, nil
	}

	previous, prevErr := Load(c.path)

	if err := c.Build(ctx); err != nil {
		return nil, err
	}

	if prevErr == nil {
		delta := diff.CompareListings(previous.Paths(), c.snapshot.Paths())
		if delta.HasChanges {
			c.logger.Info().
				Int("added", delta.Stats.Added).
				Int("removed", delta.Stats.Removed).
				Int("unchanged", delta.Stats.Unchanged).
				Msg("Inventory changed since last build")
			c.logger.Debug().Msg("Inventory delta:\n" + delta.Unified)
		} else {
			c.logger.Info().Msg("Inventory unchanged since last build")
		}
	}

	if err := c.Save(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to save inventory cache")
	}
	return c.snapshot, nil
}
