package inventory

import (
	"context"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// BuildOptions controls a snapshot build.
type BuildOptions struct {
	// MaxDepth limits how many subfolder levels are entered; 0 means unlimited.
	MaxDepth int
	Policy   DatePolicy
	// Patterns restricts candidates to base names matching any glob; empty means all files.
	Patterns []string
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Build walks src and returns a fresh snapshot. Unreadable subfolders are
// logged and skipped; only an unreadable root fails the build.
func Build(ctx context.Context, src Source, opts BuildOptions) (*Snapshot, error) {
	logger := opts.Logger.With().Str("component", "InventoryBuilder").Str("source", src.Location()).Logger()
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	started := time.Now()
	snapshot := &Snapshot{
		SourceRoot: src.Location(),
		BuiltAt:    now().UTC(),
		MaxDepth:   opts.MaxDepth,
	}

	seen := make(map[string]struct{})
	skippedDirs, undated := 0, 0

	err := src.Walk(ctx, opts.MaxDepth, func(path string, entry *Entry, err error) error {
		if err != nil {
			skippedDirs++
			logger.Warn().Err(err).Str("directory", path).Msg("Skipping unreadable subfolder")
			return nil
		}

		if !matchesPatterns(entry.Name, opts.Patterns) {
			return nil
		}

		if _, dup := seen[entry.Path]; dup {
			return nil
		}

		marketDate, ok := opts.Policy.MarketDate(*entry)
		if !ok {
			undated++
			logger.Debug().Str("file", entry.Path).Msg("No market date derivable, not a candidate")
			return nil
		}

		seen[entry.Path] = struct{}{}
		snapshot.Records = append(snapshot.Records, FileRecord{
			FullPath:   entry.Path,
			Filename:   entry.Name,
			MarketDate: marketDate,
			Extra:      strconv.FormatInt(entry.Size, 10),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int("files", len(snapshot.Records)).
		Int("skipped_dirs", skippedDirs).
		Int("undated", undated).
		Int("max_depth", opts.MaxDepth).
		Dur("elapsed", time.Since(started)).
		Msg("Inventory built")

	return snapshot, nil
}

// matchesPatterns checks if a file name matches any of the configured patterns
func matchesPatterns(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}

	for _, pattern := range patterns {
		matched, err := filepath.Match(pattern, name)
		if err == nil && matched {
			return true
		}
	}

	return false
}
