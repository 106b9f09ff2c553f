// Package inventory discovers candidate data files under a source location and
// keeps a versioned snapshot of them on disk so later runs can skip the walk.
package inventory

import (
	"time"
)

// FileRecord is one discovered file. Records are immutable once built.
type FileRecord struct {
	FullPath   string    `json:"full_path"`
	Filename   string    `json:"filename"`
	MarketDate time.Time `json:"market_date"`
	// Extra is carried through the cache but not interpreted. It holds the size in bytes.
	Extra string `json:"extra,omitempty"`
}

// MarketDateString formats the market date as YYYY-MM-DD.
func (r FileRecord) MarketDateString() string {
	return r.MarketDate.Format(time.DateOnly)
}

// Snapshot is an ordered inventory plus the provenance it was built with.
// A rebuild replaces the whole snapshot.
type Snapshot struct {
	SourceRoot string       `json:"source_root"`
	BuiltAt    time.Time    `json:"built_at"`
	MaxDepth   int          `json:"max_depth"`
	Records    []FileRecord `json:"records"`
}

// Len returns the number of records.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Paths returns the full paths of all records in snapshot order.
func (s *Snapshot) Paths() []string {
	if s == nil {
		return nil
	}
	paths := make([]string, len(s.Records))
	for i, r := range s.Records {
		paths[i] = r.FullPath
	}
	return paths
}
