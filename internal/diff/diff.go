// Package diff compares two inventory listings line by line.
package diff

import (
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ListingDelta is the difference between an old and a new path listing.
type ListingDelta struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	// Unified is the delta in unified diff form, without context lines.
	Unified    string     `json:"unified"`
	Stats      DeltaStats `json:"stats"`
	HasChanges bool       `json:"has_changes"`
}

// DeltaStats contains summary statistics about the delta
type DeltaStats struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
}

// CompareListings diffs two path listings. Order within each listing is
// ignored; both are sorted before comparison.
func CompareListings(oldPaths, newPaths []string) *ListingDelta {
	oldText := joinSorted(oldPaths)
	newText := joinSorted(newPaths)

	delta := &ListingDelta{}
	if oldText == newText {
		delta.Stats.Unchanged = len(oldPaths)
		return delta
	}
	delta.HasChanges = true

	dmp := diffmatchpatch.New()

	// Line mode keeps each path atomic.
	oldChars, newChars, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(oldChars, newChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var sb strings.Builder
	sb.WriteString("--- previous\n")
	sb.WriteString("+++ current\n")

	for _, d := range diffs {
		for _, line := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				delta.Stats.Unchanged++
			case diffmatchpatch.DiffDelete:
				delta.Removed = append(delta.Removed, line)
				delta.Stats.Removed++
				sb.WriteString("-" + line + "\n")
			case diffmatchpatch.DiffInsert:
				delta.Added = append(delta.Added, line)
				delta.Stats.Added++
				sb.WriteString("+" + line + "\n")
			}
		}
	}

	delta.Unified = sb.String()
	return delta
}

func joinSorted(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\n") + "\n"
}

// splitLines drops the empty element left by a trailing newline.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
