package inventory

import (
	"fmt"
	"strings"
	"time"
)

// DatePolicy decides how a file's market date is derived. It is fixed per run.
type DatePolicy string

const (
	// DateFromFilename uses the first 8-digit token in the base name that is a
	// valid YYYYMMDD date. Files without one are not candidates.
	DateFromFilename DatePolicy = "filename"
	// DateFromModTime uses the UTC calendar date of the last modification.
	DateFromModTime DatePolicy = "modtime"
)

// ParseDatePolicy maps a configuration value onto a policy.
func ParseDatePolicy(s string) (DatePolicy, error) {
	switch DatePolicy(strings.ToLower(s)) {
	case "", DateFromFilename:
		return DateFromFilename, nil
	case DateFromModTime:
		return DateFromModTime, nil
	default:
		return "", fmt.Errorf("unknown market date source %q", s)
	}
}

// MarketDate derives the date for e. The bool is false when no date can be derived.
func (p DatePolicy) MarketDate(e Entry) (time.Time, bool) {
	switch p {
	case DateFromModTime:
		if e.ModTime.IsZero() {
			return time.Time{}, false
		}
		y, m, d := e.ModTime.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	default:
		return dateFromName(e.Name)
	}
}

func dateFromName(name string) (time.Time, bool) {
	for _, token := range digitRuns(name) {
		if len(token) != 8 {
			continue
		}
		t, err := time.Parse("20060102", token)
		if err != nil || t.Year() < 1900 {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

func digitRuns(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r < '0' || r > '9' })
}
