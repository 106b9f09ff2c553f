package store

import (
	"strconv"
	"strings"
)

// rebind rewrites ? placeholders into the driver's native form. Question
// marks inside single-quoted literals are left alone.
func rebind(driver, query string) string {
	var prefix string
	switch driver {
	case "pgx":
		prefix = "$"
	case "sqlserver":
		prefix = "@p"
	default:
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 16)

	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			sb.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			sb.WriteString(prefix)
			sb.WriteString(strconv.Itoa(n))
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// countPlaceholders counts ? placeholders outside single-quoted literals.
func countPlaceholders(query string) int {
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case r == '?' && !inQuote:
			n++
		}
	}
	return n
}
