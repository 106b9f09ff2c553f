// Package classifier maps data file names to DataFileTypeId values.
package classifier

import "regexp"

// TypeID identifies a logical data file type in the event store.
type TypeID int

// Known type codes, captured by the second group of the filename pattern.
var typeCodes = map[string]TypeID{
	"IRS": 1,
	"OIS": 2,
	"BS":  3,
}

// Classifier holds a compiled filename pattern.
type Classifier struct {
	pattern *regexp.Regexp
}

// New compiles pattern, anchoring it at the start of the filename.
func New(pattern string) (*Classifier, error) {
	re, err := regexp.Compile(anchor(pattern))
	if err != nil {
		return nil, err
	}
	return &Classifier{pattern: re}, nil
}

// Classify returns the type id for filename, or false when the name does not
// match the pattern, the pattern has no second group, or the code is unknown.
func (c *Classifier) Classify(filename string) (TypeID, bool) {
	m := c.pattern.FindStringSubmatch(filename)
	if len(m) < 3 {
		return 0, false
	}
	id, ok := typeCodes[m[2]]
	return id, ok
}

// Pattern returns the anchored expression in use.
func (c *Classifier) Pattern() string {
	return c.pattern.String()
}

// Classify is the one-shot form of Classifier.Classify. An invalid pattern
// classifies nothing.
func Classify(filename, pattern string) (TypeID, bool) {
	c, err := New(pattern)
	if err != nil {
		return 0, false
	}
	return c.Classify(filename)
}

// anchor ties every alternative of pattern to the start of the name. A
// leading ^ inside the group is redundant but harmless.
func anchor(pattern string) string {
	return "^(?:" + pattern + ")"
}
