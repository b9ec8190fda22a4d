package core

import (
	"os"
	"strings"
)

// Separator joins path segments into a backend key.
const Separator = "/"

// Path is an ordered sequence of segments identifying a blob.
type Path []string

// P builds a Path from segments.
func P(segments ...string) Path { return Path(segments) }

// ParsePath splits a slash-delimited key into a Path. Leading and trailing
// slashes are ignored; an empty string yields an empty Path.
func ParsePath(key string) Path {
	key = strings.Trim(key, Separator)
	if key == "" {
		return Path{}
	}
	return Path(strings.Split(key, Separator))
}

// Key joins the segments with Separator. Empty paths and empty segments are invalid.
func (p Path) Key() (string, error) {
	if len(p) == 0 {
		return "", E(KindInvalidArgument, "", "path is empty", nil)
	}
	for _, seg := range p {
		if seg == "" {
			return "", E(KindInvalidArgument, "", "path contains an empty segment", nil)
		}
	}
	return strings.Join(p, Separator), nil
}

// String returns the joined key without validation.
func (p Path) String() string { return strings.Join(p, Separator) }

// Single returns the only segment of a one-segment path.
func (p Path) Single() (string, error) {
	key, err := p.Key()
	if err != nil {
		return "", err
	}
	if len(p) != 1 {
		return "", E(KindInvalidArgument, "", "path is longer than one element, currently not supported", nil)
	}
	return key, nil
}

// FileName returns the single segment after verifying it is safe to use as a
// file name directly under a managed root: no separators, no "..", no NUL.
func (p Path) FileName() (string, error) {
	name, err := p.Single()
	if err != nil {
		return "", err
	}
	switch {
	case name == ".":
		return "", E(KindInvalidArgument, "", "invalid file name '.'", nil)
	case strings.Contains(name, ".."):
		return "", E(KindInvalidArgument, "", "invalid key contains '..'", nil)
	case strings.ContainsAny(name, "/\\\x00"), strings.ContainsRune(name, os.PathSeparator):
		return "", E(KindInvalidArgument, "", "invalid key contains a path separator", nil)
	}
	return name, nil
}
