package scanner

import (
	"bufio"
	"os"
	"path"
	"strings"
)

// IgnorePattern is one line of a gitignore-style ignore file.
type IgnorePattern struct {
	raw      string
	negate   bool
	dirOnly  bool
	anchored bool
	segments []string
}

// ParseIgnorePattern parses a gitignore-style pattern string.
func ParseIgnorePattern(line string) IgnorePattern {
	p := IgnorePattern{raw: line}
	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	}
	// A slash in the middle anchors the pattern as well.
	if strings.Contains(line, "/") {
		p.anchored = true
	}
	p.segments = strings.Split(line, "/")
	return p
}

// IsNegation reports whether the pattern re-includes what it matches.
func (p IgnorePattern) IsNegation() bool {
	return p.negate
}

func (p IgnorePattern) String() string {
	return p.raw
}

// Match reports whether rel, a slash-separated path relative to the scan
// root, is matched. isDir tells whether rel names a directory; files below
// a matched directory are matched too.
func (p IgnorePattern) Match(rel string, isDir bool) bool {
	segs := strings.Split(rel, "/")

	// Match the pattern against every prefix of the path so that a matched
	// directory covers its contents.
	for end := len(segs); end >= 1; end-- {
		prefixIsDir := isDir || end < len(segs)
		if p.dirOnly && !prefixIsDir {
			continue
		}
		prefix := segs[:end]
		if p.anchored {
			if matchSegments(p.segments, prefix) {
				return true
			}
			continue
		}
		for start := 0; start < len(prefix); start++ {
			if matchSegments(p.segments, prefix[start:]) {
				return true
			}
		}
	}
	return false
}

// matchSegments matches pattern segments, where "**" spans any number of
// path segments, against the whole of segs.
func matchSegments(pattern, segs []string) bool {
	if len(pattern) == 0 {
		return len(segs) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pattern[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], segs[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], segs[1:])
}

// readIgnoreFile loads the patterns in file; a missing file yields none.
func readIgnoreFile(file string) ([]IgnorePattern, error) {
	f, err := os.Open(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var patterns []IgnorePattern
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, ParseIgnorePattern(line))
	}
	return patterns, sc.Err()
}
