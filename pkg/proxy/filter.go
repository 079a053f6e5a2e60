package proxy

import (
	"strings"
)

// PathFilter is the static allow-list of upstream path prefixes
type PathFilter struct {
	allowed []string
}

func NewPathFilter(paths []string) *PathFilter {
	allowed := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		if len(p) > 1 {
			p = strings.TrimSuffix(p, "/")
		}
		allowed = append(allowed, p)
	}
	return &PathFilter{allowed: allowed}
}

// Allowed reports whether path equals an allowed prefix or sits beneath one.
// Paths with dot segments are never allowed since the upstream may resolve
// them outside the prefix.
func (f *PathFilter) Allowed(path string) bool {
	if hasDotSegment(path) {
		return false
	}
	for _, prefix := range f.allowed {
		if prefix == "/" || path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func (f *PathFilter) Paths() []string {
	return append([]string(nil), f.allowed...)
}

func hasDotSegment(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}
