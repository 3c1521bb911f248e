package model

import "strings"

// Path is a sequence of opaque byte segments, used as the key space of an
// Origin (spec §3.1). Equality is byte-exact. Paths are cheap to clone
// since the segment slice is treated as immutable once constructed.
type Path struct {
	segments []string
}

// NewPath builds a Path from explicit segments.
func NewPath(segments ...string) Path {
	cp := make([]string, len(segments))
	copy(cp, segments)
	return Path{segments: cp}
}

// ParsePath splits a "/"-delimited string into a Path, discarding empty
// leading/trailing segments (so "/room/a/" and "room/a" parse the same).
func ParsePath(s string) Path {
	s = strings.Trim(s, "/")
	if s == "" {
		return Path{}
	}
	return NewPath(strings.Split(s, "/")...)
}

// Segments returns the path's segments; the returned slice must not be mutated.
func (p Path) Segments() []string { return p.segments }

// Len returns the number of segments.
func (p Path) Len() int { return len(p.segments) }

// Empty reports whether the path has no segments.
func (p Path) Empty() bool { return len(p.segments) == 0 }

// String renders the path "/"-joined, for logging.
func (p Path) String() string { return strings.Join(p.segments, "/") }

// Equal reports byte-exact equality.
func (p Path) Equal(other Path) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i, s := range p.segments {
		if s != other.segments[i] {
			return false
		}
	}
	return true
}

// Join appends other's segments after p's, returning a new Path.
func (p Path) Join(other Path) Path {
	out := make([]string, 0, len(p.segments)+len(other.segments))
	out = append(out, p.segments...)
	out = append(out, other.segments...)
	return Path{segments: out}
}

// HasPrefix reports whether prefix's segments are a prefix of p's segments.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix.segments) > len(p.segments) {
		return false
	}
	for i, s := range prefix.segments {
		if p.segments[i] != s {
			return false
		}
	}
	return true
}

// StripPrefix removes prefix from the front of p, reporting false if p does
// not have prefix as a prefix.
func (p Path) StripPrefix(prefix Path) (Path, bool) {
	if !p.HasPrefix(prefix) {
		return Path{}, false
	}
	rest := make([]string, len(p.segments)-len(prefix.segments))
	copy(rest, p.segments[len(prefix.segments):])
	return Path{segments: rest}, true
}
