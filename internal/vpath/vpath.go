// Package vpath implements the canonical virtual path used for all
// cross-node path traffic: @/<volume>/<segment>/…. It has no notion of
// the host filesystem — no "." or ".." collapsing, no drive letters — only
// an ordered sequence of opaque segments, the first of which names a
// volume.
package vpath

import (
	"strings"

	"github.com/michael-0acf4/null.fs/internal/nodeerrors"
)

const prefix = "@"

// VPath is an ordered sequence of path segments. The zero value is not a
// valid path; construct one with FromText or Extend.
type VPath struct {
	segments []string
}

// FromText parses a string of the form "@/s1/s2/…". The first segment
// must be present and the string must begin with the "@" marker.
func FromText(s string) (VPath, error) {
	if s == "" {
		return VPath{}, nodeerrors.ErrEmptyPath
	}
	if !strings.HasPrefix(s, prefix) {
		return VPath{}, nodeerrors.ErrMissingAtPrefix
	}
	rest := strings.TrimPrefix(s, prefix)
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		return VPath{}, nodeerrors.ErrEmptyPath
	}
	return VPath{segments: strings.Split(rest, "/")}, nil
}

// FromRelative builds the segment list for a host-relative path, e.g.
// "a/b/c" becomes ["a", "b", "c"]. An absolute host path is rejected: the
// caller is expected to have already stripped a backend's root.
func FromRelative(hostRelativePath string) ([]string, error) {
	cleaned := filepathToSlash(hostRelativePath)
	if cleaned == "" {
		return nil, nil
	}
	if strings.HasPrefix(cleaned, "/") {
		return nil, nodeerrors.ErrBadPrefix
	}
	if len(cleaned) >= 2 && cleaned[1] == ':' {
		// Drive-letter absolute path, e.g. "C:/a/b".
		return nil, nodeerrors.ErrBadPrefix
	}
	return strings.Split(cleaned, "/"), nil
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// VolumeName returns the first segment, which names the volume.
func (p VPath) VolumeName() (string, error) {
	if len(p.segments) == 0 {
		return "", nodeerrors.ErrEmptyPath
	}
	return p.segments[0], nil
}

// Segments returns the raw segment list. Callers must not mutate the
// returned slice.
func (p VPath) Segments() []string {
	return p.segments
}

// Extend returns a new VPath with the given segments appended.
func (p VPath) Extend(segments ...string) VPath {
	out := make([]string, 0, len(p.segments)+len(segments))
	out = append(out, p.segments...)
	out = append(out, segments...)
	return VPath{segments: out}
}

// ExtendFromRelative extends p with the segments of a host-relative path.
func (p VPath) ExtendFromRelative(hostPath string) (VPath, error) {
	segs, err := FromRelative(hostPath)
	if err != nil {
		return VPath{}, err
	}
	return p.Extend(segs...), nil
}

// Base returns the last segment (the file or directory name).
func (p VPath) Base() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// Extension returns the suffix after the last "." of the last segment,
// lower-cased, or "" if there is none.
func (p VPath) Extension() (string, bool) {
	base := p.Base()
	i := strings.LastIndex(base, ".")
	if i < 0 || i == len(base)-1 {
		return "", false
	}
	return strings.ToLower(base[i+1:]), true
}

// String returns the display form, "@/s1/s2/…", which is also p's
// serialization.
func (p VPath) String() string {
	if len(p.segments) == 0 {
		return prefix
	}
	return prefix + "/" + strings.Join(p.segments, "/")
}

// Equal reports whether p and q name the same sequence of segments.
func (p VPath) Equal(q VPath) bool {
	if len(p.segments) != len(q.segments) {
		return false
	}
	for i := range p.segments {
		if p.segments[i] != q.segments[i] {
			return false
		}
	}
	return true
}

// MarshalJSON serializes to the display form.
func (p VPath) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// UnmarshalJSON delegates to FromText, propagating parse errors.
func (p *VPath) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := FromText(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
