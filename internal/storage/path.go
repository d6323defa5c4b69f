package storage

import (
	"strings"

	"shardwork/internal/errors"
)

const schemeSep = "://"

// rootSegment marks an absolute path in the segment list returned by Split.
const rootSegment = "/"

// Split breaks p into its scheme ("" for bare local paths) and its non-empty
// segments. Absolute paths start with the "/" root segment.
func Split(p string) (scheme string, segments []string) {
	rest := p
	if i := strings.Index(p, schemeSep); i >= 0 {
		scheme, rest = p[:i], p[i+len(schemeSep):]
	}
	if strings.HasPrefix(rest, "/") {
		segments = append(segments, rootSegment)
	}
	for _, s := range strings.Split(rest, "/") {
		if s != "" && s != "." {
			segments = append(segments, s)
		}
	}
	return scheme, segments
}

// Join assembles a path from a scheme and segments. Segments may themselves
// contain slashes; a leading "/" on the first segment makes the path absolute.
func Join(scheme string, segments ...string) string {
	root := false
	parts := make([]string, 0, len(segments))
	for i, s := range segments {
		if i == 0 && strings.HasPrefix(s, "/") {
			root = true
		}
		for _, part := range strings.Split(s, "/") {
			if part != "" && part != "." {
				parts = append(parts, part)
			}
		}
	}

	body := strings.Join(parts, "/")
	if root {
		body = "/" + body
	}
	if scheme != "" {
		return scheme + schemeSep + body
	}
	return body
}

// AddSuffix appends the relative path rel to prefix, keeping prefix's scheme.
func AddSuffix(prefix, rel string) string {
	scheme, segments := Split(prefix)
	_, relSegments := Split(rel)
	for _, s := range relSegments {
		if s != rootSegment {
			segments = append(segments, s)
		}
	}
	return Join(scheme, segments...)
}

// Parent returns the path without its final segment.
func Parent(p string) string {
	scheme, segments := Split(p)
	switch {
	case len(segments) == 0:
		return Join(scheme)
	case len(segments) == 1 && segments[0] == rootSegment:
		return Join(scheme, rootSegment)
	default:
		return Join(scheme, segments[:len(segments)-1]...)
	}
}

// Base returns the final segment of p.
func Base(p string) string {
	_, segments := Split(p)
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// RelativeTo computes the longest common segment prefix of paths and each path
// relative to it. Every relative path keeps at least one segment, so a single
// path yields its parent as prefix. All paths must share a scheme.
func RelativeTo(paths []string) (string, []string, error) {
	if len(paths) == 0 {
		return "", nil, errors.New("cannot compute a common prefix of zero paths")
	}

	scheme, first := Split(paths[0])
	split := make([][]string, len(paths))
	common := len(first) - 1

	for i, p := range paths {
		s, segments := Split(p)
		if s != scheme {
			return "", nil, errors.Newf("paths have different schemes: %q and %q", paths[0], p)
		}
		split[i] = segments
		common = min(common, len(segments)-1)
		for j := 0; j < common; j++ {
			if segments[j] != first[j] {
				common = j
				break
			}
		}
	}
	common = max(common, 0)

	rels := make([]string, len(paths))
	for i, segments := range split {
		rest := segments[common:]
		if len(rest) > 1 && rest[0] == rootSegment {
			rest = rest[1:]
		}
		rels[i] = strings.Join(rest, "/")
	}
	return Join(scheme, first[:common]...), rels, nil
}

// HasGlob reports whether p contains glob wildcards.
func HasGlob(p string) bool {
	return strings.ContainsAny(p, "*?[")
}
