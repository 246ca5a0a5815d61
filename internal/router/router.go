// Package router implements a byte-trie path router.
//
// A path (e.g. "api/v1/users") is split at '/' into segments; each
// segment is matched against a node's children by scanning a single
// byte slice of concatenated segment keys, each terminated by a 0x00
// sentinel. This favors cache locality over hashing for the expected
// case of a handful of short, human-readable routes per node.
package router

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrNilByteInSegment is returned by AddPath when a path segment
// contains a 0x00 byte, which would corrupt the sentinel encoding
// used by matches.
var ErrNilByteInSegment = errors.New("router: path segment contains a nil byte")

// Endpoint is a handler registered under a path. Endpoints are owned
// by the router after registration and may be invoked concurrently
// from multiple worker goroutines; implementations must be safe for
// concurrent use (immutable after registration, or internally
// synchronized).
type Endpoint[T any, R any] interface {
	// UseStrictPathMatching reports whether the endpoint only fires on
	// an exact path match. A false return permits the endpoint to fire
	// on a matched prefix, receiving the tail of the path from the last
	// matched segment onward as PathOverload.
	UseStrictPathMatching() bool
	Process(info RoutedInfo[T]) R
}

// StrictMatch is embedded by endpoints that only want exact matches;
// it is also the zero-value default for any Endpoint implementation
// that forgets to declare one, since Go has no default interface
// methods.
type StrictMatch struct{}

// UseStrictPathMatching always returns true.
func (StrictMatch) UseStrictPathMatching() bool { return true }

// PrefixMatch is embedded by endpoints that want to receive partial
// matches with the tail of the path from the last matched segment.
type PrefixMatch struct{}

// UseStrictPathMatching always returns false.
func (PrefixMatch) UseStrictPathMatching() bool { return false }

// RoutedInfo is the value passed to an endpoint's Process method.
type RoutedInfo[T any] struct {
	// Data is the request-side payload; opaque to the router.
	Data T
	// PathOverload holds, as UTF-8 strings, the path segments from the
	// last matched segment (inclusive) to the end of the path whenever
	// a non-strict endpoint fires, including on a full match. Empty for
	// strict matches and fallback invocations.
	PathOverload []string
}

// node is an internal trie node. matches stores the concatenated byte
// keys of each child, each followed by a 0x00 sentinel; children is
// indexed 1:1 with the sentinels in matches.
type node[T any, R any] struct {
	endpoint Endpoint[T, R]
	matches  []byte
	children []*node[T, R]
}

// Router stores at most one endpoint per exact path and answers
// lookups by walking the trie one segment at a time.
type Router[T any, R any] struct {
	root     *node[T, R]
	fallback Endpoint[T, R]
}

// New returns an empty router.
func New[T any, R any]() *Router[T, R] {
	return &Router[T, R]{root: &node[T, R]{}}
}

// SetFallback installs the endpoint invoked when no route matches.
// It receives an empty PathOverload. A router without a fallback
// simply reports absence on a miss.
func (r *Router[T, R]) SetFallback(endpoint Endpoint[T, R]) {
	r.fallback = endpoint
}

// AddPath registers endpoint at path, overwriting any endpoint
// previously registered at that exact path. It returns
// ErrNilByteInSegment if any segment of path contains a 0x00 byte.
func (r *Router[T, R]) AddPath(path string, endpoint Endpoint[T, R]) error {
	segments, err := splitSegments(path)
	if err != nil {
		return err
	}

	current := r.root
	for _, segment := range segments {
		if idx, ok := findChildMatch(current.matches, segment); ok {
			current = current.children[idx]
			continue
		}

		current.matches = append(current.matches, segment...)
		current.matches = append(current.matches, 0)

		child := &node[T, R]{}
		current.children = append(current.children, child)
		current = child
	}

	current.endpoint = endpoint
	return nil
}

// Route walks path through the trie and, on success, invokes the
// matched endpoint's Process with data. It reports false only when no
// endpoint — neither a matched one nor a fallback — could be reached.
func (r *Router[T, R]) Route(path string, data T) (result R, ok bool) {
	segments, err := splitSegments(path)
	if err != nil {
		return r.routeFallback(data)
	}

	current := r.root
	failedToMatch := false
	lastMatchedIndex := -1

	for i, segment := range segments {
		idx, matched := findChildMatch(current.matches, segment)
		if !matched {
			failedToMatch = true
			break
		}
		lastMatchedIndex = i
		current = current.children[idx]
	}

	endpoint := current.endpoint
	if endpoint == nil {
		return r.routeFallback(data)
	}

	if endpoint.UseStrictPathMatching() {
		if failedToMatch {
			return r.routeFallback(data)
		}
		return endpoint.Process(RoutedInfo[T]{Data: data}), true
	}

	if lastMatchedIndex < 0 {
		return endpoint.Process(RoutedInfo[T]{Data: data}), true
	}

	overload := make([]string, len(segments)-lastMatchedIndex)
	for i, segment := range segments[lastMatchedIndex:] {
		overload[i] = string(segment)
	}
	return endpoint.Process(RoutedInfo[T]{Data: data, PathOverload: overload}), true
}

func (r *Router[T, R]) routeFallback(data T) (result R, ok bool) {
	if r.fallback == nil {
		return result, false
	}
	return r.fallback.Process(RoutedInfo[T]{Data: data}), true
}

// splitSegments splits path at '/' into byte segments, preserving
// empty segments produced by leading, trailing, or adjacent slashes —
// exactly strings.Split semantics, just byte-typed.
func splitSegments(path string) ([][]byte, error) {
	parts := strings.Split(path, "/")
	segments := make([][]byte, len(parts))
	for i, part := range parts {
		segment := []byte(part)
		if bytes.IndexByte(segment, 0) >= 0 {
			return nil, fmt.Errorf("router: segment %q: %w", part, ErrNilByteInSegment)
		}
		segments[i] = segment
	}
	return segments, nil
}

// findChildMatch scans matches for a child whose key equals path. It
// returns the child's index and true on a hit, or (0, false) on a
// miss. The scan walks matches and path in lock-step, byte by byte:
// a 0x00 in matches marks a child boundary, and a mismatched byte
// skips forward to the next boundary before resuming at path[0].
func findChildMatch(matches []byte, path []byte) (int, bool) {
	matchIndex := 0
	pathIndex := 0
	childIndex := 0

	for pathIndex <= len(path) && matchIndex < len(matches) {
		b := matches[matchIndex]

		if b == 0 {
			if pathIndex >= len(path) {
				return childIndex, true
			}
			matchIndex++
			pathIndex = 0
			childIndex++
			continue
		}

		if pathIndex >= len(path) || b != path[pathIndex] {
			for matchIndex < len(matches) {
				skipped := matches[matchIndex]
				matchIndex++
				if skipped == 0 {
					childIndex++
					break
				}
			}
			pathIndex = 0
			continue
		}

		matchIndex++
		pathIndex++
	}

	return 0, false
}
