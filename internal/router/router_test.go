package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEndpoint records every RoutedInfo it was called with and
// returns a fixed result, so tests can assert both invocation and the
// overload it received.
type recordingEndpoint struct {
	StrictMatch
	strict bool
	calls  []RoutedInfo[string]
	result string
}

func (e *recordingEndpoint) UseStrictPathMatching() bool { return e.strict }

func (e *recordingEndpoint) Process(info RoutedInfo[string]) string {
	e.calls = append(e.calls, info)
	return e.result
}

func newEndpoint(strict bool, result string) *recordingEndpoint {
	return &recordingEndpoint{strict: strict, result: result}
}

func TestRouterRoundTrip(t *testing.T) {
	r := New[string, string]()

	paths := map[string]*recordingEndpoint{
		"a/b/c":     newEndpoint(true, "abc"),
		"a/b/d":     newEndpoint(true, "abd"),
		"x":         newEndpoint(true, "x"),
		"":          newEndpoint(true, "root"),
		"a/b/c/d/e": newEndpoint(true, "deep"),
	}

	for path, ep := range paths {
		require.NoError(t, r.AddPath(path, ep))
	}

	for path, ep := range paths {
		result, ok := r.Route(path, "data")
		require.True(t, ok, "path %q should match", path)
		assert.Equal(t, ep.result, result)
		assert.Len(t, ep.calls, 1)
	}
}

func TestRouterLastWriteWins(t *testing.T) {
	r := New[string, string]()
	first := newEndpoint(true, "first")
	second := newEndpoint(true, "second")

	require.NoError(t, r.AddPath("a/b", first))
	require.NoError(t, r.AddPath("a/b", second))

	result, ok := r.Route("a/b", "x")
	require.True(t, ok)
	assert.Equal(t, "second", result)
	assert.Empty(t, first.calls)
	assert.Len(t, second.calls, 1)
}

func TestRouterStrictRejectsPartialMatch(t *testing.T) {
	r := New[string, string]()
	strict := newEndpoint(true, "strict")
	require.NoError(t, r.AddPath("A/B", strict))

	_, ok := r.Route("A/B/C/D", "x")
	assert.False(t, ok)
	assert.Empty(t, strict.calls)
}

func TestRouterNonStrictReceivesOverload(t *testing.T) {
	r := New[string, string]()
	nonStrict := &recordingEndpoint{strict: false, result: "prefix"}
	require.NoError(t, r.AddPath("A/B", nonStrict))

	result, ok := r.Route("A/B/C/D", "x")
	require.True(t, ok)
	assert.Equal(t, "prefix", result)
	require.Len(t, nonStrict.calls, 1)
	assert.Equal(t, []string{"B", "C", "D"}, nonStrict.calls[0].PathOverload)
}

func TestRouterPrefixMatchExample(t *testing.T) {
	// Mirrors spec.md §8 scenario 6.
	r := New[string, string]()
	apiV1 := &recordingEndpoint{strict: false, result: "v1"}
	require.NoError(t, r.AddPath("/api/v1", apiV1))

	result, ok := r.Route("/api/v1/users/42", "x")
	require.True(t, ok)
	assert.Equal(t, "v1", result)
	require.Len(t, apiV1.calls, 1)
	assert.Equal(t, []string{"v1", "users", "42"}, apiV1.calls[0].PathOverload)
}

func TestRouterNoMatchNoFallback(t *testing.T) {
	r := New[string, string]()
	require.NoError(t, r.AddPath("a", newEndpoint(true, "a")))

	_, ok := r.Route("missing", "x")
	assert.False(t, ok)
}

func TestRouterFallbackInvokedOnMiss(t *testing.T) {
	r := New[string, string]()
	fallback := newEndpoint(true, "404")
	r.SetFallback(fallback)

	result, ok := r.Route("nowhere", "x")
	require.True(t, ok)
	assert.Equal(t, "404", result)
	require.Len(t, fallback.calls, 1)
	assert.Empty(t, fallback.calls[0].PathOverload)
}

func TestRouterFallbackInvokedOnStrictRejection(t *testing.T) {
	r := New[string, string]()
	strict := newEndpoint(true, "strict")
	fallback := newEndpoint(true, "404")
	require.NoError(t, r.AddPath("A/B", strict))
	r.SetFallback(fallback)

	result, ok := r.Route("A/B/C", "x")
	require.True(t, ok)
	assert.Equal(t, "404", result)
	assert.Empty(t, strict.calls)
	assert.Len(t, fallback.calls, 1)
}

func TestRouterEmptyPathIsRootSegment(t *testing.T) {
	r := New[string, string]()
	root := newEndpoint(true, "root")
	require.NoError(t, r.AddPath("", root))

	result, ok := r.Route("", "x")
	require.True(t, ok)
	assert.Equal(t, "root", result)
}

func TestRouterRejectsNilByteInSegment(t *testing.T) {
	r := New[string, string]()
	err := r.AddPath("a/b\x00c", newEndpoint(true, "x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNilByteInSegment)
}

func TestRouterChildKeyUniqueness(t *testing.T) {
	r := New[string, string]()
	require.NoError(t, r.AddPath("a/b", newEndpoint(true, "ab")))
	require.NoError(t, r.AddPath("a/c", newEndpoint(true, "ac")))
	require.NoError(t, r.AddPath("a/b", newEndpoint(true, "ab2"))) // overwrite, not a new child

	// "a" node should have exactly 2 children (b, c), not 3.
	node := r.root
	idx, ok := findChildMatch(node.matches, []byte("a"))
	require.True(t, ok)
	aNode := node.children[idx]

	zeroCount := 0
	for _, b := range aNode.matches {
		if b == 0 {
			zeroCount++
		}
	}
	assert.Equal(t, len(aNode.children), zeroCount)
	assert.Len(t, aNode.children, 2)
}

func TestFindChildMatchMiss(t *testing.T) {
	matches := []byte("foo\x00bar\x00")
	_, ok := findChildMatch(matches, []byte("baz"))
	assert.False(t, ok)
}

func TestFindChildMatchHitSecondChild(t *testing.T) {
	matches := []byte("foo\x00bar\x00")
	idx, ok := findChildMatch(matches, []byte("bar"))
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestFindChildMatchPrefixOfAnotherKeyIsNotAMatch(t *testing.T) {
	matches := []byte("foobar\x00")
	_, ok := findChildMatch(matches, []byte("foo"))
	assert.False(t, ok)
}
