package httpserver

import (
	"bufio"
	"net"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoserve/nanoserve/internal/router"
)

// countingEndpoint is a strict endpoint that answers with a fixed 200
// response, counts how many times the router invoked it, and keeps the
// method of the last request it saw, so tests can assert on both
// without a real downstream handler.
type countingEndpoint struct {
	router.StrictMatch
	calls      int32
	lastMethod atomic.Value
}

func (e *countingEndpoint) Process(info router.RoutedInfo[*RouteInfo]) error {
	atomic.AddInt32(&e.calls, 1)
	e.lastMethod.Store(info.Data.Request.Method)
	_, err := info.Data.Writer().WriteString("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
	return err
}

func newTestRouter(path string, endpoint Endpoint) *router.Router[*RouteInfo, error] {
	r := router.New[*RouteInfo, error]()
	if err := r.AddPath(path, endpoint); err != nil {
		panic(err)
	}
	return r
}

// sendRequestAndReadHead writes a single request line plus headers to
// conn and reads back the response head (up to the blank line
// terminating it), returning the status line.
func sendRequestAndReadHead(t *testing.T, conn net.Conn, requestLine string, headers ...string) string {
	t.Helper()

	writer := bufio.NewWriter(conn)
	_, err := writer.WriteString(requestLine + "\r\n")
	require.NoError(t, err)
	for _, h := range headers {
		_, err := writer.WriteString(h + "\r\n")
		require.NoError(t, err)
	}
	_, err = writer.WriteString("\r\n")
	require.NoError(t, err)
	require.NoError(t, writer.Flush())

	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	require.NoError(t, err)

	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.TrimRight(line, "\r\n") == "" {
			break
		}
	}

	return status
}

// TestHandleConnectionRoutesMatchedRequest mirrors spec.md:199-222's
// first end-to-end scenario: a GET / request reaches the registered
// endpoint and its response is written back on the same connection.
func TestHandleConnectionRoutesMatchedRequest(t *testing.T) {
	endpoint := &countingEndpoint{}
	r := newTestRouter("/", endpoint)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- handleConnection(serverConn, r, noopRecorder{}) }()

	status := sendRequestAndReadHead(t, clientConn, "GET / HTTP/1.1", "Connection: close")
	assert.Contains(t, status, "200 OK")
	assert.EqualValues(t, 1, atomic.LoadInt32(&endpoint.calls))

	require.NoError(t, <-errCh)
}

// TestHandleConnectionFallsBackToBuiltinNotFound mirrors spec.md's
// unknown-route scenario: a request for a path with no registered
// endpoint and no fallback gets the server's built-in 404.
func TestHandleConnectionFallsBackToBuiltinNotFound(t *testing.T) {
	endpoint := &countingEndpoint{}
	r := newTestRouter("/", endpoint)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- handleConnection(serverConn, r, noopRecorder{}) }()

	status := sendRequestAndReadHead(t, clientConn, "GET /missing HTTP/1.1", "Connection: close")
	assert.Contains(t, status, "404 NOT FOUND")
	assert.EqualValues(t, 0, atomic.LoadInt32(&endpoint.calls))

	require.NoError(t, <-errCh)
}

// TestHandleConnectionDefaultsUnknownMethodToGet mirrors spec.md §6:
// a request-line method the parser doesn't recognize silently becomes
// GET rather than being rejected, and still dispatches normally since
// the router matches on path alone.
func TestHandleConnectionDefaultsUnknownMethodToGet(t *testing.T) {
	endpoint := &countingEndpoint{}
	r := newTestRouter("/", endpoint)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- handleConnection(serverConn, r, noopRecorder{}) }()

	status := sendRequestAndReadHead(t, clientConn, "PATCH / HTTP/1.1", "Connection: close")
	assert.Contains(t, status, "200 OK")
	assert.EqualValues(t, 1, atomic.LoadInt32(&endpoint.calls))
	assert.Equal(t, MethodGet, endpoint.lastMethod.Load())

	require.NoError(t, <-errCh)
}

// TestHandleConnectionRejectsMalformedRequestLine mirrors spec.md's
// malformed-request-line scenario: a blank line where a request line
// is expected has no method token at all, and the handler reports
// ErrMethodNotPresent without writing anything back.
func TestHandleConnectionRejectsMalformedRequestLine(t *testing.T) {
	endpoint := &countingEndpoint{}
	r := newTestRouter("/", endpoint)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- handleConnection(serverConn, r, noopRecorder{}) }()

	writer := bufio.NewWriter(clientConn)
	_, err := writer.WriteString("\r\n")
	require.NoError(t, err)
	require.NoError(t, writer.Flush())

	assert.ErrorIs(t, <-errCh, ErrMethodNotPresent)
	assert.EqualValues(t, 0, atomic.LoadInt32(&endpoint.calls))
}

// TestHandleConnectionKeepAliveInvokesRouterTwice mirrors the
// Keep-alive testable property at spec.md:197: a connection sending
// two requests without "Connection: close" causes the router to be
// invoked twice on the same socket before the handler returns.
func TestHandleConnectionKeepAliveInvokesRouterTwice(t *testing.T) {
	endpoint := &countingEndpoint{}
	r := newTestRouter("/", endpoint)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- handleConnection(serverConn, r, noopRecorder{}) }()

	for i := 0; i < 2; i++ {
		status := sendRequestAndReadHead(t, clientConn, "GET / HTTP/1.1")
		assert.Contains(t, status, "200 OK")
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&endpoint.calls))

	require.NoError(t, clientConn.Close())
	assert.Error(t, <-errCh)
}
