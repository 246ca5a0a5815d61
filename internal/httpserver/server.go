// Package httpserver implements the spec's hand-rolled HTTP/1.1
// connection handling: a bound TCP listener, a worker pool fanning
// out accepted connections, and a byte-trie router dispatching parsed
// requests to endpoints. It never uses net/http — the wire format in
// spec.md §6, including the literal built-in 404 byte sequence, is
// only reachable by writing raw bytes to the connection.
package httpserver

import (
	"bufio"
	"log"
	"net"
	"strings"
	"time"

	"github.com/nanoserve/nanoserve/internal/pool"
	"github.com/nanoserve/nanoserve/internal/router"
)

// readTimeout bounds a single request's header-read latency, not the
// full keep-alive idle time of a connection (spec.md §4.3).
const readTimeout = 5 * time.Second

// RouteInfo is the value routed to an endpoint's Process method: the
// parsed request plus a single owning writer over the connection.
// Unlike the source system, which cloned the TCP stream to hand a
// writer into RoutedInfo (spec.md §9 flags both clones as targeting
// one kernel socket that must not be written concurrently), RouteInfo
// carries one net.Conn and a buffered writer over it — there is no
// clone to misuse.
type RouteInfo struct {
	Request Request

	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

// Writer returns the buffered writer endpoints should write their
// response to. Callers must not retain it past Process returning.
func (ri *RouteInfo) Writer() *bufio.Writer { return ri.writer }

// Reader returns the buffered reader positioned immediately after the
// header block, for endpoints that need to read a body (out of scope
// for the core itself, per spec.md §1, but needed by endpoints like
// the task-queue's POST /tasks).
func (ri *RouteInfo) Reader() *bufio.Reader { return ri.reader }

// Endpoint is the core's extensibility point: a handler that
// consumes a RouteInfo and reports an error for the connection
// handler to log, per spec.md §4.4. R is error rather than () since
// Go has no unit type worth naming.
type Endpoint = router.Endpoint[*RouteInfo, error]

// Recorder receives ambient instrumentation events. It exists so
// internal/metrics can observe the server without the server needing
// to import internal/metrics; nil-safe via noopRecorder.
type Recorder interface {
	ConnectionAccepted()
	RequestReceived(method string)
	RouteMiss()
	WorkerPanic()
}

type noopRecorder struct{}

func (noopRecorder) ConnectionAccepted()    {}
func (noopRecorder) RequestReceived(string) {}
func (noopRecorder) RouteMiss()             {}
func (noopRecorder) WorkerPanic()           {}

// Server owns a bound TCP listener and a router. Routes must be
// registered before Listen is called; the router is frozen once
// workers start consuming connections (spec.md §5 — "Route
// registrations are sequenced before any request is served").
type Server struct {
	listener net.Listener
	router   *router.Router[*RouteInfo, error]
	Recorder Recorder
}

// Create binds a TCP listener on 0.0.0.0:port and returns an empty
// server.
func Create(port int) (*Server, error) {
	listener, err := net.Listen("tcp", formatAddr(port))
	if err != nil {
		return nil, ioError(err)
	}
	return &Server{
		listener: listener,
		router:   router.New[*RouteInfo, error](),
		Recorder: noopRecorder{},
	}, nil
}

func formatAddr(port int) string {
	return "0.0.0.0:" + itoa(port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// AddRoute registers endpoint at path on the server's router.
func (s *Server) AddRoute(path string, endpoint Endpoint) error {
	return s.router.AddPath(path, endpoint)
}

// SetNotFoundEndpoint installs the router's fallback endpoint,
// invoked when no registered route matches. Without one, Listen falls
// back to the built-in 404 response (spec.md §4.3).
func (s *Server) SetNotFoundEndpoint(endpoint Endpoint) {
	s.router.SetFallback(endpoint)
}

// Listen accepts connections until the listener errors, submitting
// each to a pool of workerCount goroutines sharing the (now frozen)
// router. It returns once the pool has drained. Any accept error
// aborts the loop; a subsequent pool-join failure surfaces as
// KindThreadPool, otherwise the accept error surfaces as KindIO
// (spec.md §7 — "Accept errors abort listen", "Join errors surface
// from listen after the accept loop ends").
func (s *Server) Listen(workerCount int) error {
	recorder := s.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}

	p := pool.New(workerCount, s.router, func(r *router.Router[*RouteInfo, error], conn net.Conn) {
		if err := handleConnection(conn, r, recorder); err != nil {
			log.Printf("nanoserve: error in request: %v", err)
		}
	})

	var acceptErr error
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			acceptErr = err
			break
		}
		recorder.ConnectionAccepted()
		p.Submit(conn)
	}

	outcomes, joinErr := p.Join()
	for _, o := range outcomes {
		if o == pool.Panic {
			recorder.WorkerPanic()
		}
	}
	if joinErr != nil {
		return poolError(joinErr)
	}
	return ioError(acceptErr)
}

// handleConnection parses and dispatches requests from conn in a
// bounded loop — a loop, not recursion, per spec.md §9's explicit
// instruction that a production rewrite must not grow the stack with
// every keep-alive request.
func handleConnection(conn net.Conn, r *router.Router[*RouteInfo, error], recorder Recorder) error {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return ioError(err)
		}

		requestLine, err := reader.ReadString('\n')
		if err != nil {
			return ioError(err)
		}

		fields := strings.Fields(requestLine)
		if len(fields) < 1 {
			return ErrMethodNotPresent
		}
		if len(fields) < 2 {
			return ErrPathNotPresent
		}

		method := parseMethod(fields[0])
		path := fields[1]

		req := Request{Method: method, Host: "localhost", Path: path}

		persist := true
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return ioError(err)
			}
			trimmed := strings.TrimRight(line, "\r\n")
			if strings.TrimSpace(trimmed) == "" {
				break
			}

			idx := strings.Index(trimmed, ":")
			if idx < 0 {
				continue
			}
			name := trimmed[:idx]
			value := strings.TrimSpace(trimmed[idx+1:])
			req.AddHeader(name, value)

			if strings.EqualFold(strings.TrimSpace(name), "connection") &&
				strings.EqualFold(value, "close") {
				persist = false
			}
		}

		recorder.RequestReceived(method.String())

		writer := bufio.NewWriter(conn)
		info := &RouteInfo{Request: req, conn: conn, reader: reader, writer: writer}

		endpointErr, matched := r.Route(path, info)
		if !matched {
			recorder.RouteMiss()
			if err := writeBuiltinNotFound(writer); err != nil {
				return ioError(err)
			}
		} else if endpointErr != nil {
			log.Printf("nanoserve: endpoint error for %s: %v", path, endpointErr)
		}
		if err := writer.Flush(); err != nil {
			return ioError(err)
		}

		if !persist {
			return nil
		}
	}
}
