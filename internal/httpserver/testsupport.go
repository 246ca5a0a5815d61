package httpserver

import (
	"bufio"
	"net"
)

// NewRouteInfoForTest builds a RouteInfo directly from its parts.
// Endpoint packages only ever receive a RouteInfo via the server's
// connection handler in production; this lets their tests exercise
// Process without standing up a real Server.
func NewRouteInfoForTest(req Request, conn net.Conn, reader *bufio.Reader, writer *bufio.Writer) *RouteInfo {
	return &RouteInfo{Request: req, conn: conn, reader: reader, writer: writer}
}
