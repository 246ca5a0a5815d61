package httpserver

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
)

// gzipBytes gzips data once at call time; used to build the few
// canned response bodies the core itself ships (the 404 fallback).
// Endpoints are expected to pre-build and gzip their own bodies — the
// core treats response bytes opaquely (spec.md §1 OUT OF SCOPE).
func gzipBytes(data []byte) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, _ = w.Write(data)
	_ = w.Close()
	return buf.Bytes()
}

var notFoundBody = gzipBytes([]byte("Could not find resource"))

// writeBuiltinNotFound writes the literal 404 response described in
// spec.md §6, always including Content-Length (spec.md §9 calls out
// the source's omission of it on some paths as a defect to fix).
func writeBuiltinNotFound(w *bufio.Writer) error {
	if _, err := w.WriteString("HTTP/1.1 404 NOT FOUND\r\n" +
		"Content-Type: text/html charset=UTF-8\r\n" +
		"Content-Encoding: gzip\r\n" +
		"Connection: close\r\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(notFoundBody)); err != nil {
		return err
	}
	if _, err := w.Write(notFoundBody); err != nil {
		return err
	}
	_, err := w.WriteString("\r\n")
	return err
}

// writeHead writes a response head: status line, a fixed set of
// headers, Content-Length, and the blank line ending the head.
// Grounded on original_source/http_server/src/lib.rs's
// response_head! usage in HttpRouteInfo::{ok,icon,not_found_404}.
func writeHead(w *bufio.Writer, status string, headers []Header, bodyLen int) error {
	if _, err := fmt.Fprintf(w, "HTTP/1.1 %s\r\n", status); err != nil {
		return err
	}
	for _, h := range headers {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", h.Name, h.Value); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", bodyLen)
	return err
}

// WriteOK writes a 200 OK response around a pre-built, pre-gzipped
// HTML body.
func (ri *RouteInfo) WriteOK(body []byte) error {
	headers := []Header{
		{"Content-Type", "text/html charset=UTF-8"},
		{"Content-Encoding", "gzip"},
		{"Cache-Control", "max-age=1800"},
		{"Cache-Control", "public"},
	}
	if err := writeHead(ri.writer, "200 OK", headers, len(body)); err != nil {
		return err
	}
	_, err := ri.writer.Write(body)
	return err
}

// WriteIcon writes a 200 OK response around a pre-built, pre-gzipped
// favicon body.
func (ri *RouteInfo) WriteIcon(body []byte) error {
	headers := []Header{
		{"Content-Type", "image/x-icon"},
		{"Content-Encoding", "gzip"},
		{"Cache-Control", "max-age=1800"},
		{"Cache-Control", "public"},
	}
	if err := writeHead(ri.writer, "200 OK", headers, len(body)); err != nil {
		return err
	}
	_, err := ri.writer.Write(body)
	return err
}

// WriteNotFound writes a 404 response around a caller-supplied,
// pre-gzipped body, for use by a registered 404 endpoint (as opposed
// to the server's own built-in fallback).
func (ri *RouteInfo) WriteNotFound(body []byte) error {
	headers := []Header{
		{"Content-Type", "text/html charset=UTF-8"},
		{"Content-Encoding", "gzip"},
		{"Cache-Control", "max-age=1800"},
		{"Cache-Control", "public"},
		{"Connection", "close"},
	}
	if err := writeHead(ri.writer, "404 NOT FOUND", headers, len(body)); err != nil {
		return err
	}
	_, err := ri.writer.Write(body)
	return err
}
