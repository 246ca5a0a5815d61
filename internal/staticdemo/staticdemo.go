// Package staticdemo serves the handful of static assets nanoserve
// ships out of the box: a landing page and a favicon. Both are
// embedded at build time and gzipped once at package init, grounded
// on the original source's build-time pre_build step that minified and
// gzipped static assets before the server ever saw a request, rather
// than doing that work per-request.
package staticdemo

import (
	"bytes"
	"compress/gzip"
	"embed"

	"github.com/nanoserve/nanoserve/internal/httpserver"
	"github.com/nanoserve/nanoserve/internal/router"
)

//go:embed static/index.html static/favicon.ico
var staticFS embed.FS

var (
	indexBody []byte
	iconBody  []byte
)

func init() {
	indexBody = gzipAsset("static/index.html")
	iconBody = gzipAsset("static/favicon.ico")
}

func gzipAsset(name string) []byte {
	raw, err := staticFS.ReadFile(name)
	if err != nil {
		panic("staticdemo: missing embedded asset " + name)
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		panic("staticdemo: gzip " + name + ": " + err.Error())
	}
	if err := w.Close(); err != nil {
		panic("staticdemo: gzip close " + name + ": " + err.Error())
	}
	return buf.Bytes()
}

// IndexEndpoint serves the landing page at "/". It is strict: only an
// exact "/" request matches.
type IndexEndpoint struct {
	router.StrictMatch
}

// Process implements router.Endpoint.
func (IndexEndpoint) Process(info router.RoutedInfo[*httpserver.RouteInfo]) error {
	return info.Data.WriteOK(indexBody)
}

// FaviconEndpoint serves the favicon at "/favicon.ico".
type FaviconEndpoint struct {
	router.StrictMatch
}

// Process implements router.Endpoint.
func (FaviconEndpoint) Process(info router.RoutedInfo[*httpserver.RouteInfo]) error {
	return info.Data.WriteIcon(iconBody)
}
