// Package httpserver builds the process HTTP server. Header reads are bounded
// tightly; request deadlines come from the handler middleware instead of a
// server-wide write timeout, because provider-backed lookups can legitimately
// run for tens of seconds.
package httpserver

import (
	"net/http"
	"time"
)

// New builds the server around the given router.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
