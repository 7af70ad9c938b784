// Package httpserver wraps net/http server construction with production timeouts.
package httpserver

import (
	"net/http"
	"time"
)

// New builds an *http.Server with timeouts suitable for a public-facing API.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
