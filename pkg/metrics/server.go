package metrics

import (
	"fmt"
	"net/http"
	"time"
)

// NewServer returns an HTTP server exposing the active registry on /metrics.
// The caller starts it with ListenAndServe and stops it with Shutdown.
func NewServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
