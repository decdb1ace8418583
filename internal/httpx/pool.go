package httpx

import (
	"net/http"
	"time"
)

// NewPooledHTTPClient creates an http.Client with connection pooling and a
// tuned transport. Lives in its own leaf package so both internal/engine
// (ASR/separator sidecar clients) and the pipeline runner can depend on it
// without creating an import cycle between the two.
func NewPooledHTTPClient(poolSize int, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          poolSize,
			MaxIdleConnsPerHost:   poolSize,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}
