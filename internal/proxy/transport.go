package proxy

import (
	"net"
	"net/http"
	"time"
)

// NewTransport returns the pooled transport used for backend calls.
// Dial and TLS handshakes are bounded separately from the per-request
// timeout so a dead backend fails fast instead of holding the request
// until the client deadline.
func NewTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
}
