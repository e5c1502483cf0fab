package httpclient

import (
	"net/http"
	"time"
)

// sharedTransport is reused across all pooled clients so that the
// embedder and model backends share one connection pool.
var sharedTransport = &http.Transport{
	MaxIdleConns:        20,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     120 * time.Second,
	DisableKeepAlives:   false,
}

// NewPooledClient creates an http.Client that shares a connection pool
// with other pooled clients.
func NewPooledClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport,
	}
}

// NewStreamingClient creates a pooled client without an overall request
// timeout. Streaming responses stay open for the lifetime of the model
// call; deadlines are enforced through the request context instead.
func NewStreamingClient() *http.Client {
	return &http.Client{
		Transport: sharedTransport,
	}
}
