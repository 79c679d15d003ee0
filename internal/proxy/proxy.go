// Package proxy implements the forwarding half of the reload proxy: inbound
// requests are reproduced against the configured upstream, connection
// refusals are retried with a bounded counted loop, and responses pass
// through the rewriter on the way back down.
package proxy

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/InsiderPie/http-reload-proxy/internal/errs"
	"github.com/InsiderPie/http-reload-proxy/internal/inject"
	"github.com/InsiderPie/http-reload-proxy/internal/logging"
)

// hopByHopHeaders are connection-level headers that must not travel across
// the proxy in either direction.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder handles inbound requests by replaying them against the
// upstream. Apart from the shared outbound connection pool there is no
// cross-request state; retry counters and buffers live and die with one
// request.
type Forwarder struct {
	upstreamBase string
	client       *http.Client
	maxRetries   int
	retryDelay   time.Duration
	rewriter     *Rewriter
	logger       logging.Logger
}

// NewForwarder creates a forwarder for the given upstream host and port.
// maxRetries counts additional attempts after the first; retryDelay is the
// fixed pause between attempts.
func NewForwarder(upstreamHost string, upstreamPort int, maxRetries int, retryDelay time.Duration, script *inject.Script, logger logging.Logger) *Forwarder {
	if logger == nil {
		logger = logging.NewLogger(nil)
	}
	return &Forwarder{
		upstreamBase: fmt.Sprintf("http://%s:%d", upstreamHost, upstreamPort),
		client: &http.Client{
			Transport: &http.Transport{
				// Pass-through must stay byte-identical, so the transport
				// never negotiates compression on the proxy's behalf.
				DisableCompression: true,
			},
			// Redirects belong to the browser, not the proxy.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		rewriter:   NewRewriter(script),
		logger:     logger.WithComponent("proxy"),
	}
}

// ServeHTTP handles one inbound request end to end: buffer the body,
// forward with retries, rewrite the response downstream.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		// The client aborted its own upload; there is nothing to forward.
		f.logger.Debug(r.Context(), "failed to read request body", "error", err.Error())
		f.writeError(w, errs.Classify(err, 0))
		return
	}

	resp, upErr := f.forward(r, body)
	if upErr != nil {
		f.logger.Error(r.Context(), upErr, "upstream request failed",
			"method", r.Method, "path", r.URL.Path)
		f.writeError(w, upErr)
		return
	}

	if err := f.rewriter.WriteResponse(w, resp); err != nil {
		// Downstream write failure: the client disconnected mid-response.
		// Suppressed per the error policy; the connection simply ends.
		f.logger.Debug(r.Context(), "client disconnected during response", "error", err.Error())
	}
}

// forward runs the bounded retry loop. Only connection-refused failures are
// retried; each attempt replays a fresh copy of the buffered body.
func (f *Forwarder) forward(r *http.Request, body []byte) (*UpstreamResponse, *errs.UpstreamError) {
	attempts := 0
	remaining := f.maxRetries

	for {
		attempts++
		resp, err := f.attempt(r, body)
		if err == nil {
			return resp, nil
		}

		classified := errs.Classify(err, attempts)
		if classified.Kind != errs.UpstreamRefused || remaining == 0 {
			return nil, classified
		}
		remaining--

		f.logger.Debug(r.Context(), "upstream refused connection, retrying",
			"attempt", attempts, "remaining", remaining)

		select {
		case <-r.Context().Done():
			return nil, classified
		case <-time.After(f.retryDelay):
		}
	}
}

// attempt reproduces the inbound request against the upstream once and
// buffers the whole response.
func (f *Forwarder) attempt(r *http.Request, body []byte) (*UpstreamResponse, error) {
	out, err := http.NewRequestWithContext(r.Context(), r.Method, f.upstreamBase+r.URL.RequestURI(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	// Headers travel verbatim, multiplicity and credentials included. The
	// Host header lives outside the map in net/http.
	copyHeader(out.Header, r.Header)
	out.Host = r.Host
	removeHopByHop(out.Header)
	out.ContentLength = int64(len(body))

	resp, err := f.client.Do(out)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	header := make(http.Header, len(resp.Header))
	copyHeader(header, resp.Header)
	removeHopByHop(header)

	return &UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       respBody,
	}, nil
}

// writeError surfaces a terminal failure downstream: 502 for a refused
// upstream, 500 for anything else. Headers are written at most once and the
// connection is closed without a body.
func (f *Forwarder) writeError(w http.ResponseWriter, err *errs.UpstreamError) {
	w.Header().Set("Connection", "close")
	if err.Kind == errs.UpstreamRefused {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
}

func removeHopByHop(header http.Header) {
	for _, name := range hopByHopHeaders {
		header.Del(name)
	}
}
