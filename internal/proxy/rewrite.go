package proxy

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/InsiderPie/http-reload-proxy/internal/inject"
)

// UpstreamResponse is the fully buffered response from one upstream attempt.
// It is owned by the single request handler that produced it and is never
// shared across requests.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Rewriter decides whether an upstream response is HTML and, if so, appends
// the reload script and fixes up the headers the script invalidates.
// Everything else passes through byte for byte.
type Rewriter struct {
	script *inject.Script
}

// NewRewriter creates a rewriter around the process-wide injected script.
func NewRewriter(script *inject.Script) *Rewriter {
	return &Rewriter{script: script}
}

// cspHeaders are rewritten independently when present; both get the same
// hash-source treatment.
var cspHeaders = []string{
	"Content-Security-Policy",
	"Content-Security-Policy-Report-Only",
}

// isHTML reports whether the response carries a Content-Type whose MIME
// essence is exactly text/html, ignoring parameters such as charset.
func isHTML(header http.Header) bool {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		return false
	}
	essence, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return essence == "text/html"
}

// WriteResponse writes the upstream response downstream, injecting the
// reload script into HTML responses. Write errors mean the client went away
// and are reported to the caller for logging only.
func (rw *Rewriter) WriteResponse(w http.ResponseWriter, resp *UpstreamResponse) error {
	if !isHTML(resp.Header) {
		copyHeader(w.Header(), resp.Header)
		if _, ok := resp.Header["Content-Type"]; !ok {
			// The upstream sent no Content-Type, so none goes downstream.
			// A nil entry stops net/http from sniffing one out of the body.
			w.Header()["Content-Type"] = nil
		}
		w.WriteHeader(resp.StatusCode)
		_, err := w.Write(resp.Body)
		return err
	}

	header := make(http.Header, len(resp.Header))
	copyHeader(header, resp.Header)

	for _, name := range cspHeaders {
		values := header.Values(name)
		for i, value := range values {
			values[i] = inject.RewritePolicy(value, rw.script.Fingerprint())
		}
	}

	// The declared length must cover the appended script exactly; when the
	// upstream sent no Content-Length none is synthesized and framing is
	// left to the connection.
	if declared := header.Get("Content-Length"); declared != "" {
		if n, err := strconv.ParseInt(declared, 10, 64); err == nil {
			header.Set("Content-Length", strconv.FormatInt(n+int64(rw.script.Len()), 10))
		}
	}

	copyHeader(w.Header(), header)
	w.WriteHeader(resp.StatusCode)

	if _, err := w.Write(resp.Body); err != nil {
		return err
	}
	// Appended directly after the body, no separator.
	_, err := w.Write(rw.script.Bytes())
	return err
}

// copyHeader copies all values of all header names, preserving multiplicity.
func copyHeader(dst, src http.Header) {
	for name, values := range src {
		dst[name] = append([]string(nil), values...)
	}
}
