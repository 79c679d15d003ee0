// Package inject builds the live-reload script that the proxy appends to
// HTML responses, together with the CSP hash-source fingerprint that lets
// the script run on pages protected by a Content-Security-Policy.
package inject

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// The element is assembled around its inline source so the fingerprint can
// hash exactly the text a browser sees between the tags.
const scriptSourceTemplate = `
  const livereload = new EventSource("http://localhost:%d/");
  livereload.onmessage = () => {
    setTimeout(() => { location.reload(); }, %d);
  };
`

// Script is the immutable reload script computed once at startup. The byte
// sequence and its fingerprint are derived together; neither is ever
// refreshed independently of the other.
type Script struct {
	body        []byte
	fingerprint string
}

// NewScript renders the script element for the given notification port and
// browser-side reload delay in milliseconds.
func NewScript(notifyPort, reloadDelayMS int) *Script {
	source := fmt.Sprintf(scriptSourceTemplate, notifyPort, reloadDelayMS)

	// CSP hash sources cover the inline source, not the surrounding tags.
	sum := sha256.Sum256([]byte(source))

	return &Script{
		body:        []byte("<script>" + source + "</script>"),
		fingerprint: base64.StdEncoding.EncodeToString(sum[:]),
	}
}

// Bytes returns the full script element, exactly as appended to responses.
func (s *Script) Bytes() []byte {
	return s.body
}

// Len returns the byte length of the script element, used for
// Content-Length accounting.
func (s *Script) Len() int {
	return len(s.body)
}

// Fingerprint returns the base64-encoded sha256 digest of the inline script
// source, suitable for a CSP 'sha256-...' source expression.
func (s *Script) Fingerprint() string {
	return s.fingerprint
}
