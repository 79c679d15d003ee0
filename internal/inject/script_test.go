package inject

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScriptText(t *testing.T) {
	script := NewScript(8090, 250)
	text := string(script.Bytes())

	assert.True(t, strings.HasPrefix(text, "<script>"))
	assert.True(t, strings.HasSuffix(text, "</script>"))
	assert.Contains(t, text, `new EventSource("http://localhost:8090/")`)
	assert.Contains(t, text, "setTimeout(() => { location.reload(); }, 250)")
}

func TestScriptLenMatchesBytes(t *testing.T) {
	script := NewScript(8090, 0)
	assert.Equal(t, len(script.Bytes()), script.Len())
}

func TestFingerprintCoversInlineSource(t *testing.T) {
	script := NewScript(4321, 10)

	text := string(script.Bytes())
	inner := strings.TrimSuffix(strings.TrimPrefix(text, "<script>"), "</script>")
	sum := sha256.Sum256([]byte(inner))

	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), script.Fingerprint())
}

func TestFingerprintChangesWithScript(t *testing.T) {
	a := NewScript(8090, 100)
	b := NewScript(8090, 200)
	c := NewScript(8091, 100)

	require.NotEqual(t, string(a.Bytes()), string(b.Bytes()))
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestScriptDeterministic(t *testing.T) {
	a := NewScript(8090, 100)
	b := NewScript(8090, 100)

	assert.Equal(t, a.Bytes(), b.Bytes())
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}
