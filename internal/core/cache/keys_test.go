package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyStableAcrossCalls(t *testing.T) {
	params := map[string]string{"format": "markdown", "include_html": "true"}
	k1 := Key("https://example.com/page", params)
	k2 := Key("https://example.com/page", params)
	assert.Equal(t, k1, k2)
}

func TestKeyIgnoresParamOrder(t *testing.T) {
	// maps iterate in random order; hammer it to catch ordering leaks
	for i := 0; i < 50; i++ {
		a := Key("https://example.com", map[string]string{"a": "1", "b": "2", "c": "3"})
		b := Key("https://example.com", map[string]string{"c": "3", "a": "1", "b": "2"})
		assert.Equal(t, a, b)
	}
}

func TestKeyEquivalentURLsCollide(t *testing.T) {
	params := map[string]string{"format": "markdown"}
	base := Key("https://example.com/docs", params)

	assert.Equal(t, base, Key("HTTPS://EXAMPLE.COM/docs", params))
	assert.Equal(t, base, Key("https://example.com:443/docs", params))
	assert.Equal(t, base, Key("https://example.com/docs/", params))
}

func TestKeyDifferentInputsDiffer(t *testing.T) {
	p := map[string]string{"format": "markdown"}
	assert.NotEqual(t, Key("https://example.com/a", p), Key("https://example.com/b", p))
	assert.NotEqual(t, Key("https://example.com/a", p), Key("https://example.com/a", map[string]string{"format": "html"}))
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://example.com/x", NormalizeURL("HTTPS://Example.COM:443/x/"))
	assert.Equal(t, "http://example.com", NormalizeURL("http://example.com:80/"))
	assert.Equal(t, "https://example.com/p?q=1", NormalizeURL("https://example.com/p?q=1#frag"))
}
