package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html><head><title>Sample</title></head><body>
<main>
  <h1>Heading</h1>
  <p>Some paragraph text with <a href="/about">a relative link</a> and
  <a href="https://other.example.com/page">an absolute one</a>.</p>
  <script>var ignored = true;</script>
</main>
</body></html>`

func TestProcessLargeHTMLExtractsTextAndLinks(t *testing.T) {
	p := NewProcessor(64)
	res, err := p.ProcessLargeHTML(samplePage, "https://example.com", ProcessOptions{
		ExtractText:  true,
		ExtractLinks: true,
	})
	require.NoError(t, err)

	assert.False(t, res.Truncated)
	assert.Contains(t, res.Text, "Some paragraph text")
	assert.NotContains(t, res.Text, "var ignored")
	assert.Contains(t, res.Links, "https://example.com/about")
	assert.Contains(t, res.Links, "https://other.example.com/page")
}

func TestProcessLargeHTMLTogglesAreIndependent(t *testing.T) {
	p := NewProcessor(64)

	res, err := p.ProcessLargeHTML(samplePage, "https://example.com", ProcessOptions{ExtractLinks: true})
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.NotEmpty(t, res.Links)

	res, err = p.ProcessLargeHTML(samplePage, "https://example.com", ProcessOptions{ExtractText: true})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Text)
	assert.Empty(t, res.Links)
}

func TestProcessLargeHTMLTruncates(t *testing.T) {
	p := NewProcessor(64)
	big := "<html><body><p>" + strings.Repeat("word ", 10_000) + "</p></body></html>"

	res, err := p.ProcessLargeHTML(big, "https://example.com", ProcessOptions{
		ExtractText:    true,
		MaxContentSize: 2048,
	})
	require.NoError(t, err)

	assert.True(t, res.Truncated)
	assert.Equal(t, 2048, res.ProcessedSize)
}

func TestProcessorChunkSizeClamped(t *testing.T) {
	assert.Equal(t, 16*1024, NewProcessor(1).ChunkSize())
	assert.Equal(t, 1024*1024, NewProcessor(4096).ChunkSize())
}

func TestAbsolutize(t *testing.T) {
	base := "https://example.com/dir/page"
	assert.Equal(t, "https://example.com/x", Absolutize("/x", base))
	assert.Equal(t, "https://cdn.example.com/a", Absolutize("//cdn.example.com/a", base))
	assert.Equal(t, "https://example.com/dir/page/rel", Absolutize("rel", base))
	assert.Equal(t, "", Absolutize("#frag", base))
	assert.Equal(t, "", Absolutize("javascript:void(0)", base))
	assert.Equal(t, "", Absolutize("mailto:x@example.com", base))
	assert.Equal(t, "http://plain.example.com", Absolutize("http://plain.example.com", base))
}
