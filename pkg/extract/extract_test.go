package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHTMLPrefersMainContent(t *testing.T) {
	html := `<html><body>
		<nav>Site navigation</nav>
		<main>The   actual
		content here</main>
		<footer>Footer junk</footer>
	</body></html>`

	text, err := FromHTML(strings.NewReader(html))
	require.NoError(t, err)
	assert.Equal(t, "The actual content here", text)
}

func TestFromHTMLArticleSelector(t *testing.T) {
	html := `<html><body><article>An article body</article><div>other</div></body></html>`

	text, err := FromHTML(strings.NewReader(html))
	require.NoError(t, err)
	assert.Equal(t, "An article body", text)
}

func TestFromHTMLFallsBackToBody(t *testing.T) {
	html := `<html><body><p>Just a paragraph</p> <p>and another</p></body></html>`

	text, err := FromHTML(strings.NewReader(html))
	require.NoError(t, err)
	assert.Equal(t, "Just a paragraph and another", text)
}

func TestFromPDFRejectsGarbage(t *testing.T) {
	_, err := FromPDF([]byte("definitely not a pdf"))
	assert.Error(t, err)
}

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "hello", SanitizeUTF8("hello"))

	dirty := string([]byte{'h', 'i', 0xff, 0xfe, '!'})
	assert.Equal(t, "hi!", SanitizeUTF8(dirty))
	assert.Equal(t, "", SanitizeUTF8(string([]byte{0xff})))
}
