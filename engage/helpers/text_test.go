package helpers

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWordCount(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(0, WordCount(""))
	assert.Equal(0, WordCount("   \n\t "))
	assert.Equal(1, WordCount("word"))
	assert.Equal(4, WordCount("  four words\nacross\tlines "))
	// punctuation is part of a token
	assert.Equal(4, WordCount("great record , honestly"))
	assert.Equal(150, WordCount(strings.Repeat("la ", 150)))
}

func TestExtractTextURLs(t *testing.T) {
	assert := assert.New(t)

	urls := ExtractTextURLs("new EP: https://someband.bandcamp.com/album/first and also example.org/page. thanks")
	assert.Equal([]string{"https://someband.bandcamp.com/album/first", "example.org/page"}, urls)
	assert.Empty(ExtractTextURLs("no links here"))
}

func TestNormalizeURL(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("https://bandcamp.com/album?a=1&b=2", NormalizeURL("HTTPS://WWW.BandCamp.com/album?b=2&a=1#top"))
}

func TestContainsLink(t *testing.T) {
	assert := assert.New(t)
	pat := regexp.MustCompile(`bandcamp\.com`)

	assert.True(ContainsLink(pat, "", "check out https://someband.bandcamp.com/track/x"))
	assert.True(ContainsLink(pat, "LISTEN: HTTPS://WWW.BANDCAMP.COM/album/y"))
	assert.True(ContainsLink(pat, "title only", "", "https://artist.bandcamp.com"))
	assert.False(ContainsLink(pat, "https://soundcloud.com/someone", "just text"))
	assert.False(ContainsLink(nil, "https://artist.bandcamp.com"))
	assert.False(ContainsLink(pat))
}

func TestHashOfString(t *testing.T) {
	assert := assert.New(t)

	h := HashOfString("fan")
	assert.Len(h, 16)
	assert.Equal(h, HashOfString("fan"))
	assert.NotEqual(h, HashOfString("Fan"))
}
