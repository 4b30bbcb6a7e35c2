package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractAssetURLs(t *testing.T) {
	content := `Here is your ad copy.
Hero image: https://pics.example.com/hero.png
Also consider "https://pics.example.com/alt.jpg" or the clip
(https://videos.example.com/spot.mp4). Plain link https://example.com/page is not media.
Duplicate: https://pics.example.com/hero.png`

	urls := extractAssetURLs(content)
	assert.Equal(t, []string{
		"https://pics.example.com/hero.png",
		"https://pics.example.com/alt.jpg",
		"https://videos.example.com/spot.mp4",
	}, urls, "media URLs are extracted once each, non-media links ignored")
}

func TestExtractAssetURLsNoMatches(t *testing.T) {
	assert.Nil(t, extractAssetURLs("plain text, no links at all"))
}
