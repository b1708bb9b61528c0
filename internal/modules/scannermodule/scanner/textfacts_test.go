package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeTextContentNFO(t *testing.T) {
	t.Run("uniqueid tags", func(t *testing.T) {
		content := `<?xml version="1.0"?>
<movie>
  <title>Heat</title>
  <uniqueid type="tmdb" default="true">949</uniqueid>
  <uniqueid type="imdb">tt0113277</uniqueid>
</movie>`
		facts := AnalyzeTextContent("movie.nfo", content)
		assert.True(t, facts.IsXML)
		assert.Equal(t, 949, facts.TmdbID)
		assert.Equal(t, "tt0113277", facts.ImdbID)
	})

	t.Run("legacy tags", func(t *testing.T) {
		facts := AnalyzeTextContent("movie.nfo", "<movie><tmdb>949</tmdb><imdb>tt0113277</imdb></movie>")
		assert.Equal(t, 949, facts.TmdbID)
		assert.Equal(t, "tt0113277", facts.ImdbID)
	})

	t.Run("url scrape", func(t *testing.T) {
		facts := AnalyzeTextContent("movie.nfo", "https://www.themoviedb.org/movie/949-heat\nhttps://www.imdb.com/title/tt0113277/")
		assert.False(t, facts.IsXML)
		assert.Equal(t, 949, facts.TmdbID)
		assert.Equal(t, "tt0113277", facts.ImdbID)
	})

	t.Run("loose patterns", func(t *testing.T) {
		facts := AnalyzeTextContent("movie.nfo", "tmdb: 949 imdb tt01132770")
		assert.Equal(t, 949, facts.TmdbID)
		assert.Equal(t, "tt01132770", facts.ImdbID)
	})

	t.Run("plain text has no ids", func(t *testing.T) {
		facts := AnalyzeTextContent("movie.nfo", "just some notes about the movie")
		assert.False(t, facts.IsXML)
		assert.Equal(t, 0, facts.TmdbID)
		assert.Empty(t, facts.ImdbID)
	})
}

func TestAnalyzeTextContentSubtitle(t *testing.T) {
	t.Run("srt timestamps", func(t *testing.T) {
		content := "1\n00:00:01,000 --> 00:00:04,000\nHello.\n"
		facts := AnalyzeTextContent("movie.en.srt", content)
		assert.True(t, facts.IsSubtitle)
		assert.Equal(t, "en", facts.Language)
	})

	t.Run("ass dialogue marker", func(t *testing.T) {
		content := "[Events]\nDialogue: 0,0:00:01.00,0:00:04.00,Default,,0,0,0,,Hello"
		facts := AnalyzeTextContent("movie.ass", content)
		assert.True(t, facts.IsSubtitle)
		assert.Empty(t, facts.Language)
	})

	t.Run("three letter language", func(t *testing.T) {
		facts := AnalyzeTextContent("Movie.ENG.srt", "00:00:01 hello")
		assert.True(t, facts.IsSubtitle)
		assert.Equal(t, "eng", facts.Language)
	})

	t.Run("not a subtitle", func(t *testing.T) {
		facts := AnalyzeTextContent("notes.txt", "shopping list")
		assert.False(t, facts.IsSubtitle)
	})
}
