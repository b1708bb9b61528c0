package scanner

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// NFO id extraction, tried in order of reliability.
	uniqueidTmdbRe = regexp.MustCompile(`<uniqueid[^>]*type="tmdb"[^>]*>(\d+)</uniqueid>`)
	uniqueidImdbRe = regexp.MustCompile(`<uniqueid[^>]*type="imdb"[^>]*>(tt\d+)</uniqueid>`)
	legacyTmdbRe   = regexp.MustCompile(`<tmdb(?:id)?>(\d+)</tmdb(?:id)?>`)
	legacyImdbRe   = regexp.MustCompile(`<imdb(?:id)?>(tt\d+)</imdb(?:id)?>`)
	urlTmdbRe      = regexp.MustCompile(`themoviedb\.org/movie/(\d+)`)
	urlImdbRe      = regexp.MustCompile(`imdb\.com/title/(tt\d+)`)
	looseTmdbRe    = regexp.MustCompile(`(?i)tmdb[/:=\s]+(\d+)`)
	looseImdbRe    = regexp.MustCompile(`(tt\d{7,})`)

	// Subtitle content markers.
	timestampRe = regexp.MustCompile(`\d\d:\d\d:\d\d`)

	// Language suffix like "movie.en.srt" or "movie.eng.srt".
	langSuffixRe = regexp.MustCompile(`\.([a-z]{2,3})\.[a-z]+$`)
)

// AnalyzeTextContent derives text facts from the file name and a partial
// read of its content.
func AnalyzeTextContent(name, content string) *TextFacts {
	facts := &TextFacts{}

	trimmed := strings.TrimSpace(content)
	facts.IsXML = strings.HasPrefix(trimmed, "<?xml") || strings.HasPrefix(trimmed, "<")

	facts.TmdbID = extractTmdbID(content)
	facts.ImdbID = extractImdbID(content)

	if timestampRe.MatchString(content) || strings.Contains(content, "-->") || strings.Contains(content, "Dialogue:") {
		facts.IsSubtitle = true
		if m := langSuffixRe.FindStringSubmatch(strings.ToLower(name)); m != nil {
			facts.Language = m[1]
		}
	}

	return facts
}

func extractTmdbID(content string) int {
	for _, re := range []*regexp.Regexp{uniqueidTmdbRe, legacyTmdbRe, urlTmdbRe, looseTmdbRe} {
		if m := re.FindStringSubmatch(content); m != nil {
			id, err := strconv.Atoi(m[1])
			if err == nil && id > 0 {
				return id
			}
		}
	}
	return 0
}

func extractImdbID(content string) string {
	for _, re := range []*regexp.Regexp{uniqueidImdbRe, legacyImdbRe, urlImdbRe, looseImdbRe} {
		if m := re.FindStringSubmatch(content); m != nil {
			return m[1]
		}
	}
	return ""
}
