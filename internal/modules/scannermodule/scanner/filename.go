package scanner

import (
	"regexp"
	"strconv"
	"strings"
)

// FilenameFacts are the release tokens extracted from a file name.
type FilenameFacts struct {
	Year             int      `json:"year,omitempty"`
	Resolution       string   `json:"resolution,omitempty"`
	Codec            string   `json:"codec,omitempty"`
	QualityTags      []string `json:"quality_tags,omitempty"`
	AudioTags        []string `json:"audio_tags,omitempty"`
	Edition          string   `json:"edition,omitempty"`
	ExclusionKeyword string   `json:"exclusion_keyword,omitempty"`
}

var (
	// Year in bracket or separator context, e.g. "(2019)" or ".2019."
	yearRe = regexp.MustCompile(`[\(\[\.\s_-](19\d{2}|20\d{2})[\)\]\.\s_-]`)

	resolutionRe = regexp.MustCompile(`(?i)\b(480p|720p|1080p|2160p|4K|UHD|HD)\b`)
	codecRe      = regexp.MustCompile(`(?i)\b(x264|x265|h\.?264|h\.?265|HEVC|AVC)\b`)
	qualityRe    = regexp.MustCompile(`(?i)\b(BLURAY|BLU-RAY|REMUX|WEBRIP|WEB-DL|WEBDL|HDTV|DVDRIP|BRRIP|BDRIP)\b`)
	audioTagRe   = regexp.MustCompile(`(?i)\b(DTS(?:-HD)?|ATMOS|TRUEHD|DD5\.1|AC3|EAC3|AAC|FLAC|MA)\b`)
	editionRe    = regexp.MustCompile(`(?i)\b(Director'?s[\s._]Cut|Extended(?:[\s._](?:Cut|Edition))?|Unrated|Theatrical|Remastered|Special[\s._]Edition|Ultimate[\s._]Edition|IMAX)\b`)
)

// exclusionKeywords mark files that are not the main movie.
var exclusionKeywords = []string{
	"trailer", "sample", "behindthescenes", "deleted",
	"featurette", "interview", "scene", "short",
}

// ExtractFilenameFacts parses release tokens from a file name.
func ExtractFilenameFacts(name string) FilenameFacts {
	base := strings.TrimSuffix(name, extOf(name))
	facts := FilenameFacts{}

	// Take the last year token: release years trail the title, and titles
	// like "Blade Runner 2049" would otherwise win.
	if all := yearRe.FindAllStringSubmatch(name, -1); len(all) > 0 {
		facts.Year, _ = strconv.Atoi(all[len(all)-1][1])
	}
	if m := resolutionRe.FindString(base); m != "" {
		facts.Resolution = strings.ToLower(m)
	}
	if m := codecRe.FindString(base); m != "" {
		facts.Codec = normalizeCodec(m)
	}
	for _, m := range qualityRe.FindAllString(base, -1) {
		facts.QualityTags = appendUnique(facts.QualityTags, strings.ToUpper(strings.ReplaceAll(m, "-", "")))
	}
	for _, m := range audioTagRe.FindAllString(base, -1) {
		facts.AudioTags = appendUnique(facts.AudioTags, strings.ToUpper(m))
	}
	if m := editionRe.FindString(base); m != "" {
		facts.Edition = m
	}

	facts.ExclusionKeyword = detectExclusionKeyword(base)
	return facts
}

// detectExclusionKeyword checks the three recognised separator patterns:
// "-kw", "_kw", and for sample only a bare substring.
func detectExclusionKeyword(base string) string {
	lower := strings.ToLower(base)
	for _, kw := range exclusionKeywords {
		if strings.HasSuffix(lower, "-"+kw) || strings.Contains(lower, "-"+kw+"-") ||
			strings.HasSuffix(lower, "_"+kw) || strings.Contains(lower, "_"+kw+"_") {
			return kw
		}
	}
	if strings.Contains(lower, "sample") {
		return "sample"
	}
	return ""
}

func normalizeCodec(codec string) string {
	c := strings.ToLower(strings.ReplaceAll(codec, ".", ""))
	switch c {
	case "hevc", "h265":
		return "x265"
	case "avc", "h264":
		return "x264"
	}
	return c
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func extOf(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}
