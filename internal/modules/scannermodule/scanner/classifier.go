package scanner

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/curatarr/curatarr/internal/database"
	"github.com/curatarr/curatarr/internal/mediaprobe"
)

// ClassifiedFile is one file assigned to an asset slot.
type ClassifiedFile struct {
	File       FileFacts              `json:"file"`
	Kind       database.CacheFileKind `json:"kind"`
	Slot       database.Slot          `json:"slot"`
	Confidence int                    `json:"confidence"`
	Legacy     bool                   `json:"legacy,omitempty"`
}

// UnknownCategory buckets files the classifier could not place.
type UnknownCategory string

const (
	UnknownVideo   UnknownCategory = "video"
	UnknownImage   UnknownCategory = "image"
	UnknownArchive UnknownCategory = "archive"
	UnknownText    UnknownCategory = "text"
	UnknownOther   UnknownCategory = "other"
)

// UnknownFileInfo is a file left in the unknown bucket.
type UnknownFileInfo struct {
	File     FileFacts       `json:"file"`
	Category UnknownCategory `json:"category"`
}

// ProcessingStatus is the binary gate outcome for a classified directory.
type ProcessingStatus string

const (
	CanProcess             ProcessingStatus = "CAN_PROCESS"
	CanProcessWithUnknowns ProcessingStatus = "CAN_PROCESS_WITH_UNKNOWNS"
	ManualRequired         ProcessingStatus = "MANUAL_REQUIRED"
)

// ProcessingDecision reports whether the directory can be processed
// automatically.
type ProcessingDecision struct {
	Status     ProcessingStatus `json:"status"`
	Confidence int              `json:"confidence"`
	Reasons    []string         `json:"reasons,omitempty"`
}

// Classification is the full rule output for one directory scan.
type Classification struct {
	DirPath             string             `json:"dir_path"`
	Disc                DiscStructure      `json:"disc_structure,omitempty"`
	MainMovie           *ClassifiedFile    `json:"main_movie,omitempty"`
	MainMovieConfidence int                `json:"main_movie_confidence"`
	Assets              []ClassifiedFile   `json:"assets"`
	Unknown             []UnknownFileInfo  `json:"unknown"`
	TmdbID              int                `json:"tmdb_id,omitempty"`
	ImdbID              string             `json:"imdb_id,omitempty"`
	Decision            ProcessingDecision `json:"decision"`
}

// Hint carries an upstream ingester's filename hint for main-movie picking.
type Hint struct {
	Filename string
}

// Classify applies the rule set to a directory scan. It is pure: identical
// facts and hint always produce identical output.
func Classify(scan *DirectoryScan, hint *Hint, userTmdbID int) *Classification {
	c := &Classification{
		DirPath: scan.DirPath,
		Disc:    scan.Disc,
		TmdbID:  userTmdbID,
	}

	classifyTextFiles(scan, c)
	classifyVideos(scan, c, hint)
	classifyImages(scan, c)
	classifyAudio(scan, c)
	collectUnknowns(scan, c)

	c.Decision = decide(c)
	return c
}

// classifyTextFiles handles NFO and subtitle files and hoists any extracted
// provider ids onto the classification.
func classifyTextFiles(scan *DirectoryScan, c *Classification) {
	for i := range scan.Files {
		f := &scan.Files[i]
		if f.Text == nil || f.LegacyDir != "" {
			continue
		}

		switch f.Ext {
		case ".nfo":
			if f.Text.IsXML || f.Text.TmdbID > 0 || f.Text.ImdbID != "" {
				confidence := 90
				if scan.Disc != DiscNone {
					confidence = 100
				}
				c.Assets = append(c.Assets, ClassifiedFile{
					File:       *f,
					Kind:       database.CacheKindText,
					Slot:       database.SlotNFO,
					Confidence: confidence,
				})
				if c.TmdbID == 0 {
					c.TmdbID = f.Text.TmdbID
				}
				if c.ImdbID == "" {
					c.ImdbID = f.Text.ImdbID
				}
			}
		default:
			if f.Text.IsSubtitle {
				c.Assets = append(c.Assets, ClassifiedFile{
					File:       *f,
					Kind:       database.CacheKindText,
					Slot:       database.SlotSubtitle,
					Confidence: 90,
				})
			}
		}
	}
}

// classifyVideos applies the duration-only main-movie rule and routes
// excluded videos to trailer or deleted-scene slots.
func classifyVideos(scan *DirectoryScan, c *Classification, hint *Hint) {
	var candidates []*FileFacts
	var excluded []*FileFacts
	for i := range scan.Files {
		f := &scan.Files[i]
		if !mediaprobe.IsVideoExt(f.Path) || f.LegacyDir != "" {
			continue
		}
		if f.Filename.ExclusionKeyword != "" {
			excluded = append(excluded, f)
		} else {
			candidates = append(candidates, f)
		}
	}

	pick, confidence := pickMainMovie(candidates, len(excluded), hint)
	if pick != nil {
		c.MainMovie = &ClassifiedFile{
			File:       *pick,
			Kind:       database.CacheKindVideo,
			Slot:       database.SlotMainMovie,
			Confidence: confidence,
		}
	}
	c.MainMovieConfidence = confidence

	for _, f := range excluded {
		slot := database.SlotTrailer
		if f.Filename.ExclusionKeyword == "deleted" {
			slot = database.SlotDeletedScene
		}
		c.Assets = append(c.Assets, ClassifiedFile{
			File:       *f,
			Kind:       database.CacheKindVideo,
			Slot:       slot,
			Confidence: 90,
		})
	}
}

func pickMainMovie(candidates []*FileFacts, excludedCount int, hint *Hint) (*FileFacts, int) {
	if hint != nil && hint.Filename != "" {
		for _, f := range candidates {
			if strings.EqualFold(f.Name, filepath.Base(hint.Filename)) {
				return f, 100
			}
		}
	}

	total := len(candidates) + excludedCount
	switch {
	case total == 0:
		return nil, 0
	case len(candidates) == 0:
		return nil, 0
	case total == 1:
		return candidates[0], 100
	case len(candidates) == 1:
		return candidates[0], 95
	}

	// Multiple candidates: longest duration wins; a tie within one second
	// means no safe pick.
	longest := candidates[0]
	for _, f := range candidates[1:] {
		if duration(f) > duration(longest) {
			longest = f
		}
	}
	for _, f := range candidates {
		if f != longest && math.Abs(duration(f)-duration(longest)) <= 1.0 {
			return nil, 0
		}
	}
	return longest, 90
}

func duration(f *FileFacts) float64 {
	if f.Video == nil {
		return 0
	}
	return f.Video.DurationSec
}

func classifyImages(scan *DirectoryScan, c *Classification) {
	movieBase := ""
	if c.MainMovie != nil {
		movieBase = c.MainMovie.File.BaseName()
	}
	disc := scan.Disc != DiscNone

	for i := range scan.Files {
		f := &scan.Files[i]
		if !isImageFactExt(f.Ext) {
			continue
		}

		if f.LegacyDir != "" {
			slot := database.SlotFanart
			if f.LegacyDir == "extrathumbs" {
				slot = database.SlotThumb
			}
			c.Assets = append(c.Assets, ClassifiedFile{
				File:       *f,
				Kind:       database.CacheKindImage,
				Slot:       slot,
				Confidence: 70,
				Legacy:     true,
			})
			continue
		}

		if slot, score := MatchImageSlot(f, movieBase, disc); slot != "" {
			c.Assets = append(c.Assets, ClassifiedFile{
				File:       *f,
				Kind:       database.CacheKindImage,
				Slot:       slot,
				Confidence: score,
			})
		}
	}
}

func classifyAudio(scan *DirectoryScan, c *Classification) {
	for i := range scan.Files {
		f := &scan.Files[i]
		if !mediaprobe.IsAudioExt(f.Path) || f.LegacyDir != "" {
			continue
		}
		if strings.EqualFold(f.BaseName(), "theme") {
			c.Assets = append(c.Assets, ClassifiedFile{
				File:       *f,
				Kind:       database.CacheKindAudio,
				Slot:       database.SlotTheme,
				Confidence: 100,
			})
		}
	}
}

// collectUnknowns buckets every file no earlier rule claimed.
func collectUnknowns(scan *DirectoryScan, c *Classification) {
	claimed := make(map[string]bool)
	if c.MainMovie != nil {
		claimed[c.MainMovie.File.Path] = true
	}
	for _, a := range c.Assets {
		claimed[a.File.Path] = true
	}

	for i := range scan.Files {
		f := &scan.Files[i]
		if claimed[f.Path] {
			continue
		}
		c.Unknown = append(c.Unknown, UnknownFileInfo{File: *f, Category: unknownCategory(f)})
	}
}

func unknownCategory(f *FileFacts) UnknownCategory {
	switch {
	case mediaprobe.IsVideoExt(f.Path):
		return UnknownVideo
	case isImageFactExt(f.Ext):
		return UnknownImage
	case f.Ext == ".zip" || f.Ext == ".rar" || f.Ext == ".7z" || f.Ext == ".tar" || f.Ext == ".gz":
		return UnknownArchive
	case isTextFactExt(f.Ext):
		return UnknownText
	}
	return UnknownOther
}

// decide applies the binary processing gate: a TMDB id plus either a main
// movie or a disc structure. A disc rip has no single main file; the disc
// layout itself is the movie. Unknown files downgrade confidence but never
// block.
func decide(c *Classification) ProcessingDecision {
	var reasons []string
	if c.MainMovie == nil && c.Disc == DiscNone {
		reasons = append(reasons, "no main movie identified")
	}
	if c.TmdbID == 0 {
		reasons = append(reasons, "no TMDB id available")
	}
	if len(reasons) > 0 {
		return ProcessingDecision{Status: ManualRequired, Confidence: 0, Reasons: reasons}
	}
	if len(c.Unknown) > 0 {
		return ProcessingDecision{Status: CanProcessWithUnknowns, Confidence: 80}
	}
	return ProcessingDecision{Status: CanProcess, Confidence: 100}
}
