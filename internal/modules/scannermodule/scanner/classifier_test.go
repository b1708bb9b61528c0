package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curatarr/curatarr/internal/database"
)

func videoFacts(name string, durationSec float64) FileFacts {
	return FileFacts{
		Path:     "/lib/Movie (2019)/" + name,
		Name:     name,
		Ext:      extOf(name),
		Filename: ExtractFilenameFacts(name),
		Video:    &VideoFacts{HasVideo: true, HasAudio: true, DurationSec: durationSec},
	}
}

func imageFacts(name string, w, h int) FileFacts {
	aspect := 0.0
	if h > 0 {
		aspect = float64(w) / float64(h)
	}
	return FileFacts{
		Path:     "/lib/Movie (2019)/" + name,
		Name:     name,
		Ext:      extOf(name),
		Filename: ExtractFilenameFacts(name),
		Image:    &ImageFacts{Width: w, Height: h, AspectRatio: aspect, Format: "jpeg"},
	}
}

func nfoFacts(name string, tmdbID int) FileFacts {
	return FileFacts{
		Path:     "/lib/Movie (2019)/" + name,
		Name:     name,
		Ext:      ".nfo",
		Filename: ExtractFilenameFacts(name),
		Text:     &TextFacts{IsXML: true, TmdbID: tmdbID},
	}
}

func TestClassifyStandardMovieDirectory(t *testing.T) {
	scan := &DirectoryScan{
		DirPath: "/lib/Movie (2019)",
		Files: []FileFacts{
			videoFacts("Movie (2019) 1080p BluRay x264.mkv", 7200),
			imageFacts("poster.jpg", 1000, 1500),
			imageFacts("fanart.jpg", 1920, 1080),
			nfoFacts("movie.nfo", 550),
		},
	}

	c := Classify(scan, nil, 0)

	require.NotNil(t, c.MainMovie)
	assert.Equal(t, "Movie (2019) 1080p BluRay x264.mkv", c.MainMovie.File.Name)
	assert.Equal(t, 100, c.MainMovieConfidence)
	assert.Equal(t, 550, c.TmdbID)

	slots := map[database.Slot]int{}
	for _, a := range c.Assets {
		slots[a.Slot] = a.Confidence
	}
	assert.Equal(t, 100, slots[database.SlotPoster])
	assert.Equal(t, 100, slots[database.SlotFanart])
	assert.Equal(t, 90, slots[database.SlotNFO])

	assert.Equal(t, CanProcess, c.Decision.Status)
	assert.Equal(t, 100, c.Decision.Confidence)
	assert.Empty(t, c.Unknown)
}

func TestClassifyMainMovieRules(t *testing.T) {
	t.Run("zero videos", func(t *testing.T) {
		c := Classify(&DirectoryScan{Files: []FileFacts{imageFacts("poster.jpg", 1000, 1500)}}, nil, 0)
		assert.Nil(t, c.MainMovie)
		assert.Equal(t, 0, c.MainMovieConfidence)
	})

	t.Run("single excluded video", func(t *testing.T) {
		c := Classify(&DirectoryScan{Files: []FileFacts{videoFacts("movie-trailer.mp4", 120)}}, nil, 0)
		assert.Nil(t, c.MainMovie)
		require.Len(t, c.Assets, 1)
		assert.Equal(t, database.SlotTrailer, c.Assets[0].Slot)
	})

	t.Run("single non-excluded video", func(t *testing.T) {
		c := Classify(&DirectoryScan{Files: []FileFacts{videoFacts("movie.mkv", 7200)}}, nil, 0)
		require.NotNil(t, c.MainMovie)
		assert.Equal(t, 100, c.MainMovieConfidence)
	})

	t.Run("one candidate among excluded", func(t *testing.T) {
		c := Classify(&DirectoryScan{Files: []FileFacts{
			videoFacts("movie.mkv", 7200),
			videoFacts("movie-trailer.mp4", 120),
			videoFacts("movie-sample.mkv", 60),
		}}, nil, 0)
		require.NotNil(t, c.MainMovie)
		assert.Equal(t, "movie.mkv", c.MainMovie.File.Name)
		assert.Equal(t, 95, c.MainMovieConfidence)
	})

	t.Run("multiple candidates longest wins", func(t *testing.T) {
		c := Classify(&DirectoryScan{Files: []FileFacts{
			videoFacts("cd1.mkv", 3600),
			videoFacts("full.mkv", 7200),
		}}, nil, 0)
		require.NotNil(t, c.MainMovie)
		assert.Equal(t, "full.mkv", c.MainMovie.File.Name)
		assert.Equal(t, 90, c.MainMovieConfidence)
	})

	t.Run("duration tie within one second", func(t *testing.T) {
		c := Classify(&DirectoryScan{Files: []FileFacts{
			videoFacts("a.mkv", 7200.0),
			videoFacts("b.mkv", 7200.5),
		}}, nil, 0)
		assert.Nil(t, c.MainMovie)
		assert.Equal(t, 0, c.MainMovieConfidence)
		assert.Equal(t, ManualRequired, c.Decision.Status)
	})

	t.Run("webhook hint overrides duration", func(t *testing.T) {
		c := Classify(&DirectoryScan{Files: []FileFacts{
			videoFacts("a.mkv", 7200),
			videoFacts("b.mkv", 7100),
		}}, &Hint{Filename: "b.mkv"}, 0)
		require.NotNil(t, c.MainMovie)
		assert.Equal(t, "b.mkv", c.MainMovie.File.Name)
		assert.Equal(t, 100, c.MainMovieConfidence)
	})

	t.Run("deleted scene keyword", func(t *testing.T) {
		c := Classify(&DirectoryScan{Files: []FileFacts{
			videoFacts("movie.mkv", 7200),
			videoFacts("opening-deleted.mkv", 300),
		}}, nil, 0)
		require.Len(t, c.Assets, 1)
		assert.Equal(t, database.SlotDeletedScene, c.Assets[0].Slot)
	})
}

func TestClassifyImages(t *testing.T) {
	t.Run("exact match with bad dimensions scores 85", func(t *testing.T) {
		c := Classify(&DirectoryScan{Files: []FileFacts{
			videoFacts("movie.mkv", 7200),
			imageFacts("poster.jpg", 300, 200),
		}}, nil, 42)
		require.Len(t, c.Assets, 1)
		assert.Equal(t, database.SlotPoster, c.Assets[0].Slot)
		assert.Equal(t, 85, c.Assets[0].Confidence)
	})

	t.Run("movie basename pattern", func(t *testing.T) {
		c := Classify(&DirectoryScan{Files: []FileFacts{
			videoFacts("movie.mkv", 7200),
			imageFacts("movie-clearlogo.png", 800, 310),
		}}, nil, 42)
		require.Len(t, c.Assets, 1)
		assert.Equal(t, database.SlotClearlogo, c.Assets[0].Slot)
		assert.Equal(t, 100, c.Assets[0].Confidence)
	})

	t.Run("alias folder.jpg is a poster", func(t *testing.T) {
		c := Classify(&DirectoryScan{Files: []FileFacts{
			videoFacts("movie.mkv", 7200),
			imageFacts("folder.jpg", 1000, 1500),
		}}, nil, 42)
		require.Len(t, c.Assets, 1)
		assert.Equal(t, database.SlotPoster, c.Assets[0].Slot)
	})

	t.Run("keyword substring needs valid dimensions", func(t *testing.T) {
		c := Classify(&DirectoryScan{Files: []FileFacts{
			videoFacts("movie.mkv", 7200),
			imageFacts("my-movie-fanart-v2.jpg", 1920, 1080),
			imageFacts("random-poster-ish.jpg", 50, 50),
		}}, nil, 42)
		require.Len(t, c.Assets, 1)
		assert.Equal(t, database.SlotFanart, c.Assets[0].Slot)
		assert.Equal(t, 80, c.Assets[0].Confidence)
		require.Len(t, c.Unknown, 1)
		assert.Equal(t, UnknownImage, c.Unknown[0].Category)
	})

	t.Run("numbered variant", func(t *testing.T) {
		c := Classify(&DirectoryScan{Files: []FileFacts{
			videoFacts("movie.mkv", 7200),
			imageFacts("fanart2.jpg", 1920, 1080),
		}}, nil, 42)
		require.Len(t, c.Assets, 1)
		assert.Equal(t, database.SlotFanart, c.Assets[0].Slot)
	})
}

func TestClassifyTheme(t *testing.T) {
	c := Classify(&DirectoryScan{Files: []FileFacts{
		videoFacts("movie.mkv", 7200),
		{Path: "/lib/m/theme.mp3", Name: "theme.mp3", Ext: ".mp3", Audio: &AudioFacts{Format: "MP3"}},
		{Path: "/lib/m/other.mp3", Name: "other.mp3", Ext: ".mp3", Audio: &AudioFacts{Format: "MP3"}},
	}}, nil, 42)

	var themes, unknownAudio int
	for _, a := range c.Assets {
		if a.Slot == database.SlotTheme {
			themes++
			assert.Equal(t, 100, a.Confidence)
		}
	}
	for _, u := range c.Unknown {
		if u.File.Name == "other.mp3" {
			unknownAudio++
		}
	}
	assert.Equal(t, 1, themes)
	assert.Equal(t, 1, unknownAudio)
}

func TestClassifySubtitle(t *testing.T) {
	c := Classify(&DirectoryScan{Files: []FileFacts{
		videoFacts("movie.mkv", 7200),
		{
			Path: "/lib/m/movie.en.srt", Name: "movie.en.srt", Ext: ".srt",
			Text: &TextFacts{IsSubtitle: true, Language: "en"},
		},
	}}, nil, 42)

	require.Len(t, c.Assets, 1)
	assert.Equal(t, database.SlotSubtitle, c.Assets[0].Slot)
	assert.Equal(t, 90, c.Assets[0].Confidence)
}

func TestClassifyDecisionGate(t *testing.T) {
	t.Run("no tmdb id requires manual", func(t *testing.T) {
		c := Classify(&DirectoryScan{Files: []FileFacts{videoFacts("movie.mkv", 7200)}}, nil, 0)
		assert.Equal(t, ManualRequired, c.Decision.Status)
		assert.Contains(t, c.Decision.Reasons, "no TMDB id available")
	})

	t.Run("user id satisfies the gate", func(t *testing.T) {
		c := Classify(&DirectoryScan{Files: []FileFacts{videoFacts("movie.mkv", 7200)}}, nil, 603)
		assert.Equal(t, CanProcess, c.Decision.Status)
	})

	t.Run("unknowns downgrade but do not block", func(t *testing.T) {
		c := Classify(&DirectoryScan{Files: []FileFacts{
			videoFacts("movie.mkv", 7200),
			{Path: "/lib/m/readme.txt", Name: "readme.txt", Ext: ".txt", Text: &TextFacts{}},
		}}, nil, 603)
		assert.Equal(t, CanProcessWithUnknowns, c.Decision.Status)
		assert.Equal(t, 80, c.Decision.Confidence)
	})
}

func TestClassifyDiscDirectory(t *testing.T) {
	t.Run("disc with NFO id passes the gate", func(t *testing.T) {
		scan := &DirectoryScan{
			DirPath: "/lib/The Matrix (1999)",
			Disc:    DiscBDMV,
			Files: []FileFacts{
				nfoFacts("index.nfo", 603),
				imageFacts("poster.jpg", 1000, 1500),
			},
		}

		c := Classify(scan, nil, 0)

		assert.Nil(t, c.MainMovie)
		assert.Equal(t, 603, c.TmdbID)
		assert.Equal(t, CanProcess, c.Decision.Status)

		var nfoConfidence int
		for _, a := range c.Assets {
			if a.Slot == database.SlotNFO {
				nfoConfidence = a.Confidence
			}
		}
		assert.Equal(t, 100, nfoConfidence, "an NFO in its disc location is certain")
	})

	t.Run("disc without any id stays manual", func(t *testing.T) {
		c := Classify(&DirectoryScan{
			DirPath: "/lib/Unknown Disc",
			Disc:    DiscVideoTS,
		}, nil, 0)

		assert.Equal(t, ManualRequired, c.Decision.Status)
		assert.Equal(t, []string{"no TMDB id available"}, c.Decision.Reasons)
	})
}

func TestClassifyLegacyDirs(t *testing.T) {
	scan := &DirectoryScan{
		Files: []FileFacts{
			videoFacts("movie.mkv", 7200),
			{
				Path: "/lib/m/extrafanarts/fanart1.jpg", Name: "fanart1.jpg", Ext: ".jpg",
				LegacyDir: "extrafanarts",
				Image:     &ImageFacts{Width: 1920, Height: 1080, AspectRatio: 1.777},
			},
		},
		Legacy: LegacyInfo{HasExtrafanarts: true, Files: []string{"extrafanarts/fanart1.jpg"}},
	}

	c := Classify(scan, nil, 603)

	require.Len(t, c.Assets, 1)
	assert.Equal(t, database.SlotFanart, c.Assets[0].Slot)
	assert.True(t, c.Assets[0].Legacy)
}

func TestClassifyIsDeterministic(t *testing.T) {
	scan := &DirectoryScan{Files: []FileFacts{
		videoFacts("movie.mkv", 7200),
		imageFacts("poster.jpg", 1000, 1500),
		nfoFacts("movie.nfo", 550),
	}}

	a := Classify(scan, nil, 0)
	b := Classify(scan, nil, 0)
	assert.Equal(t, a, b)
}
