// Package scanner implements directory fact gathering and the deterministic
// classification rules that turn raw files into typed media assets.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/curatarr/curatarr/internal/database"
	"github.com/curatarr/curatarr/internal/logger"
	"github.com/curatarr/curatarr/internal/mediaprobe"
	"github.com/curatarr/curatarr/internal/utils"
)

// DiscStructure marks a disc-image directory layout.
type DiscStructure string

const (
	DiscNone    DiscStructure = ""
	DiscBDMV    DiscStructure = "BDMV"
	DiscVideoTS DiscStructure = "VIDEO_TS"
)

// LegacyInfo describes deprecated asset subdirectories found in the scan.
type LegacyInfo struct {
	HasExtrafanarts bool     `json:"has_extrafanarts"`
	HasExtrathumbs  bool     `json:"has_extrathumbs"`
	Files           []string `json:"files,omitempty"`
}

// ImageFacts holds the probed image header.
type ImageFacts struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Format      string  `json:"format"`
	HasAlpha    bool    `json:"has_alpha"`
}

// VideoFacts holds the probed stream data for a video file.
type VideoFacts struct {
	QuickHash    string  `json:"quick_hash"`
	HasVideo     bool    `json:"has_video"`
	HasAudio     bool    `json:"has_audio"`
	DurationSec  float64 `json:"duration_sec"`
	Codec        string  `json:"codec"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	Bitrate      int64   `json:"bitrate"`
	HDRFormat    string  `json:"hdr_format,omitempty"`
	AudioSummary string  `json:"audio_summary,omitempty"`
	FromCache    bool    `json:"from_cache"`
}

// TextFacts holds the partial-read analysis of a text file.
type TextFacts struct {
	IsXML      bool   `json:"is_xml"`
	TmdbID     int    `json:"tmdb_id,omitempty"`
	ImdbID     string `json:"imdb_id,omitempty"`
	IsSubtitle bool   `json:"is_subtitle"`
	Language   string `json:"language,omitempty"`
}

// AudioFacts holds the embedded tag data of an audio file.
type AudioFacts struct {
	Format string `json:"format"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
}

// FileFacts is the complete typed fact record for one file.
type FileFacts struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Ext       string    `json:"ext"`
	Size      int64     `json:"size"`
	ParentDir string    `json:"parent_dir"`
	ModTime   time.Time `json:"mod_time"`
	LegacyDir string    `json:"legacy_dir,omitempty"`

	Filename FilenameFacts `json:"filename"`
	Image    *ImageFacts   `json:"image,omitempty"`
	Video    *VideoFacts   `json:"video,omitempty"`
	Text     *TextFacts    `json:"text,omitempty"`
	Audio    *AudioFacts   `json:"audio,omitempty"`

	SizeRank       int  `json:"size_rank"`
	DurationRank   int  `json:"duration_rank"`
	IsLongestVideo bool `json:"is_longest_video"`
}

// BaseName returns the file name without extension.
func (f *FileFacts) BaseName() string {
	return strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
}

// DirectoryScan is the full fact set for one directory.
type DirectoryScan struct {
	DirPath         string        `json:"dir_path"`
	Disc            DiscStructure `json:"disc_structure,omitempty"`
	Legacy          LegacyInfo    `json:"legacy"`
	Files           []FileFacts   `json:"files"`
	ScanStartedAt   time.Time     `json:"scan_started_at"`
	ScanCompletedAt time.Time     `json:"scan_completed_at"`
	ProcessingMs    int64         `json:"processing_ms"`
}

// VideoProbeCache answers quick-hash lookups against previously probed
// videos so unchanged files skip ffprobe.
type VideoProbeCache interface {
	LookupQuickHash(quickHash string) (*database.CacheVideoFile, bool)
}

// FactGatherer walks a directory and emits typed facts for each file.
type FactGatherer struct {
	prober        *mediaprobe.VideoProber
	probeCache    VideoProbeCache
	probeTimeout  time.Duration
	textReadLimit int
	ignore        func(fileName string) bool
}

// NewFactGatherer creates a gatherer. probeCache may be nil.
func NewFactGatherer(prober *mediaprobe.VideoProber, probeCache VideoProbeCache, probeTimeout time.Duration, textReadLimit int) *FactGatherer {
	if textReadLimit <= 0 {
		textReadLimit = 10 * 1024
	}
	if probeTimeout <= 0 {
		probeTimeout = 60 * time.Second
	}
	return &FactGatherer{
		prober:        prober,
		probeCache:    probeCache,
		probeTimeout:  probeTimeout,
		textReadLimit: textReadLimit,
	}
}

// SetIgnore installs a filename filter consulted before any file is probed.
func (g *FactGatherer) SetIgnore(fn func(fileName string) bool) {
	g.ignore = fn
}

func (g *FactGatherer) skip(name string) bool {
	return g.ignore != nil && g.ignore(name)
}

var legacyDirNames = []string{"extrafanarts", "extrathumbs"}

// GatherAllFacts walks dirPath plus its disc-structure and legacy
// subdirectories. Per-file probe failures leave the corresponding sub-record
// nil; directory errors are fatal.
func (g *FactGatherer) GatherAllFacts(ctx context.Context, dirPath string) (*DirectoryScan, error) {
	started := time.Now()

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dirPath, err)
	}

	scan := &DirectoryScan{
		DirPath:       dirPath,
		Disc:          detectDiscStructure(dirPath),
		ScanStartedAt: started,
	}

	for _, entry := range entries {
		if entry.IsDir() || g.skip(entry.Name()) {
			continue
		}
		facts, err := g.gatherFileFacts(ctx, filepath.Join(dirPath, entry.Name()), "")
		if err != nil {
			logger.Warn("Skipping unreadable file", "path", entry.Name(), "error", err.Error())
			continue
		}
		scan.Files = append(scan.Files, *facts)
	}

	if scan.Disc != DiscNone {
		discPath := filepath.Join(dirPath, string(scan.Disc))
		discEntries, err := os.ReadDir(discPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read disc directory %s: %w", discPath, err)
		}
		for _, entry := range discEntries {
			if entry.IsDir() || g.skip(entry.Name()) {
				continue
			}
			// Only metadata-bearing files matter inside a disc structure;
			// the stream and navigation files are the disc itself.
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if !isTextFactExt(ext) && !isImageFactExt(ext) {
				continue
			}
			facts, err := g.gatherFileFacts(ctx, filepath.Join(discPath, entry.Name()), "")
			if err != nil {
				logger.Warn("Skipping unreadable file", "path", entry.Name(), "error", err.Error())
				continue
			}
			scan.Files = append(scan.Files, *facts)
		}
	}

	for _, legacy := range legacyDirNames {
		legacyPath := filepath.Join(dirPath, legacy)
		legacyEntries, err := os.ReadDir(legacyPath)
		if err != nil {
			continue
		}
		switch legacy {
		case "extrafanarts":
			scan.Legacy.HasExtrafanarts = true
		case "extrathumbs":
			scan.Legacy.HasExtrathumbs = true
		}
		for _, entry := range legacyEntries {
			if entry.IsDir() || g.skip(entry.Name()) {
				continue
			}
			facts, err := g.gatherFileFacts(ctx, filepath.Join(legacyPath, entry.Name()), legacy)
			if err != nil {
				continue
			}
			scan.Files = append(scan.Files, *facts)
			scan.Legacy.Files = append(scan.Legacy.Files, filepath.Join(legacy, entry.Name()))
		}
	}

	assignRanks(scan)

	scan.ScanCompletedAt = time.Now()
	scan.ProcessingMs = scan.ScanCompletedAt.Sub(started).Milliseconds()
	return scan, nil
}

func (g *FactGatherer) gatherFileFacts(ctx context.Context, path, legacyDir string) (*FileFacts, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	facts := &FileFacts{
		Path:      path,
		Name:      name,
		Ext:       strings.ToLower(filepath.Ext(name)),
		Size:      info.Size(),
		ParentDir: filepath.Dir(path),
		ModTime:   info.ModTime(),
		LegacyDir: legacyDir,
		Filename:  ExtractFilenameFacts(name),
	}

	switch {
	case isImageFactExt(facts.Ext):
		if img, err := mediaprobe.ProbeImage(path); err == nil {
			facts.Image = &ImageFacts{
				Width:       img.Width,
				Height:      img.Height,
				AspectRatio: img.AspectRatio,
				Format:      img.Format,
				HasAlpha:    img.HasAlpha,
			}
		}
	case mediaprobe.IsVideoExt(path):
		facts.Video = g.gatherVideoFacts(ctx, path)
	case isTextFactExt(facts.Ext):
		if text, err := g.gatherTextFacts(path, name); err == nil {
			facts.Text = text
		}
	case mediaprobe.IsAudioExt(path):
		if tags, err := mediaprobe.ProbeAudioTags(path); err == nil {
			facts.Audio = &AudioFacts{Format: tags.Format, Title: tags.Title, Artist: tags.Artist}
		}
	}

	return facts, nil
}

// gatherVideoFacts probes a video, consulting the quick-hash cache first.
func (g *FactGatherer) gatherVideoFacts(ctx context.Context, path string) *VideoFacts {
	quickHash, err := utils.QuickHashFile(path)
	if err != nil {
		logger.Warn("Quick-hash failed", "path", path, "error", err.Error())
		quickHash = ""
	}

	if quickHash != "" && g.probeCache != nil {
		if cached, ok := g.probeCache.LookupQuickHash(quickHash); ok {
			// The quick hash only samples the file's head and tail, so a hit
			// is a candidate, not proof. Confirm with the full content hash
			// before trusting another file's probe data; on mismatch fall
			// through to a fresh probe.
			if fullHash, err := utils.HashFile(path); err == nil && fullHash == cached.ContentHash {
				return &VideoFacts{
					QuickHash:    quickHash,
					HasVideo:     true,
					HasAudio:     cached.AudioSummary != "",
					DurationSec:  cached.DurationSec,
					Codec:        cached.Codec,
					Bitrate:      cached.Bitrate,
					HDRFormat:    cached.HDRFormat,
					AudioSummary: cached.AudioSummary,
					FromCache:    true,
				}
			}
			logger.Debug("Quick-hash hit failed full-hash confirmation", "path", path)
		}
	}

	if g.prober == nil {
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, g.probeTimeout)
	defer cancel()

	probed, err := g.prober.ProbeVideo(probeCtx, path)
	if err != nil {
		logger.Warn("Video probe failed", "path", path, "error", err.Error())
		return nil
	}

	facts := &VideoFacts{
		QuickHash:    quickHash,
		HasVideo:     probed.HasVideo,
		HasAudio:     probed.HasAudio,
		DurationSec:  probed.DurationSec,
		AudioSummary: probed.AudioSummary(),
	}
	if vs := probed.PrimaryVideo(); vs != nil {
		facts.Codec = vs.Codec
		facts.Width = vs.Width
		facts.Height = vs.Height
		facts.Bitrate = vs.Bitrate
		facts.HDRFormat = vs.HDRFormat
	}
	return facts
}

func (g *FactGatherer) gatherTextFacts(path, name string) (*TextFacts, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, g.textReadLimit)
	n, _ := f.Read(buf)
	content := string(buf[:n])

	return AnalyzeTextContent(name, content), nil
}

// detectDiscStructure checks for BDMV and VIDEO_TS marker files.
func detectDiscStructure(dirPath string) DiscStructure {
	if utils.FileExists(filepath.Join(dirPath, "BDMV", "index.bdmv")) {
		return DiscBDMV
	}
	if utils.FileExists(filepath.Join(dirPath, "VIDEO_TS", "VIDEO_TS.IFO")) {
		return DiscVideoTS
	}
	return DiscNone
}

// assignRanks computes size-rank for every file and duration-rank plus the
// longest-video flag for videos.
func assignRanks(scan *DirectoryScan) {
	bySize := make([]int, len(scan.Files))
	for i := range bySize {
		bySize[i] = i
	}
	sort.SliceStable(bySize, func(a, b int) bool {
		return scan.Files[bySize[a]].Size > scan.Files[bySize[b]].Size
	})
	for rank, idx := range bySize {
		scan.Files[idx].SizeRank = rank + 1
	}

	var videos []int
	for i := range scan.Files {
		if scan.Files[i].Video != nil {
			videos = append(videos, i)
		}
	}
	sort.SliceStable(videos, func(a, b int) bool {
		return scan.Files[videos[a]].Video.DurationSec > scan.Files[videos[b]].Video.DurationSec
	})
	for rank, idx := range videos {
		scan.Files[idx].DurationRank = rank + 1
		scan.Files[idx].IsLongestVideo = rank == 0
	}
}

func isImageFactExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".tiff":
		return true
	}
	return false
}

func isTextFactExt(ext string) bool {
	switch ext {
	case ".nfo", ".srt", ".ass", ".ssa", ".vtt", ".sub", ".idx", ".txt":
		return true
	}
	return false
}
