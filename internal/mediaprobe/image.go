package mediaprobe

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/chai2010/webp"

	apperrors "github.com/curatarr/curatarr/internal/errors"
)

// ImageInfo is the parsed header of an image file.
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Format      string  `json:"format"`
	AspectRatio float64 `json:"aspect_ratio"`
	HasAlpha    bool    `json:"has_alpha"`
}

// ProbeImage decodes only the image header, never the full pixel data.
func ProbeImage(path string) (*ImageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Transient(fmt.Sprintf("failed to open image %s", path), err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, apperrors.Permanent(fmt.Sprintf("failed to decode image %s", path), err)
	}

	info := &ImageInfo{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: format,
	}
	if cfg.Height > 0 {
		info.AspectRatio = float64(cfg.Width) / float64(cfg.Height)
	}

	// Alpha capability from the container format; good enough to tell logos
	// and cleararts apart from opaque posters.
	switch format {
	case "png", "webp", "gif":
		info.HasAlpha = true
	}

	return info, nil
}

// IsImageExt reports whether the extension is one of the recognised image
// formats.
func IsImageExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif":
		return true
	}
	return false
}

// IsVideoExt reports whether the extension is a recognised video container.
func IsVideoExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mkv", ".mp4", ".avi", ".m2ts", ".ts", ".mov", ".wmv", ".webm", ".mpg", ".mpeg", ".m4v", ".iso":
		return true
	}
	return false
}

// IsAudioExt reports whether the extension is a recognised audio format.
func IsAudioExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3", ".flac", ".m4a", ".ogg", ".wav", ".aac", ".wma", ".opus":
		return true
	}
	return false
}

// IsSubtitleExt reports whether the extension is a recognised subtitle format.
func IsSubtitleExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".srt", ".sub", ".ass", ".ssa", ".vtt", ".idx":
		return true
	}
	return false
}
