package mediaprobe

import (
	"fmt"
	"os"

	"github.com/dhowden/tag"

	apperrors "github.com/curatarr/curatarr/internal/errors"
)

// AudioTagInfo is the embedded metadata of an audio file.
type AudioTagInfo struct {
	Format string `json:"format"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Year   int    `json:"year,omitempty"`
}

// ProbeAudioTags reads embedded tags from an audio file. A file with no
// readable tags still probes successfully with only the format set.
func ProbeAudioTags(path string) (*AudioTagInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Transient(fmt.Sprintf("failed to open audio file %s", path), err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		if err == tag.ErrNoTagsFound {
			return &AudioTagInfo{}, nil
		}
		return nil, apperrors.Permanent(fmt.Sprintf("failed to read audio tags from %s", path), err)
	}

	return &AudioTagInfo{
		Format: string(m.FileType()),
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
		Year:   m.Year(),
	}, nil
}
