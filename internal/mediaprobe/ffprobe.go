// Package mediaprobe wraps the external ffprobe binary and the image header
// decoders used by the fact gatherer.
package mediaprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	apperrors "github.com/curatarr/curatarr/internal/errors"
)

// FFProbeOutput represents the JSON output from ffprobe
type FFProbeOutput struct {
	Format  FFProbeFormat   `json:"format"`
	Streams []FFProbeStream `json:"streams"`
}

type FFProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type FFProbeStream struct {
	Index          int               `json:"index"`
	CodecName      string            `json:"codec_name"`
	CodecType      string            `json:"codec_type"`
	Profile        string            `json:"profile"`
	Width          int               `json:"width"`
	Height         int               `json:"height"`
	AvgFrameRate   string            `json:"avg_frame_rate"`
	BitRate        string            `json:"bit_rate"`
	Duration       string            `json:"duration"`
	ColorSpace     string            `json:"color_space"`
	ColorTransfer  string            `json:"color_transfer"`
	ColorPrimaries string            `json:"color_primaries"`
	Channels       int               `json:"channels"`
	ChannelLayout  string            `json:"channel_layout"`
	SampleRate     string            `json:"sample_rate"`
	Tags           map[string]string `json:"tags"`
}

// VideoStreamInfo is one parsed video stream.
type VideoStreamInfo struct {
	Codec       string  `json:"codec"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FPS         float64 `json:"fps"`
	Bitrate     int64   `json:"bitrate"`
	Profile     string  `json:"profile"`
	ColorSpace  string  `json:"color_space"`
	HDRFormat   string  `json:"hdr_format,omitempty"`
}

// AudioStreamInfo is one parsed audio stream.
type AudioStreamInfo struct {
	Codec         string `json:"codec"`
	Channels      int    `json:"channels"`
	ChannelLayout string `json:"channel_layout"`
	Language      string `json:"language,omitempty"`
}

// SubtitleStreamInfo is one parsed embedded subtitle stream.
type SubtitleStreamInfo struct {
	Codec    string `json:"codec"`
	Language string `json:"language,omitempty"`
}

// VideoInfo is the parsed result of probing one media file.
type VideoInfo struct {
	HasVideo        bool                 `json:"has_video"`
	HasAudio        bool                 `json:"has_audio"`
	DurationSec     float64              `json:"duration_sec"`
	ContainerFormat string               `json:"container_format"`
	VideoStreams    []VideoStreamInfo    `json:"video_streams"`
	AudioStreams    []AudioStreamInfo    `json:"audio_streams"`
	SubtitleStreams []SubtitleStreamInfo `json:"subtitle_streams"`
}

// PrimaryVideo returns the first video stream, if any.
func (v *VideoInfo) PrimaryVideo() *VideoStreamInfo {
	if len(v.VideoStreams) == 0 {
		return nil
	}
	return &v.VideoStreams[0]
}

// AudioSummary renders a compact description of the audio streams.
func (v *VideoInfo) AudioSummary() string {
	parts := make([]string, 0, len(v.AudioStreams))
	for _, a := range v.AudioStreams {
		s := a.Codec
		if a.ChannelLayout != "" {
			s += " " + a.ChannelLayout
		}
		if a.Language != "" {
			s += " (" + a.Language + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

// VideoProber probes media files through ffprobe.
type VideoProber struct {
	binaryPath string
}

// NewVideoProber creates a prober using the given ffprobe binary path.
func NewVideoProber(binaryPath string) *VideoProber {
	if binaryPath == "" {
		binaryPath = "ffprobe"
	}
	return &VideoProber{binaryPath: binaryPath}
}

// ProbeVideo runs ffprobe against the file and parses the result. Failures
// are transient: the binary may be briefly unavailable or the file still
// being written.
func (p *VideoProber) ProbeVideo(ctx context.Context, path string) (*VideoInfo, error) {
	cmd := exec.CommandContext(ctx, p.binaryPath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path)

	output, err := cmd.Output()
	if err != nil {
		return nil, apperrors.Transient(fmt.Sprintf("ffprobe failed for %s", path), err)
	}

	var raw FFProbeOutput
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, apperrors.Transient("failed to parse ffprobe output", err)
	}

	return parseProbeOutput(&raw), nil
}

func parseProbeOutput(raw *FFProbeOutput) *VideoInfo {
	info := &VideoInfo{
		ContainerFormat: raw.Format.FormatName,
		DurationSec:     parseFloat(raw.Format.Duration),
	}

	for _, stream := range raw.Streams {
		switch stream.CodecType {
		case "video":
			info.HasVideo = true
			vs := VideoStreamInfo{
				Codec:      stream.CodecName,
				Width:      stream.Width,
				Height:     stream.Height,
				FPS:        parseFrameRate(stream.AvgFrameRate),
				Bitrate:    int64(parseFloat(stream.BitRate)),
				Profile:    stream.Profile,
				ColorSpace: stream.ColorSpace,
				HDRFormat:  inferHDRFormat(stream),
			}
			info.VideoStreams = append(info.VideoStreams, vs)
		case "audio":
			info.HasAudio = true
			as := AudioStreamInfo{
				Codec:         stream.CodecName,
				Channels:      stream.Channels,
				ChannelLayout: stream.ChannelLayout,
				Language:      stream.Tags["language"],
			}
			info.AudioStreams = append(info.AudioStreams, as)
		case "subtitle":
			info.SubtitleStreams = append(info.SubtitleStreams, SubtitleStreamInfo{
				Codec:    stream.CodecName,
				Language: stream.Tags["language"],
			})
		}

		// Some containers only report duration at stream level.
		if info.DurationSec == 0 {
			info.DurationSec = parseFloat(stream.Duration)
		}
	}

	return info
}

// inferHDRFormat derives the HDR format from the transfer function: PQ
// (smpte2084) means HDR10, HLG means HLG, and BT.2020 primaries without a
// recognised transfer still count as generic HDR.
func inferHDRFormat(stream FFProbeStream) string {
	switch stream.ColorTransfer {
	case "smpte2084":
		return "HDR10"
	case "arib-std-b67":
		return "HLG"
	}
	if stream.ColorPrimaries == "bt2020" {
		return "HDR"
	}
	return ""
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// parseFrameRate parses ffprobe's "num/den" frame-rate notation.
func parseFrameRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 1 {
		return parseFloat(parts[0])
	}
	num := parseFloat(parts[0])
	den := parseFloat(parts[1])
	if den == 0 {
		return 0
	}
	return num / den
}
