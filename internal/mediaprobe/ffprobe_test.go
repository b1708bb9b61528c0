package mediaprobe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProbeJSON = `{
	"format": {
		"filename": "movie.mkv",
		"format_name": "matroska,webm",
		"duration": "7260.512000",
		"size": "15032385536",
		"bit_rate": "16567000"
	},
	"streams": [
		{
			"index": 0,
			"codec_name": "hevc",
			"codec_type": "video",
			"profile": "Main 10",
			"width": 3840,
			"height": 2160,
			"avg_frame_rate": "24000/1001",
			"color_space": "bt2020nc",
			"color_transfer": "smpte2084",
			"color_primaries": "bt2020"
		},
		{
			"index": 1,
			"codec_name": "truehd",
			"codec_type": "audio",
			"channels": 8,
			"channel_layout": "7.1",
			"tags": {"language": "eng"}
		},
		{
			"index": 2,
			"codec_name": "subrip",
			"codec_type": "subtitle",
			"tags": {"language": "eng"}
		}
	]
}`

func TestParseProbeOutput(t *testing.T) {
	var raw FFProbeOutput
	require.NoError(t, json.Unmarshal([]byte(sampleProbeJSON), &raw))

	info := parseProbeOutput(&raw)

	assert.True(t, info.HasVideo)
	assert.True(t, info.HasAudio)
	assert.InDelta(t, 7260.512, info.DurationSec, 0.001)
	assert.Equal(t, "matroska,webm", info.ContainerFormat)

	require.Len(t, info.VideoStreams, 1)
	vs := info.PrimaryVideo()
	require.NotNil(t, vs)
	assert.Equal(t, "hevc", vs.Codec)
	assert.Equal(t, 3840, vs.Width)
	assert.Equal(t, 2160, vs.Height)
	assert.InDelta(t, 23.976, vs.FPS, 0.001)
	assert.Equal(t, "HDR10", vs.HDRFormat)

	require.Len(t, info.AudioStreams, 1)
	assert.Equal(t, "truehd", info.AudioStreams[0].Codec)
	assert.Equal(t, 8, info.AudioStreams[0].Channels)
	assert.Equal(t, "eng", info.AudioStreams[0].Language)

	require.Len(t, info.SubtitleStreams, 1)
	assert.Equal(t, "eng", info.SubtitleStreams[0].Language)

	assert.Equal(t, "truehd 7.1 (eng)", info.AudioSummary())
}

func TestInferHDRFormat(t *testing.T) {
	tests := []struct {
		name   string
		stream FFProbeStream
		want   string
	}{
		{"hdr10", FFProbeStream{ColorTransfer: "smpte2084"}, "HDR10"},
		{"hlg", FFProbeStream{ColorTransfer: "arib-std-b67"}, "HLG"},
		{"bt2020 only", FFProbeStream{ColorPrimaries: "bt2020"}, "HDR"},
		{"sdr", FFProbeStream{ColorTransfer: "bt709", ColorPrimaries: "bt709"}, ""},
		{"empty", FFProbeStream{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferHDRFormat(tt.stream))
		})
	}
}

func TestParseFrameRate(t *testing.T) {
	assert.InDelta(t, 23.976, parseFrameRate("24000/1001"), 0.001)
	assert.Equal(t, 25.0, parseFrameRate("25/1"))
	assert.Equal(t, 0.0, parseFrameRate("0/0"))
	assert.Equal(t, 0.0, parseFrameRate(""))
	assert.Equal(t, 30.0, parseFrameRate("30"))
}

func TestExtensionClassifiers(t *testing.T) {
	assert.True(t, IsVideoExt("/lib/Movie (2020)/movie.MKV"))
	assert.True(t, IsImageExt("poster.jpg"))
	assert.True(t, IsAudioExt("theme.mp3"))
	assert.True(t, IsSubtitleExt("movie.en.srt"))
	assert.False(t, IsVideoExt("movie.nfo"))
	assert.False(t, IsImageExt("movie.mkv"))
}
