package broadcast

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

func testRequest() models.BroadcastRequest {
	return models.BroadcastRequest{
		SourcePath:     "clip.mp4",
		DestinationKey: "abcd-efgh",
	}.WithDefaults(models.DefaultEncoding(), DefaultIngestBaseURL)
}

func indexOf(args []string, flag string) int {
	for i, a := range args {
		if a == flag {
			return i
		}
	}
	return -1
}

func valueOf(t *testing.T, args []string, flag string) string {
	t.Helper()
	i := indexOf(args, flag)
	require.GreaterOrEqual(t, i, 0, "flag %s missing from %v", flag, args)
	require.Less(t, i+1, len(args), "flag %s has no value", flag)
	return args[i+1]
}

func TestBuildArgs_VerticalMode(t *testing.T) {
	req := testRequest()
	req.VerticalMode = true

	args := BuildArgs(req, DefaultEncoderSettings(), DefaultLiveInputBaseURL)

	vf := indexOf(args, "-vf")
	require.GreaterOrEqual(t, vf, 0, "vertical mode must add a scale filter")
	assert.Equal(t, "scale=720:1280", args[vf+1])

	encoder := indexOf(args, "-c:v")
	require.GreaterOrEqual(t, encoder, 0)
	assert.Less(t, vf, encoder, "scale filter must come before the encoder arguments")

	assert.Equal(t, -1, indexOf(args, "-s"), "vertical mode must not also set -s")
}

func TestBuildArgs_NoScaleFilterByDefault(t *testing.T) {
	req := testRequest()
	req.Resolution = models.Resolution1080p

	args := BuildArgs(req, DefaultEncoderSettings(), DefaultLiveInputBaseURL)

	assert.Equal(t, -1, indexOf(args, "-vf"))
	for _, a := range args {
		assert.NotContains(t, a, "scale=")
	}
	assert.Equal(t, "1920x1080", valueOf(t, args, "-s"))
}

func TestBuildArgs_Looping(t *testing.T) {
	req := testRequest()

	req.Loop = true
	args := BuildArgs(req, DefaultEncoderSettings(), DefaultLiveInputBaseURL)
	assert.Equal(t, "-1", valueOf(t, args, "-stream_loop"))
	assert.Less(t, indexOf(args, "-stream_loop"), indexOf(args, "-i"), "input options precede -i")

	req.Loop = false
	args = BuildArgs(req, DefaultEncoderSettings(), DefaultLiveInputBaseURL)
	assert.Equal(t, "0", valueOf(t, args, "-stream_loop"))

	assert.Equal(t, 0, indexOf(args, "-re"), "file input is paced at native rate")
	assert.Equal(t, "clip.mp4", valueOf(t, args, "-i"))
}

func TestBuildArgs_EncodingParameters(t *testing.T) {
	req := testRequest()
	req.VideoBitrateKbps = 4500
	req.AudioBitrateKbps = 160
	req.FrameRate = 60
	req.KeyframeIntervalSeconds = 2

	args := BuildArgs(req, DefaultEncoderSettings(), DefaultLiveInputBaseURL)

	assert.Equal(t, "libx264", valueOf(t, args, "-c:v"))
	assert.Equal(t, "veryfast", valueOf(t, args, "-preset"))
	assert.Equal(t, "4500k", valueOf(t, args, "-b:v"))
	assert.Equal(t, "4500k", valueOf(t, args, "-maxrate"))
	assert.Equal(t, "9000k", valueOf(t, args, "-bufsize"))
	assert.Equal(t, "60", valueOf(t, args, "-r"))
	assert.Equal(t, "120", valueOf(t, args, "-g"), "GOP is frame rate times keyframe interval")
	assert.Equal(t, "120", valueOf(t, args, "-keyint_min"))
	assert.Equal(t, "0", valueOf(t, args, "-sc_threshold"))
	assert.Equal(t, "aac", valueOf(t, args, "-c:a"))
	assert.Equal(t, "160k", valueOf(t, args, "-b:a"))
	assert.Equal(t, "44100", valueOf(t, args, "-ar"))
	assert.Equal(t, "flv", valueOf(t, args, "-f"))
}

func TestBuildArgs_Destination(t *testing.T) {
	req := testRequest()

	args := BuildArgs(req, DefaultEncoderSettings(), DefaultLiveInputBaseURL)

	assert.Equal(t, "rtmp://a.rtmp.youtube.com/live2/abcd-efgh", args[len(args)-1])
	assert.Equal(t, "flv", args[len(args)-2])
}

func TestBuildArgs_LiveKeySource(t *testing.T) {
	req := models.BroadcastRequest{
		LiveKey:        "relay-key-0001",
		DestinationKey: "abcd-efgh",
		Loop:           true,
	}.WithDefaults(models.DefaultEncoding(), DefaultIngestBaseURL)

	args := BuildArgs(req, DefaultEncoderSettings(), "rtmp://127.0.0.1:1935/live/")

	assert.Equal(t, "rtmp://127.0.0.1:1935/live/relay-key-0001", valueOf(t, args, "-i"))
	assert.Equal(t, -1, indexOf(args, "-re"), "live input is not paced")
	assert.Equal(t, -1, indexOf(args, "-stream_loop"), "live input is never looped")
}

func TestBuildArgs_CustomEncoder(t *testing.T) {
	enc := EncoderSettings{VideoCodec: "h264_nvenc", Preset: "p4"}

	args := BuildArgs(testRequest(), enc, DefaultLiveInputBaseURL)

	assert.Equal(t, "h264_nvenc", valueOf(t, args, "-c:v"))
	assert.Equal(t, "p4", valueOf(t, args, "-preset"))
	assert.Equal(t, "aac", valueOf(t, args, "-c:a"), "unset fields fall back to defaults")
}

func TestRedactArgs(t *testing.T) {
	req := testRequest()
	req.DestinationKey = "abcd-1234-efgh-5678"
	args := BuildArgs(req, DefaultEncoderSettings(), DefaultLiveInputBaseURL)

	redacted := RedactArgs(args, req.DestinationKey, "")

	assert.Equal(t, "rtmp://a.rtmp.youtube.com/live2/abcd...5678", redacted[len(redacted)-1])
	assert.Contains(t, args[len(args)-1], "abcd-1234-efgh-5678", "original slice is untouched")
	for _, a := range redacted {
		assert.NotContains(t, a, "abcd-1234-efgh-5678")
	}
}

func TestCommandLine(t *testing.T) {
	req := testRequest()
	req.DestinationKey = "abcd-1234-efgh-5678"

	line := CommandLine("/usr/bin/ffmpeg", req, EncoderSettings{}, DefaultLiveInputBaseURL)

	assert.True(t, strings.HasPrefix(line, "/usr/bin/ffmpeg -re "))
	assert.NotContains(t, line, "abcd-1234-efgh-5678")
	assert.True(t, strings.HasSuffix(line, "-f flv rtmp://a.rtmp.youtube.com/live2/abcd...5678"))
}
