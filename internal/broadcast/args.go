package broadcast

import (
	"fmt"
	"strings"

	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

// EncoderSettings are the encoder knobs that are fixed per deployment rather than per request
type EncoderSettings struct {
	VideoCodec      string
	Preset          string
	AudioCodec      string
	AudioSampleRate int
	OutputFormat    string
}

// DefaultEncoderSettings returns libx264/veryfast + AAC 44.1kHz into FLV, the RTMP norm
func DefaultEncoderSettings() EncoderSettings {
	return EncoderSettings{
		VideoCodec:      "libx264",
		Preset:          "veryfast",
		AudioCodec:      "aac",
		AudioSampleRate: 44100,
		OutputFormat:    "flv",
	}
}

func (e EncoderSettings) withDefaults() EncoderSettings {
	d := DefaultEncoderSettings()
	if e.VideoCodec == "" {
		e.VideoCodec = d.VideoCodec
	}
	if e.Preset == "" {
		e.Preset = d.Preset
	}
	if e.AudioCodec == "" {
		e.AudioCodec = d.AudioCodec
	}
	if e.AudioSampleRate == 0 {
		e.AudioSampleRate = d.AudioSampleRate
	}
	if e.OutputFormat == "" {
		e.OutputFormat = d.OutputFormat
	}
	return e
}

// BuildArgs constructs the encoder argument list for a request that already has
// defaults applied. The destination key is joined onto the base URL here and
// nowhere else.
func BuildArgs(req models.BroadcastRequest, enc EncoderSettings, liveInputBaseURL string) []string {
	enc = enc.withDefaults()

	var args []string

	// Input
	if req.HasFileSource() {
		loop := "0"
		if req.Loop {
			loop = "-1"
		}
		args = append(args,
			"-re", // Read at native frame rate
			"-stream_loop", loop,
			"-i", req.SourcePath,
		)
	} else {
		args = append(args, "-i", strings.TrimRight(liveInputBaseURL, "/")+"/"+req.LiveKey)
	}

	// Portrait output is forced through a scale filter ahead of the encoder
	if req.VerticalMode {
		out := models.VerticalResolution
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", out.Width, out.Height))
	}

	// Video
	args = append(args,
		"-c:v", enc.VideoCodec,
		"-preset", enc.Preset,
		"-b:v", fmt.Sprintf("%dk", req.VideoBitrateKbps),
		"-maxrate", fmt.Sprintf("%dk", req.VideoBitrateKbps),
		"-bufsize", fmt.Sprintf("%dk", req.VideoBitrateKbps*2),
	)
	if !req.VerticalMode {
		args = append(args, "-s", req.Resolution.String())
	}

	gop := req.GOPSize()
	args = append(args,
		"-r", fmt.Sprintf("%d", req.FrameRate),
		"-g", fmt.Sprintf("%d", gop),
		"-keyint_min", fmt.Sprintf("%d", gop),
		"-sc_threshold", "0", // Keep GOPs fixed so ingest sees a keyframe every interval
	)

	// Audio
	args = append(args,
		"-c:a", enc.AudioCodec,
		"-b:a", fmt.Sprintf("%dk", req.AudioBitrateKbps),
		"-ar", fmt.Sprintf("%d", enc.AudioSampleRate),
	)

	// Output
	args = append(args,
		"-f", enc.OutputFormat,
		req.DestinationBaseURL+"/"+req.DestinationKey,
	)

	return args
}

// RedactArgs returns a copy of args with every secret replaced by its mask
func RedactArgs(args []string, secrets ...string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		for _, secret := range secrets {
			if secret == "" {
				continue
			}
			arg = strings.ReplaceAll(arg, secret, models.MaskStreamKey(secret))
		}
		out[i] = arg
	}
	return out
}

// CommandLine renders a redacted invocation suitable for display
func CommandLine(path string, req models.BroadcastRequest, enc EncoderSettings, liveInputBaseURL string) string {
	args := RedactArgs(BuildArgs(req, enc, liveInputBaseURL), req.DestinationKey, req.LiveKey)
	return path + " " + strings.Join(args, " ")
}
