package broadcast

import (
	"github.com/rs/zerolog"

	"github.com/therealutkarshpriyadarshi/restream/internal/config"
)

// OptionsFromConfig maps the broadcast config section onto supervisor options
func OptionsFromConfig(cfg config.BroadcastConfig, logger *zerolog.Logger) (Options, error) {
	defaults, err := cfg.EncodingDefaults()
	if err != nil {
		return Options{}, err
	}

	return Options{
		FFmpegPath:       cfg.FFmpegPath,
		IngestBaseURL:    cfg.IngestURL,
		LiveInputBaseURL: cfg.LiveInputURL,
		Encoder: EncoderSettings{
			VideoCodec:      cfg.VideoCodec,
			Preset:          cfg.Preset,
			AudioCodec:      cfg.AudioCodec,
			AudioSampleRate: cfg.AudioSampleRate,
			OutputFormat:    cfg.OutputFormat,
		},
		Defaults:     defaults,
		GracePeriod:  cfg.GracePeriod,
		KillTimeout:  cfg.KillTimeout,
		DrainTimeout: cfg.DrainTimeout,
		Logger:       logger,
	}, nil
}
