package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/restream/internal/broadcast"
	"github.com/therealutkarshpriyadarshi/restream/internal/config"
	"github.com/therealutkarshpriyadarshi/restream/internal/logging"
	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

// StreamKeyEnv supplies the destination key when --key is omitted
const StreamKeyEnv = "RESTREAM_STREAM_KEY"

type requestFlags struct {
	source       string
	liveKey      string
	key          string
	url          string
	resolution   string
	videoBitrate int
	audioBitrate int
	frameRate    int
	keyframe     int
	loop         bool
	vertical     bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.source, "source", "s", "", "media file to broadcast")
	fs.StringVar(&f.liveKey, "live-key", "", "relay a live input published under this key instead of a file")
	fs.StringVarP(&f.key, "key", "k", "", "destination stream key (default $"+StreamKeyEnv+")")
	fs.StringVar(&f.url, "url", "", "destination ingest base URL")
	fs.StringVar(&f.resolution, "resolution", "", "output frame size, e.g. 1280x720")
	fs.IntVar(&f.videoBitrate, "video-bitrate", 0, "video bitrate in kbps")
	fs.IntVar(&f.audioBitrate, "audio-bitrate", 0, "audio bitrate in kbps")
	fs.IntVar(&f.frameRate, "fps", 0, "output frame rate")
	fs.IntVar(&f.keyframe, "keyframe-interval", 0, "keyframe interval in seconds")
	fs.BoolVar(&f.loop, "loop", false, "loop the source file indefinitely")
	fs.BoolVar(&f.vertical, "vertical", false, "scale to a 720x1280 portrait frame")
}

// request builds the BroadcastRequest; unset fields take the configured defaults later
func (f *requestFlags) request() (models.BroadcastRequest, error) {
	req := models.BroadcastRequest{
		SourcePath:              f.source,
		LiveKey:                 f.liveKey,
		DestinationBaseURL:      f.url,
		DestinationKey:          f.key,
		VideoBitrateKbps:        f.videoBitrate,
		AudioBitrateKbps:        f.audioBitrate,
		FrameRate:               f.frameRate,
		KeyframeIntervalSeconds: f.keyframe,
		Loop:                    f.loop,
		VerticalMode:            f.vertical,
	}
	if req.DestinationKey == "" {
		req.DestinationKey = os.Getenv(StreamKeyEnv)
	}
	if f.resolution != "" {
		res, err := models.ParseResolution(f.resolution)
		if err != nil {
			return req, &exitError{code: 1, err: fmt.Errorf("invalid --resolution: %w", err)}
		}
		req.Resolution = res
	}
	return req, nil
}

func newSupervisor(cfg *config.Config, stderr io.Writer) (*broadcast.Supervisor, *logging.Logger, error) {
	logger := logging.New(stderr, logging.Config{Level: cfg.Logging.Level, Format: "console"})

	opts, err := broadcast.OptionsFromConfig(cfg.Broadcast, logger.Zerolog())
	if err != nil {
		return nil, nil, err
	}
	return broadcast.NewSupervisor(opts), logger, nil
}

// exitErrorFor maps how a broadcast ended onto the command result
func exitErrorFor(info models.ExitInfo) error {
	if info.Clean() {
		return nil
	}

	code := 1
	if info.Reason == models.ExitReasonCrashed && info.ExitCode > 0 {
		code = info.ExitCode
	}
	msg := info.Error
	if msg == "" {
		msg = string(info.Reason)
	}
	return &exitError{code: code, err: errors.New(msg)}
}

func newPushCmd(root *rootOptions) *cobra.Command {
	flags := &requestFlags{}

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Start a broadcast and stream encoder output until it ends",
		Long: "Start a broadcast from the given flags and print encoder output to stdout.\n" +
			"Interrupting the command stops the encoder gracefully.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			req, err := flags.request()
			if err != nil {
				return err
			}

			sup, logger, err := newSupervisor(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			sup.AddObserver(broadcast.ObserverFunc(logger.LogBroadcastEvent))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return push(ctx, sup, req, cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	return cmd
}

// push runs one broadcast to completion, stopping it when ctx is cancelled
func push(ctx context.Context, sup *broadcast.Supervisor, req models.BroadcastRequest, out io.Writer) error {
	sink := broadcast.SinkFunc(func(line broadcast.Line) {
		fmt.Fprintln(out, line.Text)
	})

	h, err := sup.Start(ctx, req, sink)
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	select {
	case <-h.Done():
	case <-ctx.Done():
		opts := sup.Options()
		stopCtx, cancel := context.WithTimeout(context.Background(), opts.GracePeriod+opts.KillTimeout+opts.DrainTimeout+time.Second)
		defer cancel()
		if err := sup.Stop(stopCtx, h); err != nil {
			return &exitError{code: 1, err: err}
		}
	}

	info, err := h.Wait(context.Background())
	if err != nil {
		return err
	}
	return exitErrorFor(info)
}

func newArgsCmd(root *rootOptions) *cobra.Command {
	flags := &requestFlags{}

	cmd := &cobra.Command{
		Use:   "args",
		Short: "Print the encoder command line without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			req, err := flags.request()
			if err != nil {
				return err
			}

			sup, _, err := newSupervisor(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), sup.CommandLine(req))
			if err := sup.Validate(sup.Prepare(req)); err != nil {
				return &exitError{code: 1, err: err}
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
