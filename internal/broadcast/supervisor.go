package broadcast

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/therealutkarshpriyadarshi/restream/internal/metrics"
	"github.com/therealutkarshpriyadarshi/restream/internal/tracing"
	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

// Default supervisor settings
const (
	DefaultFFmpegPath       = "ffmpeg"
	DefaultIngestBaseURL    = "rtmp://a.rtmp.youtube.com/live2"
	DefaultLiveInputBaseURL = "rtmp://127.0.0.1:1935/live"
	DefaultGracePeriod      = 5 * time.Second
	DefaultKillTimeout      = 5 * time.Second
	DefaultDrainTimeout     = 2 * time.Second
)

// Observer is told about every state transition, in order. Implementations
// must return quickly and must not call back into the Supervisor; reading the
// Handle is fine.
type Observer interface {
	BroadcastChanged(status models.BroadcastStatus)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(models.BroadcastStatus)

// BroadcastChanged calls f(status)
func (f ObserverFunc) BroadcastChanged(status models.BroadcastStatus) {
	f(status)
}

// Options configures a Supervisor
type Options struct {
	FFmpegPath       string
	IngestBaseURL    string
	LiveInputBaseURL string
	Encoder          EncoderSettings
	Defaults         models.EncodingDefaults

	// GracePeriod is how long a stopped encoder gets between SIGTERM and SIGKILL
	GracePeriod time.Duration
	// KillTimeout bounds the wait for exit after SIGKILL
	KillTimeout time.Duration
	// DrainTimeout bounds reading leftover output once the encoder has exited
	DrainTimeout time.Duration

	Logger    *zerolog.Logger
	Observers []Observer
}

// Supervisor runs at most one encoder process at a time
type Supervisor struct {
	opts   Options
	logger zerolog.Logger

	// mu guards current and serialises Start
	mu      sync.Mutex
	current *Handle

	// emitMu orders state changes with their observer notifications
	emitMu    sync.Mutex
	observers []Observer
}

// NewSupervisor creates a Supervisor, filling unset options with defaults
func NewSupervisor(opts Options) *Supervisor {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = DefaultFFmpegPath
	}
	if opts.IngestBaseURL == "" {
		opts.IngestBaseURL = DefaultIngestBaseURL
	}
	if opts.LiveInputBaseURL == "" {
		opts.LiveInputBaseURL = DefaultLiveInputBaseURL
	}
	opts.Encoder = opts.Encoder.withDefaults()
	if opts.Defaults == (models.EncodingDefaults{}) {
		opts.Defaults = models.DefaultEncoding()
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = DefaultKillTimeout
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Supervisor{
		opts:      opts,
		logger:    logger.With().Str("component", "broadcast").Logger(),
		observers: append([]Observer(nil), opts.Observers...),
	}
}

// AddObserver registers an observer for subsequent transitions
func (s *Supervisor) AddObserver(o Observer) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.observers = append(s.observers, o)
}

// Options returns the effective options
func (s *Supervisor) Options() Options {
	return s.opts
}

// Prepare applies supervisor defaults to a request without starting anything
func (s *Supervisor) Prepare(req models.BroadcastRequest) models.BroadcastRequest {
	return req.WithDefaults(s.opts.Defaults, s.opts.IngestBaseURL)
}

// CommandLine renders the redacted encoder invocation for a request
func (s *Supervisor) CommandLine(req models.BroadcastRequest) string {
	return CommandLine(s.opts.FFmpegPath, s.Prepare(req), s.opts.Encoder, s.opts.LiveInputBaseURL)
}

// Start validates req and launches the encoder. Output lines go to sink, which may be nil.
//
// Validation and single-flight failures return a nil handle. A spawn failure
// returns the Terminated handle together with a *SpawnError.
func (s *Supervisor) Start(ctx context.Context, req models.BroadcastRequest, sink LogSink) (*Handle, error) {
	span, _ := tracing.StartSpan(ctx, "broadcast.start")
	defer tracing.FinishSpan(span)

	req = s.Prepare(req)
	if err := s.Validate(req); err != nil {
		metrics.RecordBroadcastStart("invalid")
		tracing.LogError(span, err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev := s.current; prev != nil {
		switch prev.State() {
		case models.BroadcastStateStarting, models.BroadcastStateRunning:
			metrics.RecordBroadcastStart("already_running")
			err := &AlreadyRunningError{ActiveID: prev.id}
			tracing.LogError(span, err)
			return nil, err
		case models.BroadcastStateStopping:
			// Superseded: make sure the old encoder cannot keep publishing
			prev.logger.Warn().Int("pid", prev.PID()).Msg("Force-killing broadcast still stopping before new start")
			if err := killGroup(prev.cmd.Process); err != nil {
				prev.logger.Warn().Err(err).Msg("Failed to kill superseded broadcast")
			}
		}
	}

	h := newHandle(req, sink, s.logger)
	s.current = h
	tracing.SetTag(span, "broadcast_id", h.id)

	s.transition(h, models.BroadcastStateStarting, nil)

	args := BuildArgs(req, s.opts.Encoder, s.opts.LiveInputBaseURL)
	h.logger.Info().
		Str("source", req.MaskedSource()).
		Str("destination", req.MaskedDestination()).
		Strs("args", RedactArgs(args, req.DestinationKey, req.LiveKey)).
		Msg("Starting broadcast")

	cmd, out, err := s.spawn(args)
	if err != nil {
		spawnErr := &SpawnError{Path: s.opts.FFmpegPath, Err: err}
		s.transition(h, models.BroadcastStateTerminated, func() {
			h.endedAt = time.Now()
			h.exit = &models.ExitInfo{
				Reason:   models.ExitReasonSpawnFailed,
				ExitCode: -1,
				Error:    spawnErr.Error(),
				EndedAt:  h.endedAt,
			}
		})
		close(h.done)
		h.tail.Close()

		metrics.RecordBroadcastStart("spawn_failed")
		metrics.RecordError("broadcast", "spawn")
		tracing.LogError(span, spawnErr)
		h.logger.Error().Err(err).Str("path", s.opts.FFmpegPath).Msg("Failed to spawn encoder")
		return h, spawnErr
	}

	h.cmd = cmd
	s.transition(h, models.BroadcastStateRunning, func() {
		h.pid = cmd.Process.Pid
		h.startedAt = time.Now()
	})
	metrics.RecordBroadcastStart("ok")
	tracing.SetTag(span, "pid", cmd.Process.Pid)

	go s.monitor(h, cmd, out)

	return h, nil
}

// spawn starts the encoder with stdout and stderr sharing one pipe, so the
// reader sees the exact interleaving the process produced.
func (s *Supervisor) spawn(args []string) (*exec.Cmd, *os.File, error) {
	// Not CommandContext: a broadcast outlives the request that started it
	cmd := exec.Command(s.opts.FFmpegPath, args...)
	setProcessGroup(cmd)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, nil, err
	}

	// The child holds its own copy of the write end
	w.Close()
	return cmd, r, nil
}

// monitor forwards output and records the exit. It is the only path from
// Running or Stopping into Terminated.
func (s *Supervisor) monitor(h *Handle, cmd *exec.Cmd, out *os.File) {
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		if err := pumpLines(out, h.emit); err != nil && !errors.Is(err, os.ErrClosed) {
			h.logger.Warn().Err(err).Msg("Encoder output read failed")
		}
	}()

	waitErr := cmd.Wait()

	// Classify against stops that arrived before the exit, not during the drain
	h.mu.Lock()
	h.exited = true
	stopRequested := h.stopRequested
	h.mu.Unlock()

	// Leftover output normally drains at once; a grandchild that inherited
	// the pipe can keep it open, so stop reading after DrainTimeout
	drain := time.NewTimer(s.opts.DrainTimeout)
	select {
	case <-pumpDone:
	case <-drain.C:
		h.logger.Warn().Msg("Encoder output still open after exit, closing")
		out.Close()
		<-pumpDone
	}
	drain.Stop()
	out.Close()

	code, signal := exitDetails(cmd.ProcessState)

	info := models.ExitInfo{ExitCode: code, Signal: signal}
	switch {
	case stopRequested:
		info.Reason = models.ExitReasonRequestedStop
	case waitErr == nil && code == 0:
		info.Reason = models.ExitReasonCompleted
	default:
		info.Reason = models.ExitReasonCrashed
		failure := &ProcessFailure{ExitCode: code, Signal: signal}
		info.Error = failure.Error()
	}

	var runFor time.Duration
	s.transition(h, models.BroadcastStateTerminated, func() {
		h.endedAt = time.Now()
		info.EndedAt = h.endedAt
		h.exit = &info
		runFor = h.endedAt.Sub(h.startedAt)
	})
	close(h.done)
	h.tail.Close()

	metrics.RecordBroadcastExit(string(info.Reason), runFor.Seconds())

	evt := h.logger.Info()
	if info.Reason == models.ExitReasonCrashed {
		metrics.RecordError("broadcast", "crash")
		tail := h.Tail()
		lines := make([]string, len(tail))
		for i, l := range tail {
			lines[i] = l.Text
		}
		evt = h.logger.Error().Strs("output_tail", lines)
	}
	evt.
		Str("reason", string(info.Reason)).
		Int("exit_code", info.ExitCode).
		Str("signal", info.Signal).
		Dur("uptime", runFor).
		Msg("Broadcast terminated")
}

// Stop requests the encoder to exit: SIGTERM to its process group, then
// SIGKILL once GracePeriod passes or ctx is done. Stopping a handle that is
// idle, terminated or nil is a no-op. An error is returned only when the
// process outlives SIGKILL by KillTimeout.
func (s *Supervisor) Stop(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}

	span, _ := tracing.StartSpan(ctx, "broadcast.stop")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "broadcast_id", h.id)

	began := time.Now()
	if !s.transition(h, models.BroadcastStateStopping, func() { h.stopRequested = true }) {
		if h.State() == models.BroadcastStateStopping || h.hasExited() {
			// Another caller is already stopping it, or it exited on its own
			select {
			case <-h.done:
			case <-ctx.Done():
			}
		}
		return nil
	}

	proc := h.cmd.Process
	h.logger.Info().Int("pid", proc.Pid).Msg("Stopping broadcast")
	if err := terminateGroup(proc); err != nil {
		h.logger.Warn().Err(err).Int("pid", proc.Pid).Msg("Failed to send SIGTERM")
	}

	grace := time.NewTimer(s.opts.GracePeriod)
	defer grace.Stop()

	forced := false
	select {
	case <-h.done:
	case <-grace.C:
		forced = true
	case <-ctx.Done():
		forced = true
	}

	if forced {
		h.logger.Warn().Int("pid", proc.Pid).Msg("Encoder did not exit after SIGTERM, sending SIGKILL to process group")
		if err := killGroup(proc); err != nil {
			h.logger.Warn().Err(err).Int("pid", proc.Pid).Msg("Failed to send SIGKILL")
		}

		kill := time.NewTimer(s.opts.KillTimeout)
		defer kill.Stop()
		select {
		case <-h.done:
		case <-kill.C:
			metrics.RecordBroadcastStop(time.Since(began).Seconds(), true)
			err := fmt.Errorf("broadcast %s: encoder pid %d still alive %s after SIGKILL", h.id, proc.Pid, s.opts.KillTimeout)
			tracing.LogError(span, err)
			return err
		}
	}

	metrics.RecordBroadcastStop(time.Since(began).Seconds(), forced)
	tracing.SetTag(span, "forced", forced)
	return nil
}

// Status returns the handle's snapshot; a nil handle reports Idle
func (s *Supervisor) Status(h *Handle) models.BroadcastStatus {
	if h == nil {
		return models.IdleStatus()
	}
	return h.Status()
}

// Current returns the most recent handle that has not been released, or nil
func (s *Supervisor) Current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Release drops a terminated handle so the supervisor reports Idle again.
// It returns false if the handle has not terminated.
func (s *Supervisor) Release(h *Handle) bool {
	if h == nil || h.State() != models.BroadcastStateTerminated {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == h {
		s.current = nil
	}
	return true
}

// Shutdown stops the current broadcast, if any, and waits for it to exit
func (s *Supervisor) Shutdown(ctx context.Context) error {
	h := s.Current()
	if h == nil {
		return nil
	}
	if err := s.Stop(ctx, h); err != nil {
		return err
	}
	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Validate checks a request that already has defaults applied
func (s *Supervisor) Validate(req models.BroadcastRequest) error {
	hasFile := req.SourcePath != ""
	hasLive := req.LiveKey != ""
	if hasFile == hasLive {
		return &ValidationError{Field: "source", Reason: "exactly one of source_path and live_key must be set"}
	}
	if strings.TrimSpace(req.DestinationKey) == "" {
		return &ValidationError{Field: "destination_key", Reason: "must not be empty"}
	}
	if req.DestinationBaseURL == "" {
		return &ValidationError{Field: "destination_base_url", Reason: "must not be empty"}
	}

	if hasFile {
		if err := checkSourceFile(req.SourcePath); err != nil {
			return err
		}
	}

	switch {
	case req.VideoBitrateKbps <= 0:
		return &ValidationError{Field: "video_bitrate_kbps", Reason: "must be positive"}
	case req.AudioBitrateKbps <= 0:
		return &ValidationError{Field: "audio_bitrate_kbps", Reason: "must be positive"}
	case req.FrameRate <= 0:
		return &ValidationError{Field: "frame_rate", Reason: "must be positive"}
	case req.KeyframeIntervalSeconds <= 0:
		return &ValidationError{Field: "keyframe_interval_seconds", Reason: "must be positive"}
	case !req.Resolution.Valid():
		return &ValidationError{Field: "resolution", Reason: "width and height must be positive"}
	}
	return nil
}

func checkSourceFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &ValidationError{Field: "source_path", Reason: fmt.Sprintf("%s does not exist", path)}
		}
		return &ValidationError{Field: "source_path", Reason: fmt.Sprintf("cannot stat %s: %v", path, err)}
	}
	if !info.Mode().IsRegular() {
		return &ValidationError{Field: "source_path", Reason: fmt.Sprintf("%s is not a regular file", path)}
	}
	if info.Size() == 0 {
		return &ValidationError{Field: "source_path", Reason: fmt.Sprintf("%s is empty", path)}
	}

	f, err := os.Open(path)
	if err != nil {
		return &ValidationError{Field: "source_path", Reason: fmt.Sprintf("%s is not readable: %v", path, err)}
	}
	f.Close()
	return nil
}

var validTransitions = map[models.BroadcastState][]models.BroadcastState{
	models.BroadcastStateIdle:     {models.BroadcastStateStarting},
	models.BroadcastStateStarting: {models.BroadcastStateRunning, models.BroadcastStateTerminated},
	models.BroadcastStateRunning:  {models.BroadcastStateStopping, models.BroadcastStateTerminated},
	models.BroadcastStateStopping: {models.BroadcastStateTerminated},
}

func canTransition(from, to models.BroadcastState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves h to state to, applying mutate under the handle lock.
// It reports false, changing nothing, if the move is not allowed.
func (s *Supervisor) transition(h *Handle, to models.BroadcastState, mutate func()) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	h.mu.Lock()
	from := h.state
	if !canTransition(from, to) || (to == models.BroadcastStateStopping && h.exited) {
		h.mu.Unlock()
		return false
	}
	h.state = to
	if mutate != nil {
		mutate()
	}
	status := h.statusLocked()
	h.mu.Unlock()

	switch {
	case to.Active():
		metrics.SetBroadcastActive(true)
	case from.Active():
		metrics.SetBroadcastActive(false)
	}

	h.logger.Debug().
		Str("from", from.String()).
		Str("state", to.String()).
		Int("pid", status.PID).
		Msg("Broadcast state changed")

	for _, o := range s.observers {
		o.BroadcastChanged(status)
	}
	return true
}
