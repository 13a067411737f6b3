package broadcast

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/therealutkarshpriyadarshi/restream/internal/metrics"
	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

// crashTailLines is how much recent output is kept for crash reports
const crashTailLines = 20

// Handle is one supervised encoder process. Its state is only ever changed by
// the Supervisor that created it.
type Handle struct {
	id     string
	req    models.BroadcastRequest
	sink   LogSink
	tail   *LineBuffer
	logger zerolog.Logger

	// Set before the handle escapes Start, read-only afterwards
	cmd *exec.Cmd

	mu            sync.Mutex
	state         models.BroadcastState
	pid           int
	createdAt     time.Time
	startedAt     time.Time
	endedAt       time.Time
	exit          *models.ExitInfo
	stopRequested bool
	// exited is set once cmd.Wait returns; a stop arriving later is too late
	exited bool

	// Owned by the output pump goroutine
	seq uint64

	done chan struct{}
}

func newHandle(req models.BroadcastRequest, sink LogSink, logger zerolog.Logger) *Handle {
	id := uuid.New().String()
	return &Handle{
		id:        id,
		req:       req,
		sink:      sink,
		tail:      NewLineBuffer(crashTailLines),
		logger:    logger.With().Str("broadcast_id", id).Logger(),
		state:     models.BroadcastStateIdle,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// ID returns the broadcast identifier
func (h *Handle) ID() string {
	return h.id
}

// State returns the current lifecycle state
func (h *Handle) State() models.BroadcastState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// PID returns the encoder process id, or 0 if it never started
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pid
}

// Done is closed once the handle reaches Terminated
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Exit returns the exit info once the handle has terminated
func (h *Handle) Exit() (models.ExitInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exit == nil {
		return models.ExitInfo{}, false
	}
	return *h.exit, true
}

// Wait blocks until the broadcast terminates or ctx is done
func (h *Handle) Wait(ctx context.Context) (models.ExitInfo, error) {
	select {
	case <-h.done:
		info, _ := h.Exit()
		return info, nil
	case <-ctx.Done():
		return models.ExitInfo{}, ctx.Err()
	}
}

// Tail returns up to the last 20 output lines
func (h *Handle) Tail() []Line {
	return h.tail.LastN(crashTailLines)
}

// Status returns a snapshot with every secret masked
func (h *Handle) Status() models.BroadcastStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statusLocked()
}

func (h *Handle) statusLocked() models.BroadcastStatus {
	status := models.BroadcastStatus{
		ID:           h.id,
		State:        h.state,
		PID:          h.pid,
		Source:       h.req.MaskedSource(),
		Destination:  h.req.MaskedDestination(),
		Resolution:   h.req.OutputResolution(),
		FrameRate:    h.req.FrameRate,
		VideoBitrate: h.req.VideoBitrateKbps,
		AudioBitrate: h.req.AudioBitrateKbps,
		Loop:         h.req.Loop,
		VerticalMode: h.req.VerticalMode,
		CreatedAt:    h.createdAt,
	}
	if !h.startedAt.IsZero() {
		started := h.startedAt
		status.StartedAt = &started
	}
	if !h.endedAt.IsZero() {
		ended := h.endedAt
		status.EndedAt = &ended
	}
	if h.exit != nil {
		exit := *h.exit
		status.Exit = &exit
	}
	return status
}

func (h *Handle) hasExited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

// emit forwards one output line. Only the pump goroutine calls it.
func (h *Handle) emit(text string) {
	h.seq++
	line := Line{Seq: h.seq, Text: text, Time: time.Now()}

	h.tail.WriteLine(line)
	if h.sink != nil {
		h.sink.WriteLine(line)
	}
	metrics.RecordEncoderLine()
}
