package models

import (
	"fmt"
	"strings"
	"time"
)

// BroadcastState is the lifecycle state of a supervised broadcast process
type BroadcastState string

// BroadcastState constants
const (
	BroadcastStateIdle       BroadcastState = "idle"       // No process
	BroadcastStateStarting   BroadcastState = "starting"   // Spawning
	BroadcastStateRunning    BroadcastState = "running"    // Process confirmed alive
	BroadcastStateStopping   BroadcastState = "stopping"   // Stop requested, waiting for exit
	BroadcastStateTerminated BroadcastState = "terminated" // Absorbing
)

// Active reports whether the state counts against the single-broadcast limit
func (s BroadcastState) Active() bool {
	return s == BroadcastStateStarting || s == BroadcastStateRunning
}

// String implements fmt.Stringer
func (s BroadcastState) String() string {
	return string(s)
}

// EncodingDefaults holds the encoder parameters applied to requests that leave them unset
type EncodingDefaults struct {
	VideoBitrateKbps        int        `json:"video_bitrate_kbps"`
	AudioBitrateKbps        int        `json:"audio_bitrate_kbps"`
	FrameRate               int        `json:"frame_rate"`
	Resolution              Resolution `json:"resolution"`
	KeyframeIntervalSeconds int        `json:"keyframe_interval_seconds"`
}

// DefaultEncoding returns the recommended 720p30 settings
func DefaultEncoding() EncodingDefaults {
	return EncodingDefaults{
		VideoBitrateKbps:        3000,
		AudioBitrateKbps:        128,
		FrameRate:               30,
		Resolution:              Resolution720p,
		KeyframeIntervalSeconds: 2,
	}
}

// BroadcastRequest describes one attempt to push media to an ingest endpoint.
// Exactly one of SourcePath and LiveKey must be set.
type BroadcastRequest struct {
	SourcePath string `json:"source_path,omitempty"`
	LiveKey    string `json:"live_key,omitempty"`

	DestinationBaseURL string `json:"destination_base_url,omitempty"`
	DestinationKey     string `json:"destination_key"`

	VideoBitrateKbps        int        `json:"video_bitrate_kbps,omitempty"`
	AudioBitrateKbps        int        `json:"audio_bitrate_kbps,omitempty"`
	FrameRate               int        `json:"frame_rate,omitempty"`
	Resolution              Resolution `json:"resolution,omitempty"`
	KeyframeIntervalSeconds int        `json:"keyframe_interval_seconds,omitempty"`
	Loop                    bool       `json:"loop"`
	VerticalMode            bool       `json:"vertical_mode"`
}

// WithDefaults returns a copy with every unset encoding parameter and the
// destination base URL filled in
func (r BroadcastRequest) WithDefaults(d EncodingDefaults, baseURL string) BroadcastRequest {
	if r.DestinationBaseURL == "" {
		r.DestinationBaseURL = baseURL
	}
	r.DestinationBaseURL = strings.TrimRight(r.DestinationBaseURL, "/")

	if r.VideoBitrateKbps == 0 {
		r.VideoBitrateKbps = d.VideoBitrateKbps
	}
	if r.AudioBitrateKbps == 0 {
		r.AudioBitrateKbps = d.AudioBitrateKbps
	}
	if r.FrameRate == 0 {
		r.FrameRate = d.FrameRate
	}
	if r.Resolution.IsZero() {
		r.Resolution = d.Resolution
	}
	if r.KeyframeIntervalSeconds == 0 {
		r.KeyframeIntervalSeconds = d.KeyframeIntervalSeconds
	}
	return r
}

// HasFileSource reports whether the request reads a local media file
func (r BroadcastRequest) HasFileSource() bool {
	return r.SourcePath != ""
}

// OutputResolution is the frame size the encoder produces
func (r BroadcastRequest) OutputResolution() Resolution {
	if r.VerticalMode {
		return VerticalResolution
	}
	return r.Resolution
}

// GOPSize is the number of frames between forced keyframes
func (r BroadcastRequest) GOPSize() int {
	return r.FrameRate * r.KeyframeIntervalSeconds
}

// MaskedSource describes the source without exposing a live key
func (r BroadcastRequest) MaskedSource() string {
	if r.HasFileSource() {
		return r.SourcePath
	}
	return "live:" + MaskStreamKey(r.LiveKey)
}

// MaskedDestination is the ingest URL with the stream key masked
func (r BroadcastRequest) MaskedDestination() string {
	return r.DestinationBaseURL + "/" + MaskStreamKey(r.DestinationKey)
}

// String keeps the secret key out of formatted output
func (r BroadcastRequest) String() string {
	return fmt.Sprintf("broadcast %s -> %s (%s@%dfps, %dk/%dk, loop=%t, vertical=%t)",
		r.MaskedSource(), r.MaskedDestination(), r.OutputResolution(), r.FrameRate,
		r.VideoBitrateKbps, r.AudioBitrateKbps, r.Loop, r.VerticalMode)
}

// ExitReason explains why a broadcast reached the terminated state
type ExitReason string

// ExitReason constants
const (
	ExitReasonRequestedStop ExitReason = "requested_stop" // stop() was called
	ExitReasonCompleted     ExitReason = "completed"      // process exited 0 on its own
	ExitReasonCrashed       ExitReason = "crashed"        // non-zero exit or signal
	ExitReasonSpawnFailed   ExitReason = "spawn_failed"   // process never started
)

// ExitInfo is attached to every terminated broadcast
type ExitInfo struct {
	Reason   ExitReason `json:"reason"`
	ExitCode int        `json:"exit_code"`
	Signal   string     `json:"signal,omitempty"`
	Error    string     `json:"error,omitempty"`
	EndedAt  time.Time  `json:"ended_at"`
}

// Clean reports whether the broadcast ended normally or by request
func (e ExitInfo) Clean() bool {
	switch e.Reason {
	case ExitReasonRequestedStop:
		return true
	case ExitReasonCompleted:
		return e.ExitCode == 0
	default:
		return false
	}
}

// BroadcastStatus is a point-in-time snapshot of a broadcast handle.
// It never carries the unmasked destination key.
type BroadcastStatus struct {
	ID           string         `json:"id"`
	State        BroadcastState `json:"state"`
	PID          int            `json:"pid,omitempty"`
	Source       string         `json:"source,omitempty"`
	Destination  string         `json:"destination,omitempty"`
	Resolution   Resolution     `json:"resolution,omitempty"`
	FrameRate    int            `json:"frame_rate,omitempty"`
	VideoBitrate int            `json:"video_bitrate_kbps,omitempty"`
	AudioBitrate int            `json:"audio_bitrate_kbps,omitempty"`
	Loop         bool           `json:"loop"`
	VerticalMode bool           `json:"vertical_mode"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
	Exit         *ExitInfo      `json:"exit,omitempty"`
}

// IdleStatus is reported when no broadcast exists
func IdleStatus() BroadcastStatus {
	return BroadcastStatus{State: BroadcastStateIdle}
}

// Uptime returns how long the broadcast has been (or was) running
func (s BroadcastStatus) Uptime(now time.Time) time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	if end.Before(*s.StartedAt) {
		return 0
	}
	return end.Sub(*s.StartedAt)
}

// MaskStreamKey hides all but the edges of a stream key for display
func MaskStreamKey(key string) string {
	if key == "" {
		return "xxxx-xxxx-xxxx-xxxx"
	}
	if len(key) < 8 {
		return strings.Repeat("x", len(key))
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// FormatUptime renders a duration as HH:MM:SS
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
