package models

import "time"

// BroadcastSession is the persisted history record of one broadcast
type BroadcastSession struct {
	ID           string         `json:"id" db:"id"`
	State        BroadcastState `json:"state" db:"state"`
	Source       string         `json:"source" db:"source"`
	Destination  string         `json:"destination" db:"destination"`
	Resolution   string         `json:"resolution" db:"resolution"`
	FrameRate    int            `json:"frame_rate" db:"frame_rate"`
	VideoBitrate int            `json:"video_bitrate_kbps" db:"video_bitrate_kbps"`
	AudioBitrate int            `json:"audio_bitrate_kbps" db:"audio_bitrate_kbps"`
	Loop         bool           `json:"loop" db:"loop"`
	VerticalMode bool           `json:"vertical_mode" db:"vertical_mode"`
	PID          int            `json:"pid" db:"pid"`
	ExitReason   *string        `json:"exit_reason,omitempty" db:"exit_reason"`
	ExitCode     *int           `json:"exit_code,omitempty" db:"exit_code"`
	Signal       *string        `json:"signal,omitempty" db:"signal"`
	Error        *string        `json:"error,omitempty" db:"error"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty" db:"started_at"`
	EndedAt      *time.Time     `json:"ended_at,omitempty" db:"ended_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// SessionFromStatus flattens a status snapshot into a history record
func SessionFromStatus(status BroadcastStatus) BroadcastSession {
	session := BroadcastSession{
		ID:           status.ID,
		State:        status.State,
		Source:       status.Source,
		Destination:  status.Destination,
		FrameRate:    status.FrameRate,
		VideoBitrate: status.VideoBitrate,
		AudioBitrate: status.AudioBitrate,
		Loop:         status.Loop,
		VerticalMode: status.VerticalMode,
		PID:          status.PID,
		CreatedAt:    status.CreatedAt,
		StartedAt:    status.StartedAt,
		EndedAt:      status.EndedAt,
	}
	if !status.Resolution.IsZero() {
		session.Resolution = status.Resolution.String()
	}

	if status.Exit != nil {
		reason := string(status.Exit.Reason)
		code := status.Exit.ExitCode
		session.ExitReason = &reason
		session.ExitCode = &code
		if sig := status.Exit.Signal; sig != "" {
			session.Signal = &sig
		}
		if msg := status.Exit.Error; msg != "" {
			session.Error = &msg
		}
	}

	return session
}

// Duration is how long the session ran, zero if it never started
func (s BroadcastSession) Duration(now time.Time) time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	return end.Sub(*s.StartedAt)
}
