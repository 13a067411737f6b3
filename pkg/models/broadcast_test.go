package models

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResolution(t *testing.T) {
	tests := []struct {
		input   string
		want    Resolution
		wantErr bool
	}{
		{"1280x720", Resolution720p, false},
		{"1920X1080", Resolution1080p, false},
		{" 720x1280 ", VerticalResolution, false},
		{"1280", Resolution{}, true},
		{"axb", Resolution{}, true},
		{"0x720", Resolution{}, true},
		{"-1x720", Resolution{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseResolution(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolution_JSON(t *testing.T) {
	var req BroadcastRequest
	err := json.Unmarshal([]byte(`{"destination_key":"k","resolution":"1920x1080"}`), &req)
	require.NoError(t, err)
	assert.Equal(t, Resolution1080p, req.Resolution)

	err = json.Unmarshal([]byte(`{"resolution":"wide"}`), &req)
	assert.Error(t, err)

	data, err := json.Marshal(BroadcastStatus{Resolution: VerticalResolution})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"resolution":"720x1280"`)
	assert.True(t, VerticalResolution.Portrait())
}

func TestBroadcastState_Active(t *testing.T) {
	assert.False(t, BroadcastStateIdle.Active())
	assert.True(t, BroadcastStateStarting.Active())
	assert.True(t, BroadcastStateRunning.Active())
	assert.False(t, BroadcastStateStopping.Active())
	assert.False(t, BroadcastStateTerminated.Active())
}

func TestBroadcastRequest_WithDefaults(t *testing.T) {
	req := BroadcastRequest{
		SourcePath:     "clip.mp4",
		DestinationKey: "abcd-efgh",
		FrameRate:      60,
	}

	got := req.WithDefaults(DefaultEncoding(), "rtmp://a.rtmp.youtube.com/live2/")

	assert.Equal(t, "rtmp://a.rtmp.youtube.com/live2", got.DestinationBaseURL)
	assert.Equal(t, 3000, got.VideoBitrateKbps)
	assert.Equal(t, 128, got.AudioBitrateKbps)
	assert.Equal(t, 60, got.FrameRate, "explicit values are kept")
	assert.Equal(t, Resolution720p, got.Resolution)
	assert.Equal(t, 2, got.KeyframeIntervalSeconds)
	assert.Equal(t, 120, got.GOPSize())

	// The original is untouched
	assert.Empty(t, req.DestinationBaseURL)
}

func TestBroadcastRequest_OutputResolution(t *testing.T) {
	req := BroadcastRequest{Resolution: Resolution1080p}
	assert.Equal(t, Resolution1080p, req.OutputResolution())

	req.VerticalMode = true
	assert.Equal(t, VerticalResolution, req.OutputResolution())
}

func TestBroadcastRequest_NeverFormatsKey(t *testing.T) {
	req := BroadcastRequest{
		LiveKey:            "live-secret-key",
		DestinationBaseURL: "rtmp://ingest.example.com/live",
		DestinationKey:     "abcd-1234-efgh-5678",
	}

	for _, out := range []string{
		req.String(),
		fmt.Sprintf("%v", req),
		fmt.Sprintf("%s", req),
		req.MaskedDestination(),
		req.MaskedSource(),
	} {
		assert.NotContains(t, out, "abcd-1234-efgh-5678")
		assert.NotContains(t, out, "live-secret-key")
	}

	assert.Equal(t, "rtmp://ingest.example.com/live/abcd...5678", req.MaskedDestination())
	assert.Equal(t, "live:live...-key", req.MaskedSource())
}

func TestMaskStreamKey(t *testing.T) {
	assert.Equal(t, "xxxx-xxxx-xxxx-xxxx", MaskStreamKey(""))
	assert.Equal(t, "xxxxxxx", MaskStreamKey("abc1234"))
	assert.Equal(t, "abcd...efgh", MaskStreamKey("abcd-efgh"))
	assert.Equal(t, "abcd...5678", MaskStreamKey("abcd12345678"))
}

func TestExitInfo_Clean(t *testing.T) {
	tests := []struct {
		name string
		info ExitInfo
		want bool
	}{
		{"requested stop", ExitInfo{Reason: ExitReasonRequestedStop, ExitCode: -1, Signal: "terminated"}, true},
		{"completed", ExitInfo{Reason: ExitReasonCompleted}, true},
		{"crashed", ExitInfo{Reason: ExitReasonCrashed, ExitCode: 1}, false},
		{"spawn failed", ExitInfo{Reason: ExitReasonSpawnFailed, ExitCode: -1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.Clean())
		})
	}
}

func TestBroadcastStatus_Uptime(t *testing.T) {
	started := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Minute)

	status := BroadcastStatus{StartedAt: &started}
	assert.Equal(t, 90*time.Minute, status.Uptime(now))

	ended := started.Add(10 * time.Second)
	status.EndedAt = &ended
	assert.Equal(t, 10*time.Second, status.Uptime(now))

	assert.Zero(t, IdleStatus().Uptime(now))
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatUptime(0))
	assert.Equal(t, "00:00:00", FormatUptime(-time.Second))
	assert.Equal(t, "01:02:03", FormatUptime(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "26:00:00", FormatUptime(26*time.Hour))
}

func TestNewBroadcastEvent(t *testing.T) {
	event := NewBroadcastEvent(BroadcastStatus{ID: "b-1", State: BroadcastStateTerminated})

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventBroadcastTerminated, event.Type)
	assert.Equal(t, "b-1", event.BroadcastID)
	assert.True(t, event.Terminal())
	assert.Equal(t, EventBroadcastRunning, EventTypeForState(BroadcastStateRunning))
}

func TestClassifyHealth(t *testing.T) {
	assert.Equal(t, HealthExcellent, ClassifyHealth(95))
	assert.Equal(t, HealthGood, ClassifyHealth(91-10))
	assert.Equal(t, HealthFair, ClassifyHealth(75))
	assert.Equal(t, HealthPoor, ClassifyHealth(50))
}

func TestSummarizeAnalytics(t *testing.T) {
	base := time.Now()
	points := []AnalyticsPoint{
		{Time: base, Viewers: 10, Likes: 1},
		{Time: base.Add(5 * time.Minute), Viewers: 30, Likes: 3},
		{Time: base.Add(10 * time.Minute), Viewers: 20, Likes: 2},
	}

	summary := SummarizeAnalytics(points)
	assert.Equal(t, 30, summary.PeakViewers)
	assert.Equal(t, 20, summary.AvgViewers)
	assert.Equal(t, 6, summary.TotalLikes)

	empty := SummarizeAnalytics(nil)
	assert.NotNil(t, empty.Points)
	assert.Zero(t, empty.PeakViewers)
}
