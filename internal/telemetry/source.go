package telemetry

import (
	"math/rand"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

// PointInterval is the spacing of analytics samples
const PointInterval = 5 * time.Minute

// Source reports stream health and audience analytics for a broadcast.
// Implementations must be safe for concurrent use.
type Source interface {
	Health(status models.BroadcastStatus) models.StreamHealth
	Analytics(status models.BroadcastStatus, now time.Time) models.StreamAnalytics
}

// MockSource fabricates plausible numbers until a platform API is wired in
type MockSource struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewMockSource creates a mock source. A zero seed seeds from the clock.
func NewMockSource(seed int64) *MockSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MockSource{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
}

// intn returns a uniform int in [lo, hi]
func (m *MockSource) intn(lo, hi int) int {
	return lo + m.rng.Intn(hi-lo+1)
}

// Health implements Source. Score is 70-100 and viewers 10-100 while running.
func (m *MockSource) Health(status models.BroadcastStatus) models.StreamHealth {
	now := m.now()
	if status.State != models.BroadcastStateRunning {
		return models.OfflineHealth(now)
	}

	m.mu.Lock()
	score := m.intn(70, 100)
	viewers := m.intn(10, 100)
	m.mu.Unlock()

	return models.StreamHealth{
		Status:    models.ClassifyHealth(score),
		Score:     score,
		Viewers:   viewers,
		Timestamp: now,
	}
}

// Analytics implements Source. A running broadcast gets one point per interval
// since it started; with nothing ever started a demo hour is returned.
func (m *MockSource) Analytics(status models.BroadcastStatus, now time.Time) models.StreamAnalytics {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case status.State == models.BroadcastStateRunning && status.StartedAt != nil:
		return m.liveAnalytics(*status.StartedAt, now)
	case status.StartedAt == nil:
		return m.demoAnalytics(now)
	default:
		return models.SummarizeAnalytics(nil)
	}
}

func (m *MockSource) demoAnalytics(now time.Time) models.StreamAnalytics {
	start := now.Add(-time.Hour)
	points := make([]models.AnalyticsPoint, 0, 13)

	for i := 0; i <= 12; i++ {
		viewers := int(25 * (1 + 0.5*float64(i) + m.rng.Float64()*0.2))
		points = append(points, models.AnalyticsPoint{
			Time:    start.Add(time.Duration(i) * PointInterval),
			Viewers: viewers,
			Likes:   int(float64(viewers) * 0.1 * (1 + m.rng.Float64()*0.5)),
		})
	}

	analytics := models.SummarizeAnalytics(points)
	analytics.Comments = m.intn(100, 300)
	return analytics
}

func (m *MockSource) liveAnalytics(started, now time.Time) models.StreamAnalytics {
	intervals := int(now.Sub(started) / PointInterval)
	if intervals < 1 {
		intervals = 1
	}

	var points []models.AnalyticsPoint
	var totalViewers int
	for i := 0; i <= intervals; i++ {
		at := started.Add(time.Duration(i) * PointInterval)
		if at.After(now) {
			break
		}

		// Audience grows for the first half hour, then plateaus
		growth := float64(i) / 6
		if growth > 2 {
			growth = 2
		}
		jitter := 0.85 + m.rng.Float64()*0.3
		viewers := int(10 * growth * jitter * float64(intervals))
		likeRate := 0.05 + m.rng.Float64()*0.1

		points = append(points, models.AnalyticsPoint{
			Time:    at,
			Viewers: viewers,
			Likes:   int(float64(viewers) * likeRate),
		})
		totalViewers += viewers
	}

	analytics := models.SummarizeAnalytics(points)
	analytics.Comments = int(float64(totalViewers) * 0.2)
	return analytics
}
