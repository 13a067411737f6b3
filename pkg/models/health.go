package models

import "time"

// HealthStatus is the operator-facing label for a stream health score
type HealthStatus string

// HealthStatus constants
const (
	HealthOffline   HealthStatus = "Offline"
	HealthExcellent HealthStatus = "Excellent"
	HealthGood      HealthStatus = "Good"
	HealthFair      HealthStatus = "Fair"
	HealthPoor      HealthStatus = "Poor"
)

// ClassifyHealth maps a 0-100 score onto a status label
func ClassifyHealth(score int) HealthStatus {
	switch {
	case score > 90:
		return HealthExcellent
	case score > 75:
		return HealthGood
	case score > 50:
		return HealthFair
	default:
		return HealthPoor
	}
}

// StreamHealth is a snapshot of ingest health as reported by a metrics source
type StreamHealth struct {
	Status    HealthStatus `json:"status"`
	Score     int          `json:"score"`
	Viewers   int          `json:"viewers"`
	Timestamp time.Time    `json:"timestamp"`
}

// OfflineHealth is reported while nothing is broadcasting
func OfflineHealth(now time.Time) StreamHealth {
	return StreamHealth{Status: HealthOffline, Timestamp: now}
}

// AnalyticsPoint is one sample of audience metrics
type AnalyticsPoint struct {
	Time    time.Time `json:"time"`
	Viewers int       `json:"viewers"`
	Likes   int       `json:"likes"`
}

// StreamAnalytics aggregates audience metrics over a broadcast
type StreamAnalytics struct {
	Points      []AnalyticsPoint `json:"points"`
	PeakViewers int              `json:"peak_viewers"`
	AvgViewers  int              `json:"avg_viewers"`
	TotalLikes  int              `json:"total_likes"`
	Comments    int              `json:"comments"`
}

// SummarizeAnalytics computes peak, average and totals from a series of points
func SummarizeAnalytics(points []AnalyticsPoint) StreamAnalytics {
	analytics := StreamAnalytics{Points: points}
	if len(points) == 0 {
		analytics.Points = []AnalyticsPoint{}
		return analytics
	}

	var totalViewers int
	for _, p := range points {
		totalViewers += p.Viewers
		analytics.TotalLikes += p.Likes
		if p.Viewers > analytics.PeakViewers {
			analytics.PeakViewers = p.Viewers
		}
	}
	analytics.AvgViewers = totalViewers / len(points)

	return analytics
}
