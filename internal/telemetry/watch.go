package telemetry

import (
	"context"
	"time"

	"github.com/therealutkarshpriyadarshi/restream/internal/metrics"
	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

// Snapshot is one telemetry sample
type Snapshot struct {
	Health    models.StreamHealth    `json:"health"`
	Analytics models.StreamAnalytics `json:"analytics"`
}

// StatusFunc reports the broadcast being measured
type StatusFunc func() models.BroadcastStatus

// Sample takes one snapshot of the current broadcast
func Sample(src Source, status StatusFunc, now time.Time) Snapshot {
	st := status()
	snap := Snapshot{
		Health:    src.Health(st),
		Analytics: src.Analytics(st, now),
	}
	metrics.UpdateStreamHealth(snap.Health.Score, snap.Health.Viewers)
	return snap
}

// Watch samples immediately and then every interval, handing each snapshot
// to push, until ctx is done
func Watch(ctx context.Context, interval time.Duration, src Source, status StatusFunc, push func(Snapshot)) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	push(Sample(src, status, time.Now()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			push(Sample(src, status, now))
		}
	}
}
