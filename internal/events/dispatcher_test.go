package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

type recordingPublisher struct {
	name string
	err  error

	mu     sync.Mutex
	events []models.BroadcastEvent
}

func (p *recordingPublisher) Name() string { return p.name }

func (p *recordingPublisher) Publish(ctx context.Context, event models.BroadcastEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	good := &recordingPublisher{name: "good"}
	failing := &recordingPublisher{name: "failing", err: errors.New("unavailable")}
	d := NewDispatcher(16, time.Second, nopLogger(), failing, good)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	for _, state := range []models.BroadcastState{
		models.BroadcastStateStarting,
		models.BroadcastStateRunning,
		models.BroadcastStateStopping,
		models.BroadcastStateTerminated,
	} {
		d.BroadcastChanged(models.BroadcastStatus{ID: "b-1", State: state})
	}
	d.Close()

	require.NoError(t, <-done)

	want := []string{
		models.EventBroadcastStarting,
		models.EventBroadcastRunning,
		models.EventBroadcastStopping,
		models.EventBroadcastTerminated,
	}
	assert.Equal(t, want, good.types())
	assert.Equal(t, want, failing.types(), "a failing publisher still sees every event")
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d := NewDispatcher(1, time.Second, nopLogger())

	assert.True(t, d.Enqueue(models.BroadcastEvent{Type: "a"}))
	assert.False(t, d.Enqueue(models.BroadcastEvent{Type: "b"}), "enqueue never blocks")

	d.Close()
	d.Close()
	assert.False(t, d.Enqueue(models.BroadcastEvent{Type: "c"}))
	assert.NoError(t, d.Run(context.Background()))
}

func TestDispatcher_RunStopsOnCancel(t *testing.T) {
	d := NewDispatcher(1, time.Second, nopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, d.Run(ctx), context.Canceled)
}

type blockingPublisher struct{}

func (blockingPublisher) Name() string { return "blocking" }

func (blockingPublisher) Publish(ctx context.Context, _ models.BroadcastEvent) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDispatcher_PublishTimeout(t *testing.T) {
	after := &recordingPublisher{name: "after"}
	d := NewDispatcher(4, 50*time.Millisecond, nopLogger(), blockingPublisher{}, after)

	d.Enqueue(models.NewBroadcastEvent(models.BroadcastStatus{ID: "b-1", State: models.BroadcastStateRunning}))
	d.Close()

	start := time.Now()
	require.NoError(t, d.Run(context.Background()))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, after.types(), 1)
}
