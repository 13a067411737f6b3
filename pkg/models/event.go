package models

import (
	"time"

	"github.com/google/uuid"
)

// BroadcastEvent is emitted on every broadcast state transition
type BroadcastEvent struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	BroadcastID string          `json:"broadcast_id"`
	Status      BroadcastStatus `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Broadcast event types
const (
	EventBroadcastStarting   = "broadcast.starting"
	EventBroadcastRunning    = "broadcast.running"
	EventBroadcastStopping   = "broadcast.stopping"
	EventBroadcastTerminated = "broadcast.terminated"
)

// EventTypeForState maps a state to its event type
func EventTypeForState(state BroadcastState) string {
	return "broadcast." + string(state)
}

// NewBroadcastEvent builds the event for a status snapshot
func NewBroadcastEvent(status BroadcastStatus) BroadcastEvent {
	return BroadcastEvent{
		ID:          uuid.New().String(),
		Type:        EventTypeForState(status.State),
		BroadcastID: status.ID,
		Status:      status,
		Timestamp:   time.Now(),
	}
}

// Terminal reports whether the event closes a broadcast
func (e BroadcastEvent) Terminal() bool {
	return e.Status.State == BroadcastStateTerminated
}
