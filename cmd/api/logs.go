package main

import (
	"sync"

	"github.com/therealutkarshpriyadarshi/restream/internal/broadcast"
)

// logRegistry keeps the output buffers of recent broadcasts so logs can be
// read and archived after the process exits
type logRegistry struct {
	mu       sync.Mutex
	capacity int
	keep     int
	buffers  map[string]*broadcast.LineBuffer
	order    []string
}

func newLogRegistry(capacity, keep int) *logRegistry {
	if keep < 1 {
		keep = 8
	}
	return &logRegistry{
		capacity: capacity,
		keep:     keep,
		buffers:  make(map[string]*broadcast.LineBuffer),
	}
}

// NewBuffer creates an unregistered buffer to hand to Supervisor.Start
func (r *logRegistry) NewBuffer() *broadcast.LineBuffer {
	return broadcast.NewLineBuffer(r.capacity)
}

// Register associates buf with a started broadcast. The buffer is closed
// once the broadcast terminates, which ends any live subscriptions.
func (r *logRegistry) Register(h *broadcast.Handle, buf *broadcast.LineBuffer) {
	r.mu.Lock()
	r.buffers[h.ID()] = buf
	r.order = append(r.order, h.ID())
	for len(r.order) > r.keep {
		evict := r.order[0]
		r.order = r.order[1:]
		if old, ok := r.buffers[evict]; ok {
			old.Close()
			delete(r.buffers, evict)
		}
	}
	r.mu.Unlock()

	go func() {
		<-h.Done()
		buf.Close()
	}()
}

// Get returns the buffer for a broadcast
func (r *logRegistry) Get(id string) (*broadcast.LineBuffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.buffers[id]
	return buf, ok
}

// Transcript implements storage.TranscriptSource
func (r *logRegistry) Transcript(id string) ([]broadcast.Line, bool) {
	buf, ok := r.Get(id)
	if !ok {
		return nil, false
	}
	return buf.LastN(buf.Len()), true
}
