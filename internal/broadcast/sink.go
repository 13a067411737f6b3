package broadcast

import (
	"bufio"
	"bytes"
	"io"
	"sync"
	"time"
)

// Line is one line of encoder output. Seq increases by one per line within a broadcast.
type Line struct {
	Seq  uint64    `json:"seq"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// LogSink receives encoder output lines in the order the process wrote them.
// WriteLine is called from a single goroutine per broadcast; a slow sink slows
// the reader but never reorders lines.
type LogSink interface {
	WriteLine(line Line)
}

// SinkFunc adapts a function to LogSink
type SinkFunc func(Line)

// WriteLine calls f(line)
func (f SinkFunc) WriteLine(line Line) {
	f(line)
}

// MultiSink forwards every line to each sink in order
type MultiSink []LogSink

// WriteLine implements LogSink
func (m MultiSink) WriteLine(line Line) {
	for _, s := range m {
		if s != nil {
			s.WriteLine(line)
		}
	}
}

// ChanSink delivers lines on a channel. Sends block, so the consumer must keep up.
type ChanSink chan<- Line

// WriteLine implements LogSink
func (c ChanSink) WriteLine(line Line) {
	c <- line
}

// LineBuffer retains the most recent lines and fans them out to live subscribers
type LineBuffer struct {
	mu    sync.RWMutex
	lines []Line
	head  int
	count int

	subs    map[int]chan Line
	nextSub int
	closed  bool
}

// NewLineBuffer creates a LineBuffer retaining up to capacity lines
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity < 1 {
		capacity = 500
	}
	return &LineBuffer{
		lines: make([]Line, capacity),
		subs:  make(map[int]chan Line),
	}
}

// WriteLine implements LogSink. Subscribers that are not ready miss the line.
func (b *LineBuffer) WriteLine(line Line) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines[b.head] = line
	b.head = (b.head + 1) % len(b.lines)
	if b.count < len(b.lines) {
		b.count++
	}

	for _, ch := range b.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Len returns the number of retained lines
func (b *LineBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// LastN returns up to n of the most recent lines, oldest first
func (b *LineBuffer) LastN(n int) []Line {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > b.count {
		n = b.count
	}
	if n <= 0 {
		return []Line{}
	}

	out := make([]Line, 0, n)
	start := (b.head - n + len(b.lines)) % len(b.lines)
	for i := 0; i < n; i++ {
		out = append(out, b.lines[(start+i)%len(b.lines)])
	}
	return out
}

// Since returns retained lines with Seq greater than seq, oldest first
func (b *LineBuffer) Since(seq uint64) []Line {
	all := b.LastN(b.Len())
	for i, line := range all {
		if line.Seq > seq {
			return all[i:]
		}
	}
	return []Line{}
}

// Subscribe registers a live listener. The returned cancel func unregisters it
// and closes the channel; Close does the same for every subscriber.
func (b *LineBuffer) Subscribe(buffer int) (<-chan Line, func()) {
	ch := make(chan Line, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Close ends every subscription. Retained lines stay readable.
func (b *LineBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// maxLineSize caps one emitted line. Longer runs without a terminator are
// forwarded in maxLineSize chunks.
const maxLineSize = 1024 * 1024

// splitLogLines returns a bufio.SplitFunc that ends lines on \n, \r\n or a
// bare \r (ffmpeg redraws its progress line with \r only) and cuts
// unterminated runs at limit bytes.
func splitLogLines(limit int) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}

		if i := bytes.IndexAny(data, "\r\n"); i >= 0 && i <= limit {
			if data[i] == '\n' {
				return i + 1, data[:i], nil
			}
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			// A trailing \r may be the first half of \r\n
			if !atEOF {
				return 0, nil, nil
			}
			return i + 1, data[:i], nil
		}

		if len(data) >= limit {
			return limit, data[:limit], nil
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}

// pumpLines reads r until EOF and calls emit for every line, unmodified
func pumpLines(r io.Reader, emit func(text string)) error {
	return pumpLinesLimit(r, maxLineSize, emit)
}

func pumpLinesLimit(r io.Reader, limit int, emit func(text string)) error {
	scanner := bufio.NewScanner(r)
	// Two spare bytes so a \r\n right after a full-length line is still seen whole
	scanner.Buffer(make([]byte, 0, min(64*1024, limit+2)), limit+2)
	scanner.Split(splitLogLines(limit))

	for scanner.Scan() {
		emit(scanner.Text())
	}

	err := scanner.Err()
	if err != nil {
		// Keep the pipe drained so the encoder never blocks on a full buffer
		_, _ = io.Copy(io.Discard, r)
	}
	return err
}
