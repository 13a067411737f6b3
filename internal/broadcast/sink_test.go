package broadcast

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, r io.Reader) []string {
	t.Helper()
	var lines []string
	require.NoError(t, pumpLines(r, func(text string) {
		lines = append(lines, text)
	}))
	return lines
}

func TestPumpLines_Terminators(t *testing.T) {
	input := "Input #0, mov\nframe=  1 fps=0.0\rframe= 25 fps=25\r\nStream mapping:\r\n\n\nlast line without newline"

	lines := collect(t, strings.NewReader(input))

	assert.Equal(t, []string{
		"Input #0, mov",
		"frame=  1 fps=0.0",
		"frame= 25 fps=25",
		"Stream mapping:",
		"",
		"",
		"last line without newline",
	}, lines)
}

// oneByteReader forces every split decision to happen on a partial buffer
type oneByteReader struct{ r io.Reader }

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

func TestPumpLines_CRLFAcrossReads(t *testing.T) {
	lines := collect(t, oneByteReader{strings.NewReader("a\r\nb\rc\n")})
	assert.Equal(t, []string{"a", "b", "c"}, lines)
}

func TestPumpLines_KeepsLinesUnmodified(t *testing.T) {
	lines := collect(t, strings.NewReader("  indented\ntrailing \t\n\n"))
	assert.Equal(t, []string{"  indented", "trailing \t", ""}, lines)
}

func TestPumpLines_ChunksOverlongLines(t *testing.T) {
	var lines []string
	err := pumpLinesLimit(strings.NewReader("abcdefghij\nxy\nabcd\r\nz"), 4, func(text string) {
		lines = append(lines, text)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd", "efgh", "ij", "xy", "abcd", "z"}, lines)
}

// failingReader returns data, then an error, then more data
type failingReader struct {
	reads int
	rest  *strings.Reader
}

func (f *failingReader) Read(p []byte) (int, error) {
	f.reads++
	switch f.reads {
	case 1:
		return copy(p, "first\n"), nil
	case 2:
		return 0, errors.New("read failed")
	default:
		return f.rest.Read(p)
	}
}

func TestPumpLines_DrainsAfterError(t *testing.T) {
	r := &failingReader{rest: strings.NewReader(strings.Repeat("unread\n", 100))}

	var lines []string
	err := pumpLines(r, func(text string) { lines = append(lines, text) })
	require.Error(t, err)
	assert.Equal(t, []string{"first"}, lines)
	assert.Zero(t, r.rest.Len(), "the rest of the output must still be consumed")
}

func TestPumpLines_PreservesOrder(t *testing.T) {
	var b strings.Builder
	var want []string
	for i := 0; i < 1000; i++ {
		line := fmt.Sprintf("line %04d", i)
		want = append(want, line)
		b.WriteString(line)
		if i%3 == 0 {
			b.WriteString("\r")
		} else {
			b.WriteString("\n")
		}
	}

	assert.Equal(t, want, collect(t, strings.NewReader(b.String())))
}

func TestMultiSink(t *testing.T) {
	var a, b []uint64
	sink := MultiSink{
		SinkFunc(func(l Line) { a = append(a, l.Seq) }),
		nil,
		SinkFunc(func(l Line) { b = append(b, l.Seq) }),
	}

	sink.WriteLine(Line{Seq: 1})
	sink.WriteLine(Line{Seq: 2})

	assert.Equal(t, []uint64{1, 2}, a)
	assert.Equal(t, []uint64{1, 2}, b)
}

func TestChanSink(t *testing.T) {
	ch := make(chan Line, 2)
	sink := ChanSink(ch)

	sink.WriteLine(Line{Seq: 1, Text: "one"})
	sink.WriteLine(Line{Seq: 2, Text: "two"})

	assert.Equal(t, "one", (<-ch).Text)
	assert.Equal(t, "two", (<-ch).Text)
}

func TestLineBuffer_LastN(t *testing.T) {
	buf := NewLineBuffer(3)
	assert.Empty(t, buf.LastN(5))

	for i := uint64(1); i <= 5; i++ {
		buf.WriteLine(Line{Seq: i, Text: fmt.Sprintf("l%d", i)})
	}

	assert.Equal(t, 3, buf.Len())
	last := buf.LastN(10)
	require.Len(t, last, 3)
	assert.Equal(t, []uint64{3, 4, 5}, []uint64{last[0].Seq, last[1].Seq, last[2].Seq})

	last = buf.LastN(1)
	require.Len(t, last, 1)
	assert.Equal(t, uint64(5), last[0].Seq)
}

func TestLineBuffer_Since(t *testing.T) {
	buf := NewLineBuffer(10)
	for i := uint64(1); i <= 4; i++ {
		buf.WriteLine(Line{Seq: i})
	}

	assert.Len(t, buf.Since(0), 4)
	got := buf.Since(2)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[0].Seq)
	assert.Empty(t, buf.Since(4))
}

func TestLineBuffer_Subscribe(t *testing.T) {
	buf := NewLineBuffer(10)

	ch, cancel := buf.Subscribe(1)
	buf.WriteLine(Line{Seq: 1})
	buf.WriteLine(Line{Seq: 2}) // subscriber buffer full, dropped

	line, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, uint64(1), line.Seq)

	cancel()
	cancel()
	_, ok = <-ch
	assert.False(t, ok, "cancel closes the channel")

	// Retained window is unaffected by slow subscribers
	assert.Equal(t, 2, buf.Len())
}

func TestLineBuffer_Close(t *testing.T) {
	buf := NewLineBuffer(10)
	ch, cancel := buf.Subscribe(4)

	buf.WriteLine(Line{Seq: 1})
	buf.Close()
	buf.Close()
	cancel()

	line, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, uint64(1), line.Seq)
	_, ok = <-ch
	assert.False(t, ok)

	late, _ := buf.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok, "subscribing after Close yields a closed channel")

	assert.Len(t, buf.LastN(10), 1)
}
