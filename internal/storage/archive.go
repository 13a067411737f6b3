package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/therealutkarshpriyadarshi/restream/internal/broadcast"
	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

// TranscriptSource yields the retained encoder output for a broadcast
type TranscriptSource interface {
	Transcript(broadcastID string) ([]broadcast.Line, bool)
}

// uploader is the part of Storage the archiver needs
type uploader interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
}

// BroadcastPrefix is the object prefix shared by everything archived for a broadcast
func BroadcastPrefix(broadcastID string) string {
	return fmt.Sprintf("broadcasts/%s/", broadcastID)
}

// TranscriptKey is the object holding a broadcast's encoder output
func TranscriptKey(broadcastID string) string {
	return BroadcastPrefix(broadcastID) + "output.log"
}

// StatusKey is the object holding a broadcast's final status
func StatusKey(broadcastID string) string {
	return BroadcastPrefix(broadcastID) + "status.json"
}

// Archiver uploads the transcript and final status of every terminated broadcast
type Archiver struct {
	store  uploader
	source TranscriptSource
	logger zerolog.Logger
}

// NewArchiver creates an archiver writing to store
func NewArchiver(store *Storage, source TranscriptSource, logger *zerolog.Logger) *Archiver {
	return newArchiver(store, source, logger)
}

func newArchiver(store uploader, source TranscriptSource, logger *zerolog.Logger) *Archiver {
	l := log.Logger
	if logger != nil {
		l = *logger
	}
	return &Archiver{
		store:  store,
		source: source,
		logger: l.With().Str("component", "archive").Logger(),
	}
}

// Name implements events.Publisher
func (a *Archiver) Name() string {
	return "minio"
}

// Publish implements events.Publisher. Only terminal events are archived.
func (a *Archiver) Publish(ctx context.Context, event models.BroadcastEvent) error {
	if !event.Terminal() || event.BroadcastID == "" {
		return nil
	}

	status, err := json.MarshalIndent(event.Status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := a.store.Upload(ctx, StatusKey(event.BroadcastID), bytes.NewReader(status), int64(len(status)), "application/json"); err != nil {
		return err
	}

	lines, ok := a.source.Transcript(event.BroadcastID)
	if !ok {
		return nil
	}

	transcript := FormatTranscript(lines)
	start := time.Now()
	if err := a.store.Upload(ctx, TranscriptKey(event.BroadcastID), bytes.NewReader(transcript), int64(len(transcript)), ""); err != nil {
		return err
	}

	a.logger.Info().
		Str("broadcast_id", event.BroadcastID).
		Int("lines", len(lines)).
		Dur("duration_ms", time.Since(start)).
		Msg("Archived broadcast transcript")

	return nil
}

// FormatTranscript renders lines as "seq timestamp text", one per line
func FormatTranscript(lines []broadcast.Line) []byte {
	var buf bytes.Buffer
	for _, l := range lines {
		fmt.Fprintf(&buf, "%d %s %s\n", l.Seq, l.Time.UTC().Format(time.RFC3339Nano), l.Text)
	}
	return buf.Bytes()
}
