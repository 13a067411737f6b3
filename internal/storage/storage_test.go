package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/restream/internal/broadcast"
	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

func TestGetContentType(t *testing.T) {
	tests := []struct {
		filePath string
		wantType string
	}{
		{"broadcasts/b-1/output.log", "text/plain; charset=utf-8"},
		{"notes.txt", "text/plain; charset=utf-8"},
		{"broadcasts/b-1/status.json", "application/json"},
		{"clip.mp4", "video/mp4"},
		{"capture.flv", "video/x-flv"},
		{"segment.ts", "video/mp2t"},
		{"unknown.xyz", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.filePath, func(t *testing.T) {
			assert.Equal(t, tt.wantType, getContentType(tt.filePath))
		})
	}
}

func TestGetURL(t *testing.T) {
	// Presigning is local when the region is known
	client, err := minio.New("127.0.0.1:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("access", "secret", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)

	s := &Storage{client: client, bucketName: "broadcasts", urlExpiry: 15 * time.Minute}
	raw, err := s.GetURL(context.Background(), TranscriptKey("b-1"))
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/broadcasts/broadcasts/b-1/output.log", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.Equal(t, "broadcasts", s.Bucket())
}

type uploadedObject struct {
	name        string
	contentType string
	body        string
}

type fakeUploader struct {
	err     error
	objects []uploadedObject
}

func (f *fakeUploader) Upload(_ context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	if f.err != nil {
		return f.err
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if int64(len(body)) != size {
		return errors.New("size mismatch")
	}
	f.objects = append(f.objects, uploadedObject{name: objectName, contentType: contentType, body: string(body)})
	return nil
}

type mapSource map[string][]broadcast.Line

func (m mapSource) Transcript(id string) ([]broadcast.Line, bool) {
	lines, ok := m[id]
	return lines, ok
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestArchiver_UploadsOnTermination(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	source := mapSource{
		"b-1": {
			{Seq: 1, Text: "frame=1", Time: at},
			{Seq: 2, Text: "frame=2", Time: at.Add(time.Second)},
		},
	}
	store := &fakeUploader{}
	a := newArchiver(store, source, nopLogger())
	ctx := context.Background()

	running := models.NewBroadcastEvent(models.BroadcastStatus{ID: "b-1", State: models.BroadcastStateRunning})
	require.NoError(t, a.Publish(ctx, running))
	assert.Empty(t, store.objects, "only terminal events are archived")

	terminated := models.NewBroadcastEvent(models.BroadcastStatus{
		ID:          "b-1",
		State:       models.BroadcastStateTerminated,
		Destination: "rtmp://a.rtmp.youtube.com/live2/abcd...wxyz",
		Exit:        &models.ExitInfo{Reason: models.ExitReasonCompleted},
	})
	require.NoError(t, a.Publish(ctx, terminated))

	require.Len(t, store.objects, 2)
	assert.Equal(t, "broadcasts/b-1/status.json", store.objects[0].name)
	assert.Equal(t, "application/json", store.objects[0].contentType)

	var status models.BroadcastStatus
	require.NoError(t, json.Unmarshal([]byte(store.objects[0].body), &status))
	assert.Equal(t, models.ExitReasonCompleted, status.Exit.Reason)

	assert.Equal(t, "broadcasts/b-1/output.log", store.objects[1].name)
	assert.Equal(t,
		"1 2026-01-02T03:04:05Z frame=1\n2 2026-01-02T03:04:06Z frame=2\n",
		store.objects[1].body)
	assert.Equal(t, "minio", a.Name())
}

func TestArchiver_NoTranscript(t *testing.T) {
	store := &fakeUploader{}
	a := newArchiver(store, mapSource{}, nopLogger())

	event := models.NewBroadcastEvent(models.BroadcastStatus{ID: "b-2", State: models.BroadcastStateTerminated})
	require.NoError(t, a.Publish(context.Background(), event))

	require.Len(t, store.objects, 1)
	assert.True(t, strings.HasSuffix(store.objects[0].name, "status.json"))
}

func TestArchiver_UploadError(t *testing.T) {
	a := newArchiver(&fakeUploader{err: errors.New("bucket gone")}, mapSource{}, nopLogger())

	event := models.NewBroadcastEvent(models.BroadcastStatus{ID: "b-3", State: models.BroadcastStateTerminated})
	assert.ErrorContains(t, a.Publish(context.Background(), event), "bucket gone")
}
