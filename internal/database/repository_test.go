package database

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/restream/internal/config"
	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

// openTestDB connects to the database named by RESTREAM_TEST_DATABASE_HOST,
// skipping when no database is available
func openTestDB(t *testing.T) *DB {
	t.Helper()

	host := os.Getenv("RESTREAM_TEST_DATABASE_HOST")
	if host == "" {
		t.Skip("Skipping integration test - requires database connection")
	}

	db, err := New(config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     "postgres",
		Password: os.Getenv("RESTREAM_TEST_DATABASE_PASSWORD"),
		DBName:   "restream_test",
		SSLMode:  "disable",
		MaxConns: 4,
		MinConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return db
}

func TestRepository_SessionLifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Migrate(ctx))

	created := time.Now().UTC().Truncate(time.Millisecond)
	status := models.BroadcastStatus{
		ID:          "test-" + created.Format("150405.000"),
		State:       models.BroadcastStateStarting,
		Source:      "clip.mp4",
		Destination: "rtmp://a.rtmp.youtube.com/live2/abcd...wxyz",
		Resolution:  models.Resolution720p,
		FrameRate:   30,
		CreatedAt:   created,
	}
	require.NoError(t, repo.Publish(ctx, models.NewBroadcastEvent(status)))

	started := created.Add(time.Second)
	status.State = models.BroadcastStateRunning
	status.PID = 4242
	status.StartedAt = &started
	require.NoError(t, repo.Publish(ctx, models.NewBroadcastEvent(status)))

	ended := started.Add(time.Minute)
	status.State = models.BroadcastStateTerminated
	status.EndedAt = &ended
	status.Exit = &models.ExitInfo{Reason: models.ExitReasonCrashed, ExitCode: 1, EndedAt: ended}
	require.NoError(t, repo.Publish(ctx, models.NewBroadcastEvent(status)))

	got, err := repo.GetSession(ctx, status.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BroadcastStateTerminated, got.State)
	assert.Equal(t, "1280x720", got.Resolution)
	assert.Equal(t, 4242, got.PID)
	require.NotNil(t, got.ExitReason)
	assert.Equal(t, "crashed", *got.ExitReason)
	assert.Equal(t, time.Minute, got.Duration(time.Now()))

	sessions, err := repo.ListSessions(ctx, 10, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, sessions)

	_, err = repo.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "success", status(nil))
	assert.Equal(t, "success", status(pgx.ErrNoRows))
	assert.Equal(t, "error", status(errors.New("connection reset")))
}

func TestRepository_PublishIgnoresIdle(t *testing.T) {
	repo := NewRepository(&DB{})
	assert.NoError(t, repo.Publish(context.Background(), models.NewBroadcastEvent(models.IdleStatus())))
	assert.Equal(t, "postgres", repo.Name())
}
