package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	err  error
	sent []published
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func TestQueue_PublishRoutesByEventType(t *testing.T) {
	fake := &fakeChannel{}
	q := &Queue{pub: fake, exchange: DefaultExchange}

	running := models.NewBroadcastEvent(models.BroadcastStatus{ID: "b-1", State: models.BroadcastStateRunning})
	terminated := models.NewBroadcastEvent(models.BroadcastStatus{
		ID:    "b-1",
		State: models.BroadcastStateTerminated,
		Exit:  &models.ExitInfo{Reason: models.ExitReasonRequestedStop},
	})

	require.NoError(t, q.Publish(context.Background(), running))
	require.NoError(t, q.Publish(context.Background(), terminated))

	require.Len(t, fake.sent, 2)
	assert.Equal(t, "restream", fake.sent[0].exchange)
	assert.Equal(t, "broadcast.running", fake.sent[0].key)
	assert.Equal(t, "broadcast.terminated", fake.sent[1].key)

	msg := fake.sent[1].msg
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, terminated.ID, msg.MessageId)
	assert.Equal(t, uint8(5), msg.Priority)
	assert.Zero(t, fake.sent[0].msg.Priority)

	var decoded models.BroadcastEvent
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, models.ExitReasonRequestedStop, decoded.Status.Exit.Reason)
}

func TestQueue_PublishError(t *testing.T) {
	q := &Queue{pub: &fakeChannel{err: errors.New("channel closed")}, exchange: DefaultExchange}

	err := q.Publish(context.Background(), models.BroadcastEvent{Type: models.EventBroadcastRunning})
	assert.ErrorContains(t, err, "channel closed")
	assert.Equal(t, "rabbitmq", q.Name())
}

func TestDecodeEvent(t *testing.T) {
	event := models.NewBroadcastEvent(models.BroadcastStatus{ID: "b-1", State: models.BroadcastStateStopping})
	msg, err := encodeEvent(event)
	require.NoError(t, err)

	decoded, err := decodeEvent(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, models.BroadcastStateStopping, decoded.Status.State)

	_, err = decodeEvent([]byte("{"))
	assert.Error(t, err)
}
