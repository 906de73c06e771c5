package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/kafka"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockWriter) Close() error {
	return m.Called().Error(0)
}

func TestChannel_Deliver(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	n := &notifications.Notification{
		ID:       "n-1",
		TenantID: "t-1",
		Priority: notifications.PriorityUrgent,
		Title:    "Disk full",
		Data:     map[string]any{"host": "db-1"},
	}

	t.Run("publishes envelope to default topic", func(t *testing.T) {
		t.Parallel()

		w := &MockWriter{}
		var sent []kafkago.Message
		w.On("WriteMessages", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { sent = args.Get(1).([]kafkago.Message) }).
			Return(nil).Once()

		ch := kafka.NewChannel(w, kafka.WithTopic("alerts"), kafka.WithClock(func() time.Time { return at }))
		assert.Equal(t, notifications.ChannelKafka, ch.Channel())

		res, err := ch.Deliver(context.Background(), n, notifications.Recipient{ID: "ops"})
		require.NoError(t, err)
		assert.Equal(t, "alerts", res.Response)
		require.Len(t, sent, 1)

		msg := sent[0]
		assert.Equal(t, "alerts", msg.Topic)
		assert.Equal(t, "t-1:ops", string(msg.Key))

		var env kafka.Envelope
		require.NoError(t, json.Unmarshal(msg.Value, &env))
		assert.Equal(t, res.ExternalID, env.ID)
		assert.Equal(t, "n-1", env.NotificationID)
		assert.Equal(t, "urgent", env.Priority)
		assert.Equal(t, "db-1", env.Data["host"])
		assert.True(t, env.PublishedAt.Equal(at))
		w.AssertExpectations(t)
	})

	t.Run("recipient address overrides topic", func(t *testing.T) {
		t.Parallel()

		w := &MockWriter{}
		w.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafkago.Message) bool {
			return len(msgs) == 1 && msgs[0].Topic == "tenant-events"
		})).Return(nil).Once()

		_, err := kafka.NewChannel(w, kafka.WithTopic("alerts")).
			Deliver(context.Background(), n, notifications.Recipient{ID: "x", Address: "tenant-events"})
		require.NoError(t, err)
		w.AssertExpectations(t)
	})

	t.Run("no topic", func(t *testing.T) {
		t.Parallel()

		w := &MockWriter{}
		_, err := kafka.NewChannel(w).Deliver(context.Background(), n, notifications.Recipient{ID: "x"})
		assert.ErrorIs(t, err, kafka.ErrNoTopic)
		w.AssertNotCalled(t, "WriteMessages", mock.Anything, mock.Anything)
	})

	t.Run("writer error", func(t *testing.T) {
		t.Parallel()

		w := &MockWriter{}
		w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("leader not available")).Once()

		_, err := kafka.NewChannel(w, kafka.WithTopic("alerts")).
			Deliver(context.Background(), n, notifications.Recipient{ID: "x"})
		require.ErrorIs(t, err, kafka.ErrPublish)
		assert.Contains(t, err.Error(), "leader not available")
	})
}

func TestNewChannelFromConfig(t *testing.T) {
	t.Parallel()

	_, err := kafka.NewChannelFromConfig(kafka.Config{})
	assert.ErrorIs(t, err, kafka.ErrNoBrokers)

	ch, err := kafka.NewChannelFromConfig(kafka.Config{Brokers: []string{"localhost:9092"}, Topic: "n"})
	require.NoError(t, err)
	assert.NoError(t, ch.Close())
}

func TestChannel_Close(t *testing.T) {
	t.Parallel()

	w := &MockWriter{}
	w.On("Close").Return(nil).Once()
	require.NoError(t, kafka.NewChannel(w).Close())
	w.AssertExpectations(t)
}
