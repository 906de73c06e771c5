package inapp_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/delivery"
	"github.com/dmitrymomot/dispatchkit/pkg/inapp"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

func notification(id string) *notifications.Notification {
	return &notifications.Notification{
		ID:       id,
		TenantID: "t-1",
		Priority: notifications.PriorityNormal,
		Title:    "Hello",
		Message:  "world",
		Data:     map[string]any{"k": "v"},
	}
}

func TestChannel_DeliverToSubscriber(t *testing.T) {
	t.Parallel()

	ch := inapp.NewChannel()
	assert.Equal(t, notifications.ChannelInApp, ch.Channel())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := ch.Subscribe(ctx, "u-1")

	res, err := ch.Deliver(context.Background(), notification("n-1"), notifications.Recipient{ID: "u-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ExternalID)
	assert.Equal(t, "streamed", res.Response)

	select {
	case m := <-sub.C():
		assert.Equal(t, res.ExternalID, m.ID)
		assert.Equal(t, "n-1", m.NotificationID)
		assert.Equal(t, "u-1", m.UserID)
		assert.Equal(t, "Hello", m.Title)
		assert.Equal(t, "normal", m.Priority)
	case <-time.After(time.Second):
		t.Fatal("message not streamed")
	}

	status, err := ch.Status(context.Background(), delivery.Attempt{RecipientID: "u-1", ExternalID: res.ExternalID})
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusDelivered, status)
}

func TestChannel_OfflineUserHistory(t *testing.T) {
	t.Parallel()

	ch := inapp.NewChannel(inapp.WithHistorySize(2))

	var ids []string
	for _, id := range []string{"n-1", "n-2", "n-3"} {
		res, err := ch.Deliver(context.Background(), notification(id), notifications.Recipient{ID: "r-1", Address: "user-9"})
		require.NoError(t, err)
		assert.Equal(t, "stored", res.Response)
		ids = append(ids, res.ExternalID)
	}

	recent := ch.Recent("user-9")
	require.Len(t, recent, 2)
	assert.Equal(t, "n-2", recent[0].NotificationID)
	assert.Equal(t, "n-3", recent[1].NotificationID)
	assert.False(t, recent[1].Received)
	assert.Empty(t, ch.Recent("r-1"))

	status, err := ch.Status(context.Background(), delivery.Attempt{RecipientID: "r-1", Address: "user-9", ExternalID: ids[2]})
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusSent, status)

	status, err = ch.Status(context.Background(), delivery.Attempt{Address: "user-9", ExternalID: ids[0]})
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusSent, status, "evicted from history")
}

func TestChannel_MarkRead(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ch := inapp.NewChannel(inapp.WithClock(func() time.Time { return at }))

	res, err := ch.Deliver(context.Background(), notification("n-1"), notifications.Recipient{ID: "u-1"})
	require.NoError(t, err)
	require.Len(t, ch.Unread("u-1"), 1)

	r, err := ch.MarkRead("u-1", res.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, delivery.ReceiptRead, r.Event)
	assert.Equal(t, res.ExternalID, r.ExternalID)
	assert.Equal(t, "n-1", r.NotificationID)
	assert.Equal(t, notifications.ChannelInApp, r.Channel)
	assert.True(t, r.Timestamp.Equal(at))
	assert.Empty(t, ch.Unread("u-1"))

	status, err := ch.Status(context.Background(), delivery.Attempt{RecipientID: "u-1", ExternalID: res.ExternalID})
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusDelivered, status)

	_, err = ch.MarkRead("u-1", "missing")
	assert.ErrorIs(t, err, inapp.ErrMessageNotFound)
	_, err = ch.MarkRead("nobody", res.ExternalID)
	assert.ErrorIs(t, err, inapp.ErrMessageNotFound)
}

func TestChannel_Errors(t *testing.T) {
	t.Parallel()

	_, err := inapp.NewChannel().Deliver(context.Background(), notification("n"), notifications.Recipient{})
	assert.ErrorIs(t, err, inapp.ErrNoUser)
}

func TestChannel_EvictionClosesStreams(t *testing.T) {
	t.Parallel()

	ch := inapp.NewChannel(inapp.WithMaxUsers(1))
	sub := ch.Subscribe(context.Background(), "u-1")

	_ = ch.Subscribe(context.Background(), "u-2")
	assert.Equal(t, 1, ch.Users())

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("evicted subscription still open")
	}

	ch.Close()
	assert.Equal(t, 0, ch.Users())
}
