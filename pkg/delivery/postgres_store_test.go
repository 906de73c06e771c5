package delivery_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/delivery"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

func TestPostgresAttemptStore(t *testing.T) {
	t.Parallel()

	url := os.Getenv("PG_CONN_URL")
	if url == "" {
		t.Skip("PG_CONN_URL not set")
	}

	ctx := context.Background()
	cfg := delivery.PostgresConfig{
		ConnectionString: url,
		MaxOpenConns:     4,
		RetryAttempts:    1,
		RetryInterval:    time.Second,
		MigrationsTable:  "delivery_schema_migrations",
	}
	pool, err := delivery.ConnectPostgres(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, delivery.MigratePostgres(ctx, pool, cfg, nil))
	require.NoError(t, delivery.PostgresHealthcheck(pool)(ctx))

	store := delivery.NewPostgresAttemptStore(pool)
	e := delivery.New(delivery.WithStore(store))
	require.NoError(t, e.RegisterHandler(&fakeHandler{channel: notifications.ChannelEmail}))

	n := notification(notifications.ChannelEmail)
	n.ID = "n-" + uuid.NewString()

	attempts, err := e.Deliver(ctx, n)
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	stored, err := e.Attempts(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, delivery.StatusSent, stored[0].Status)

	a, changed, err := e.RecordReceipt(ctx, delivery.Receipt{
		ExternalID: attempts[1].ExternalID,
		Channel:    notifications.ChannelEmail,
		Event:      delivery.ReceiptDelivered,
		Metadata:   map[string]any{"provider": "test"},
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, delivery.StatusDelivered, a.Status)

	receipts, err := e.Receipts(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, "test", receipts[0].Metadata["provider"])

	_, err = e.GetDeliveryStatus(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, delivery.ErrAttemptNotFound)
}

func TestConnectPostgres_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := delivery.ConnectPostgres(context.Background(), delivery.PostgresConfig{ConnectionString: "postgres://%zz"})
	assert.ErrorIs(t, err, delivery.ErrFailedToConnectToPostgres)
}
