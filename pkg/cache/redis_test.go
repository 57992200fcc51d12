package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventReceipts_RecordAndSeen(t *testing.T) {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		addr = "localhost:6379"
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, "", 0)
	if err != nil {
		t.Skip("Redis not available")
	}
	defer client.Close()

	receipts := NewEventReceipts(client, time.Minute)
	eventID := "evt_" + uuid.NewString()

	_, seen, err := receipts.Seen(ctx, eventID)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, receipts.Record(ctx, eventID, "settled"))

	outcome, seen, err := receipts.Seen(ctx, eventID)
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, "settled", outcome)

	ttl, err := client.TTL(ctx, receiptPrefix+eventID).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute)
}
