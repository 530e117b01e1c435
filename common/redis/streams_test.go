package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tankwatch-chart/common/config"
)

func setupTestRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPublishToStream_StringifiesValues(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	_, err := PublishToStream(ctx, client, "readings", map[string]interface{}{
		"level":  42.5,
		"count":  3,
		"ok":     true,
		"nested": map[string]int{"a": 1},
	})
	require.NoError(t, err)

	msgs, err := ReadStreamAfter(ctx, client, "readings", "0-0", 10, -1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "42.5", msgs[0].Values["level"])
	assert.Equal(t, "3", msgs[0].Values["count"])
	assert.Equal(t, "true", msgs[0].Values["ok"])
	assert.Equal(t, `{"a":1}`, msgs[0].Values["nested"])
}

func TestReadStreamAfter_OnlyNewerEntries(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	first, err := PublishJSONToStream(ctx, client, "readings", map[string]string{"id": "a"})
	require.NoError(t, err)
	_, err = PublishJSONToStream(ctx, client, "readings", map[string]string{"id": "b"})
	require.NoError(t, err)

	msgs, err := ReadStreamAfter(ctx, client, "readings", first, 10, -1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Values["data"], `"b"`)
}

func TestReadStreamAfter_BlockTimeoutIsEmpty(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	tail, err := LastStreamID(ctx, client, "empty")
	require.NoError(t, err)
	assert.Equal(t, "0-0", tail)

	msgs, err := ReadStreamAfter(ctx, client, "empty", tail, 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestLastStreamID_ReturnsNewest(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	_, err := PublishJSONToStream(ctx, client, "readings", 1)
	require.NoError(t, err)
	second, err := PublishJSONToStream(ctx, client, "readings", 2)
	require.NoError(t, err)

	tail, err := LastStreamID(ctx, client, "readings")
	require.NoError(t, err)
	assert.Equal(t, second, tail)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), &config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	assert.NoError(t, Close(client))

	addr := mr.Addr()
	mr.Close()
	_, err = Connect(context.Background(), &config.RedisConfig{Addr: addr})
	assert.Error(t, err)
	assert.NoError(t, Close(nil))
}
