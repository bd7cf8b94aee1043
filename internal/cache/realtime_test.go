package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, *RealtimeCache) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	logger := zap.NewNop()
	realtime := NewRealtimeCache(redisClient, "workbit:device:", "workbit:space:", 300, logger)

	return mr, redisClient, realtime
}

func TestRealtimeCache_DeviceSnapshot(t *testing.T) {
	mr, _, realtime := setupTestRedis(t)
	ctx := context.Background()

	snapshot := map[string]interface{}{"device_id": "dev-001", "temperature": 22.5}
	require.NoError(t, realtime.SetDeviceSnapshot(ctx, "dev-001", snapshot))

	data, err := realtime.GetDeviceSnapshot(ctx, "dev-001")
	require.NoError(t, err)
	require.NotNil(t, data)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "dev-001", decoded["device_id"])

	// 带 TTL：过期后未命中
	mr.FastForward(301 * time.Second)
	data, err = realtime.GetDeviceSnapshot(ctx, "dev-001")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestRealtimeCache_DeviceSnapshotMiss(t *testing.T) {
	_, _, realtime := setupTestRedis(t)

	data, err := realtime.GetDeviceSnapshot(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestRealtimeCache_ActiveAlerts(t *testing.T) {
	_, _, realtime := setupTestRedis(t)
	ctx := context.Background()

	alert1 := map[string]string{"alert_id": "a-1", "severity": "high"}
	alert2 := map[string]string{"alert_id": "a-2", "severity": "medium"}

	require.NoError(t, realtime.AddActiveAlert(ctx, 12, "a-1", alert1))
	require.NoError(t, realtime.AddActiveAlert(ctx, 12, "a-2", alert2))

	alerts, err := realtime.ListActiveAlerts(ctx, 12)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
	assert.Contains(t, string(alerts["a-1"]), "high")

	require.NoError(t, realtime.RemoveActiveAlert(ctx, 12, "a-1"))

	alerts, err = realtime.ListActiveAlerts(ctx, 12)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
	_, ok := alerts["a-1"]
	assert.False(t, ok)
}

func TestRealtimeCache_GuestList(t *testing.T) {
	_, _, realtime := setupTestRedis(t)
	ctx := context.Background()

	// 未同步过的空间：空名单
	guests, err := realtime.GetGuestList(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, guests)

	require.NoError(t, realtime.SetGuestList(ctx, 12, []string{"C-41", "C-42"}))

	guests, err = realtime.GetGuestList(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, []string{"C-41", "C-42"}, guests)

	// 整体替换
	require.NoError(t, realtime.SetGuestList(ctx, 12, []string{"C-43"}))
	guests, err = realtime.GetGuestList(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, []string{"C-43"}, guests)
}

func TestPublishJSONToStream(t *testing.T) {
	mr, redisClient, _ := setupTestRedis(t)
	ctx := context.Background()

	id, err := PublishJSONToStream(ctx, redisClient, ReadingsStream, map[string]interface{}{
		"device_id": "dev-001",
		"value":     22.5,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.True(t, mr.Exists(ReadingsStream))
}
