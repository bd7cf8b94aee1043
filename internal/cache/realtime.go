package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RealtimeCache 实时快照缓存
// 设备最新读数与空间环境快照带 TTL；活跃报警与访客名单常驻，
// 由写入方负责增删
type RealtimeCache struct {
	client       *redis.Client
	devicePrefix string
	spacePrefix  string
	ttl          time.Duration
	logger       *zap.Logger
}

// NewRealtimeCache 创建实时缓存
func NewRealtimeCache(client *redis.Client, devicePrefix, spacePrefix string, ttlSec int, logger *zap.Logger) *RealtimeCache {
	return &RealtimeCache{
		client:       client,
		devicePrefix: devicePrefix,
		spacePrefix:  spacePrefix,
		ttl:          time.Duration(ttlSec) * time.Second,
		logger:       logger,
	}
}

// SetDeviceSnapshot 写入设备最新状态快照
func (c *RealtimeCache) SetDeviceSnapshot(ctx context.Context, deviceID string, snapshot interface{}) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal device snapshot: %w", err)
	}

	key := c.devicePrefix + deviceID + ":latest"
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set device snapshot: %w", err)
	}
	return nil
}

// GetDeviceSnapshot 读取设备最新状态快照，未命中返回 (nil, nil)
func (c *RealtimeCache) GetDeviceSnapshot(ctx context.Context, deviceID string) (json.RawMessage, error) {
	key := c.devicePrefix + deviceID + ":latest"
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get device snapshot: %w", err)
	}
	return data, nil
}

// SetSpaceEnvironment 写入空间环境快照
func (c *RealtimeCache) SetSpaceEnvironment(ctx context.Context, spaceID int, env interface{}) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal space environment: %w", err)
	}

	key := fmt.Sprintf("%s%d:environment", c.spacePrefix, spaceID)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set space environment: %w", err)
	}
	return nil
}

// AddActiveAlert 将报警加入空间的活跃报警集合
func (c *RealtimeCache) AddActiveAlert(ctx context.Context, spaceID int, alertID string, alert interface{}) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	key := fmt.Sprintf("%s%d:alerts", c.spacePrefix, spaceID)
	if err := c.client.HSet(ctx, key, alertID, data).Err(); err != nil {
		return fmt.Errorf("failed to add active alert: %w", err)
	}
	return nil
}

// RemoveActiveAlert 将报警移出空间的活跃报警集合
func (c *RealtimeCache) RemoveActiveAlert(ctx context.Context, spaceID int, alertID string) error {
	key := fmt.Sprintf("%s%d:alerts", c.spacePrefix, spaceID)
	if err := c.client.HDel(ctx, key, alertID).Err(); err != nil {
		return fmt.Errorf("failed to remove active alert: %w", err)
	}
	return nil
}

// ListActiveAlerts 列出空间的活跃报警
func (c *RealtimeCache) ListActiveAlerts(ctx context.Context, spaceID int) (map[string]json.RawMessage, error) {
	key := fmt.Sprintf("%s%d:alerts", c.spacePrefix, spaceID)
	values, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active alerts: %w", err)
	}

	out := make(map[string]json.RawMessage, len(values))
	for id, v := range values {
		out[id] = json.RawMessage(v)
	}
	return out, nil
}

// SetGuestList 写入空间访客名单（门禁校验用）
func (c *RealtimeCache) SetGuestList(ctx context.Context, spaceID int, guests []string) error {
	data, err := json.Marshal(guests)
	if err != nil {
		return fmt.Errorf("failed to marshal guest list: %w", err)
	}

	key := fmt.Sprintf("%s%d:guests", c.spacePrefix, spaceID)
	if err := c.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set guest list: %w", err)
	}
	return nil
}

// GetGuestList 读取空间访客名单，未命中返回空名单
func (c *RealtimeCache) GetGuestList(ctx context.Context, spaceID int) ([]string, error) {
	key := fmt.Sprintf("%s%d:guests", c.spacePrefix, spaceID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to get guest list: %w", err)
	}

	var guests []string
	if err := json.Unmarshal(data, &guests); err != nil {
		return nil, fmt.Errorf("failed to unmarshal guest list: %w", err)
	}
	return guests, nil
}
