package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// 下游消费的遥测流
const (
	ReadingsStream = "telemetry:readings:stream"
	AccessStream   = "telemetry:access:stream"
)

// PublishToStream 发布消息到 Redis Streams
func PublishToStream(ctx context.Context, client *redis.Client, stream string, values map[string]interface{}) (string, error) {
	// 将 values 转换为 Redis Streams 格式
	streamValues := make(map[string]interface{})
	for k, v := range values {
		// 将值转换为字符串
		var strValue string
		switch val := v.(type) {
		case string:
			strValue = val
		case []byte:
			strValue = string(val)
		case int:
			strValue = fmt.Sprintf("%d", val)
		case int64:
			strValue = fmt.Sprintf("%d", val)
		case float64:
			strValue = fmt.Sprintf("%f", val)
		case bool:
			if val {
				strValue = "true"
			} else {
				strValue = "false"
			}
		default:
			// 尝试 JSON 序列化
			jsonBytes, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			strValue = string(jsonBytes)
		}
		streamValues[k] = strValue
	}

	// 使用 XADD 命令添加消息
	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: streamValues,
	}).Result()

	return id, err
}

// PublishJSONToStream 发布 JSON 消息到 Redis Streams
func PublishJSONToStream(ctx context.Context, client *redis.Client, stream string, data interface{}) (string, error) {
	// 序列化为 JSON
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	// 发布到 Streams
	return PublishToStream(ctx, client, stream, map[string]interface{}{
		"data":      string(jsonBytes),
		"timestamp": time.Now().Unix(),
	})
}
