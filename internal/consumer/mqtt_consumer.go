package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"workbit-telemetry/internal/config"
	"workbit-telemetry/internal/models"
	mqttclient "workbit-telemetry/internal/mqtt"
)

// ErrDecode 消息体无法解析，调用方用 errors.Is 区分
var ErrDecode = errors.New("decode failed")

// Engine 消费者依赖的遥测引擎接口
type Engine interface {
	RegisterDevice(ctx context.Context, reg *models.DeviceRegistration) error
	IngestReadings(ctx context.Context, deviceID string, payload *models.ReadingsPayload) error
	IngestEnvironmental(ctx context.Context, payload *models.EnvironmentalPayload) error
	RecordAccess(ctx context.Context, req *models.AccessRequest) error
	SyncGuestList(ctx context.Context, gl *models.GuestList) error
}

// MQTTConsumer MQTT消息消费者
// 订阅表在 Start 时建好一次，重连后由客户端按表恢复。
// 每条消息独立 goroutine 处理，Stop 时等待在途消息处理完
type MQTTConsumer struct {
	config     *config.Config
	mqttClient *mqttclient.Client
	engine     Engine
	logger     *zap.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	cfg *config.Config,
	mqttClient *mqttclient.Client,
	engine Engine,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		engine:     engine,
		logger:     logger,
	}
}

// Start 建立订阅表
func (c *MQTTConsumer) Start() error {
	qos := c.config.MQTT.QoS

	routes := []struct {
		topic   string
		handler mqttclient.MessageHandler
	}{
		{"devices/add", c.dispatch(c.handleDeviceAdd)},
		{"devices/+/readings", c.dispatch(c.handleReadings)},
		{"sensors/environmental_data", c.dispatch(c.handleEnvironmental)},
		{"access/request", c.dispatch(c.handleAccessRequest)},
		{"guests/list", c.dispatch(c.handleGuestList)},
		// 出站推送主题的回显，仅用于观测
		{"credentials/+", c.logOnly},
		{"alerts/+", c.logOnly},
	}

	for _, route := range routes {
		if err := c.mqttClient.Subscribe(route.topic, qos, route.handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", route.topic, err)
		}
		c.logger.Info("Subscribed to topic", zap.String("topic", route.topic))
	}

	return nil
}

// Stop 停止接收并排空在途消息
func (c *MQTTConsumer) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("MQTT consumer stopped")
}

// dispatch 每条消息一个 goroutine，停止后收到的消息直接丢弃
func (c *MQTTConsumer) dispatch(handler func(topic string, payload []byte) error) mqttclient.MessageHandler {
	return func(topic string, payload []byte) {
		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			return
		}
		c.wg.Add(1)
		c.mu.Unlock()

		go func() {
			defer c.wg.Done()

			c.logger.Debug("Received MQTT message",
				zap.String("topic", topic),
				zap.Int("payload_size", len(payload)),
			)

			if err := handler(topic, payload); err != nil {
				// 消息级失败只记日志，不影响其他消息
				c.logger.Warn("Failed to process MQTT message",
					zap.String("topic", topic),
					zap.Error(err),
				)
			}
		}()
	}
}

func (c *MQTTConsumer) logOnly(topic string, payload []byte) {
	c.logger.Debug("Observed outbound topic echo",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)
}

func (c *MQTTConsumer) handleDeviceAdd(_ string, payload []byte) error {
	var reg models.DeviceRegistration
	if err := json.Unmarshal(payload, &reg); err != nil {
		return fmt.Errorf("%w: registration: %v", ErrDecode, err)
	}
	return c.engine.RegisterDevice(context.Background(), &reg)
}

func (c *MQTTConsumer) handleReadings(topic string, payload []byte) error {
	// 主题格式: devices/{device_id}/readings
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[1] == "" {
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	deviceID := parts[1]

	var readings models.ReadingsPayload
	if err := json.Unmarshal(payload, &readings); err != nil {
		return fmt.Errorf("%w: readings: %v", ErrDecode, err)
	}
	return c.engine.IngestReadings(context.Background(), deviceID, &readings)
}

func (c *MQTTConsumer) handleEnvironmental(_ string, payload []byte) error {
	var env models.EnvironmentalPayload
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("%w: environmental data: %v", ErrDecode, err)
	}
	return c.engine.IngestEnvironmental(context.Background(), &env)
}

func (c *MQTTConsumer) handleAccessRequest(_ string, payload []byte) error {
	var req models.AccessRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("%w: access request: %v", ErrDecode, err)
	}
	return c.engine.RecordAccess(context.Background(), &req)
}

func (c *MQTTConsumer) handleGuestList(_ string, payload []byte) error {
	var gl models.GuestList
	if err := json.Unmarshal(payload, &gl); err != nil {
		return fmt.Errorf("%w: guest list: %v", ErrDecode, err)
	}
	return c.engine.SyncGuestList(context.Background(), &gl)
}
