package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"workbit-telemetry/internal/config"
	"workbit-telemetry/internal/models"
)

// MessageHandler 消息处理函数类型
type MessageHandler func(topic string, payload []byte)

// Subscription 订阅条目，重连后按表重新订阅
type Subscription struct {
	Topic   string
	QoS     byte
	Handler MessageHandler
}

// Client MQTT客户端封装
// 自行管理重连：固定间隔、次数上限、同一时刻只有一个重连循环。
// paho 内置的 AutoReconnect 被关闭，避免与本地策略叠加
type Client struct {
	client mqtt.Client
	config *config.MQTTConfig
	logger *zap.Logger

	mu            sync.Mutex
	subscriptions []Subscription
	reconnecting  bool
	stopped       bool
}

// NewClient 创建MQTT客户端（尚未连接）
func NewClient(cfg *config.MQTTConfig, logger *zap.Logger) *Client {
	c := &Client{
		config: cfg,
		logger: logger,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(false)
	opts.SetCleanSession(true)

	// 异常断开时 broker 代发 offline 遗嘱
	if will, err := statusPayload("offline"); err == nil {
		opts.SetWill(cfg.StatusTopic, string(will), cfg.QoS, false)
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect 首次连接
func (c *Client) Connect() error {
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// Subscribe 登记订阅并（已连接时）立即生效
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	c.mu.Lock()
	c.subscriptions = append(c.subscriptions, Subscription{Topic: topic, QoS: qos, Handler: handler})
	c.mu.Unlock()

	if !c.client.IsConnected() {
		return nil
	}
	return c.subscribe(topic, qos, handler)
}

func (c *Client) subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Publish 发布消息
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

// PublishJSON 序列化后发布
func (c *Client) PublishJSON(topic string, qos byte, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for topic %s: %w", topic, err)
	}
	return c.Publish(topic, qos, false, payload)
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Stop 通告下线并断开
func (c *Client) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	if c.client.IsConnected() {
		if payload, err := statusPayload("offline"); err == nil {
			if err := c.Publish(c.config.StatusTopic, c.config.QoS, false, payload); err != nil {
				c.logger.Warn("Failed to publish offline status", zap.Error(err))
			}
		}
	}
	c.client.Disconnect(250)
}

// onConnect 连接（含重连）成功后：重新订阅 + 通告上线
func (c *Client) onConnect(_ mqtt.Client) {
	c.logger.Info("Connected to MQTT broker", zap.String("broker", c.config.Broker))

	c.mu.Lock()
	subs := make([]Subscription, len(c.subscriptions))
	copy(subs, c.subscriptions)
	c.mu.Unlock()

	for _, sub := range subs {
		if err := c.subscribe(sub.Topic, sub.QoS, sub.Handler); err != nil {
			c.logger.Error("Failed to restore subscription",
				zap.String("topic", sub.Topic),
				zap.Error(err),
			)
		}
	}

	if payload, err := statusPayload("online"); err == nil {
		if err := c.Publish(c.config.StatusTopic, c.config.QoS, false, payload); err != nil {
			c.logger.Warn("Failed to publish online status", zap.Error(err))
		}
	}
}

// onConnectionLost 启动串行重连循环
func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Warn("MQTT connection lost", zap.Error(err))

	c.mu.Lock()
	if c.reconnecting || c.stopped {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	go c.reconnectLoop()
}

func (c *Client) reconnectLoop() {
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	interval := time.Duration(c.config.ReconnectIntervalSec) * time.Second

	for attempt := 1; attempt <= c.config.MaxReconnectAttempts; attempt++ {
		time.Sleep(interval)

		c.mu.Lock()
		stopped := c.stopped
		c.mu.Unlock()
		if stopped {
			return
		}

		c.logger.Info("Attempting MQTT reconnect",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.config.MaxReconnectAttempts),
		)

		token := c.client.Connect()
		if token.Wait() && token.Error() == nil {
			return
		}
		c.logger.Warn("MQTT reconnect failed",
			zap.Int("attempt", attempt),
			zap.Error(token.Error()),
		)
	}

	// 放弃重连但不退出进程，HTTP 与扫描仍可工作
	c.logger.Error("MQTT reconnect attempts exhausted, giving up",
		zap.Int("max_attempts", c.config.MaxReconnectAttempts),
	)
}

func statusPayload(status string) ([]byte, error) {
	return json.Marshal(models.BackendStatus{
		Status:    status,
		Timestamp: time.Now().Unix(),
	})
}
