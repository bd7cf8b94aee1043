package config

import (
	"fmt"
	"os"
	"strconv"
)

// DatabaseConfig PostgreSQL 配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT 配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte

	// 重连策略：固定间隔 + 次数上限，串行执行
	ReconnectIntervalSec int
	MaxReconnectAttempts int

	// 存活通告主题
	StatusTopic string
}

// Config 遥测服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 阈值配置（可调）
	Thresholds struct {
		TemperatureMin float64 // °C，低于触发
		TemperatureMax float64 // °C，高于触发
		HumidityMin    float64 // %
		HumidityMax    float64 // %
		CO2Warning     float64 // ppm，高于为 warning
		CO2Critical    float64 // ppm，高于为 critical
		SeverityFactor float64 // 超出 bound×factor 升级为 critical
	}

	// 离线扫描与数据保留
	Sweep struct {
		IntervalSec          int // 扫描周期（秒）
		OfflineAfterHours    int // last_seen 超过该时长标记 offline
		RetireAfterHours     int // last_seen 超过该时长删除设备记录
		ReadingRetentionDays int // 读数保留天数
		AlertRetentionDays   int // 已解决报警保留天数
	}

	// 实时缓存
	Cache struct {
		DeviceKeyPrefix string // 如 "workbit:device:"
		SpaceKeyPrefix  string // 如 "workbit:space:"
		SnapshotTTLSec  int
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "workbit")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "workbit-telemetry")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1
	cfg.MQTT.ReconnectIntervalSec = getEnvInt("MQTT_RECONNECT_INTERVAL", 5)
	cfg.MQTT.MaxReconnectAttempts = getEnvInt("MQTT_MAX_RECONNECT_ATTEMPTS", 30)
	cfg.MQTT.StatusTopic = getEnv("MQTT_STATUS_TOPIC", "backend/status")

	cfg.Thresholds.TemperatureMin = getEnvFloat("THRESHOLD_TEMP_MIN", 18.0)
	cfg.Thresholds.TemperatureMax = getEnvFloat("THRESHOLD_TEMP_MAX", 26.0)
	cfg.Thresholds.HumidityMin = getEnvFloat("THRESHOLD_HUMIDITY_MIN", 30.0)
	cfg.Thresholds.HumidityMax = getEnvFloat("THRESHOLD_HUMIDITY_MAX", 70.0)
	cfg.Thresholds.CO2Warning = getEnvFloat("THRESHOLD_CO2_WARNING", 800.0)
	cfg.Thresholds.CO2Critical = getEnvFloat("THRESHOLD_CO2_CRITICAL", 1000.0)
	cfg.Thresholds.SeverityFactor = getEnvFloat("THRESHOLD_SEVERITY_FACTOR", 1.2)

	cfg.Sweep.IntervalSec = getEnvInt("SWEEP_INTERVAL", 300)
	cfg.Sweep.OfflineAfterHours = getEnvInt("SWEEP_OFFLINE_AFTER_HOURS", 24)
	cfg.Sweep.RetireAfterHours = getEnvInt("SWEEP_RETIRE_AFTER_HOURS", 720)
	cfg.Sweep.ReadingRetentionDays = getEnvInt("READING_RETENTION_DAYS", 30)
	cfg.Sweep.AlertRetentionDays = getEnvInt("ALERT_RETENTION_DAYS", 90)

	cfg.Cache.DeviceKeyPrefix = getEnv("CACHE_DEVICE_PREFIX", "workbit:device:")
	cfg.Cache.SpaceKeyPrefix = getEnv("CACHE_SPACE_PREFIX", "workbit:space:")
	cfg.Cache.SnapshotTTLSec = getEnvInt("CACHE_SNAPSHOT_TTL", 300)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
