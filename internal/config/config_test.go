package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "workbit", cfg.Database.Database)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, 5, cfg.MQTT.ReconnectIntervalSec)
	assert.Equal(t, 30, cfg.MQTT.MaxReconnectAttempts)
	assert.Equal(t, "backend/status", cfg.MQTT.StatusTopic)

	assert.Equal(t, 18.0, cfg.Thresholds.TemperatureMin)
	assert.Equal(t, 26.0, cfg.Thresholds.TemperatureMax)
	assert.Equal(t, 30.0, cfg.Thresholds.HumidityMin)
	assert.Equal(t, 70.0, cfg.Thresholds.HumidityMax)
	assert.Equal(t, 800.0, cfg.Thresholds.CO2Warning)
	assert.Equal(t, 1000.0, cfg.Thresholds.CO2Critical)
	assert.Equal(t, 1.2, cfg.Thresholds.SeverityFactor)

	assert.Equal(t, 300, cfg.Sweep.IntervalSec)
	assert.Equal(t, 24, cfg.Sweep.OfflineAfterHours)
	assert.Equal(t, 30, cfg.Sweep.ReadingRetentionDays)
	assert.Equal(t, 90, cfg.Sweep.AlertRetentionDays)

	assert.Equal(t, "workbit:device:", cfg.Cache.DeviceKeyPrefix)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "15432")
	t.Setenv("MQTT_BROKER", "tcp://broker.internal:1883")
	t.Setenv("MQTT_MAX_RECONNECT_ATTEMPTS", "10")
	t.Setenv("THRESHOLD_TEMP_MAX", "28.5")
	t.Setenv("SWEEP_OFFLINE_AFTER_HOURS", "12")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 15432, cfg.Database.Port)
	assert.Equal(t, "tcp://broker.internal:1883", cfg.MQTT.Broker)
	assert.Equal(t, 10, cfg.MQTT.MaxReconnectAttempts)
	assert.Equal(t, 28.5, cfg.Thresholds.TemperatureMax)
	assert.Equal(t, 12, cfg.Sweep.OfflineAfterHours)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")
	t.Setenv("THRESHOLD_TEMP_MAX", "warm")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 26.0, cfg.Thresholds.TemperatureMax)
}

func TestGetDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "workbit",
		Password: "secret",
		Database: "telemetry",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.internal port=5432 user=workbit password=secret dbname=telemetry sslmode=require",
		cfg.GetDSN())
}
