package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"workbit-telemetry/internal/cache"
	"workbit-telemetry/internal/config"
	"workbit-telemetry/internal/consumer"
	"workbit-telemetry/internal/database"
	"workbit-telemetry/internal/evaluator"
	"workbit-telemetry/internal/httpapi"
	mqttclient "workbit-telemetry/internal/mqtt"
	"workbit-telemetry/internal/repository"
)

// TelemetryService 遥测服务：组装所有组件并管理生命周期
type TelemetryService struct {
	config     *config.Config
	logger     *zap.Logger
	db         *sql.DB
	redis      *redis.Client
	mqttClient *mqttclient.Client
	consumer   *consumer.MQTTConsumer
	sweeper    *Sweeper
	httpServer *http.Server
}

// NewTelemetryService 创建遥测服务
func NewTelemetryService(cfg *config.Config, logger *zap.Logger) (*TelemetryService, error) {
	// 初始化数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 初始化Redis
	redisClient := cache.NewRedisClient(&cfg.Redis)
	if err := cache.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 初始化MQTT（尚未连接，Start 时再连）
	mqttClient := mqttclient.NewClient(&cfg.MQTT, logger)

	// 创建Repository
	devicesRepo := repository.NewPostgresDevicesRepo(db, logger)
	readingsRepo := repository.NewPostgresReadingsRepo(db, logger)
	alertsRepo := repository.NewPostgresAlertsRepo(db, logger)

	// 实时缓存
	realtime := cache.NewRealtimeCache(
		redisClient,
		cfg.Cache.DeviceKeyPrefix,
		cfg.Cache.SpaceKeyPrefix,
		cfg.Cache.SnapshotTTLSec,
		logger,
	)

	// 报警管理与遥测引擎
	alertManager := NewAlertManager(alertsRepo, mqttClient, realtime, cfg.MQTT.QoS, logger)
	thresholds := evaluator.Thresholds{
		TemperatureMin: cfg.Thresholds.TemperatureMin,
		TemperatureMax: cfg.Thresholds.TemperatureMax,
		HumidityMin:    cfg.Thresholds.HumidityMin,
		HumidityMax:    cfg.Thresholds.HumidityMax,
		CO2Warning:     cfg.Thresholds.CO2Warning,
		CO2Critical:    cfg.Thresholds.CO2Critical,
		SeverityFactor: cfg.Thresholds.SeverityFactor,
	}
	engine := NewEngine(devicesRepo, readingsRepo, alertManager, thresholds,
		realtime, redisClient, mqttClient, cfg.MQTT.QoS, logger)

	// 创建Consumer与Sweeper
	mqttConsumer := consumer.NewMQTTConsumer(cfg, mqttClient, engine, logger)
	sweeper := NewSweeper(devicesRepo, readingsRepo, alertManager, *cfg, logger)

	// HTTP API
	router := httpapi.NewRouter(logger)
	router.RegisterTelemetryRoutes(
		httpapi.NewDeviceHandler(devicesRepo, readingsRepo, logger),
		httpapi.NewAlertHandler(alertsRepo, alertManager, logger),
	)
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return &TelemetryService{
		config:     cfg,
		logger:     logger,
		db:         db,
		redis:      redisClient,
		mqttClient: mqttClient,
		consumer:   mqttConsumer,
		sweeper:    sweeper,
		httpServer: httpServer,
	}, nil
}

// Start 启动服务
func (s *TelemetryService) Start(ctx context.Context) error {
	s.logger.Info("Starting telemetry service components")

	// 订阅表先建好，连接成功后由客户端按表订阅
	if err := s.consumer.Start(); err != nil {
		return fmt.Errorf("failed to start MQTT consumer: %w", err)
	}
	if err := s.mqttClient.Connect(); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	s.sweeper.Start()

	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.config.HTTP.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	s.logger.Info("Telemetry service started successfully")
	return nil
}

// Stop 停止服务
func (s *TelemetryService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping telemetry service")

	// 先停 HTTP，再排空消费者，最后断开 MQTT 和存储
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("Error shutting down HTTP server", zap.Error(err))
		}
	}

	if s.sweeper != nil {
		s.sweeper.Stop()
	}

	if s.consumer != nil {
		s.consumer.Stop()
	}

	if s.mqttClient != nil {
		s.mqttClient.Stop()
	}

	if s.redis != nil {
		if err := cache.Close(s.redis); err != nil {
			s.logger.Error("Error closing redis", zap.Error(err))
		}
	}

	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Error closing database", zap.Error(err))
		}
	}

	s.logger.Info("Telemetry service stopped")
	return nil
}
