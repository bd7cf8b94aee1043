package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"workbit-telemetry/internal/config"
	"workbit-telemetry/internal/logger"
	"workbit-telemetry/internal/service"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "workbit-telemetry")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 创建服务
	telemetry, err := service.NewTelemetryService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create telemetry service",
			zap.Error(err),
		)
	}

	// 4. 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := telemetry.Start(ctx); err != nil {
		log.Fatal("Failed to start telemetry service",
			zap.Error(err),
		)
	}

	// 5. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received signal, shutting down",
		zap.String("signal", sig.String()),
	)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := telemetry.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
	}

	log.Info("Telemetry service stopped")
}
