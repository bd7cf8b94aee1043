package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"workbit-telemetry/internal/config"
	"workbit-telemetry/internal/models"
	"workbit-telemetry/internal/repository"
)

// Sweeper 周期维护任务：离线判定、设备淘汰、数据保留
// 单 goroutine 串行执行，一轮跑完才会开始下一轮，不会重叠
type Sweeper struct {
	devices  repository.DevicesRepo
	readings repository.ReadingsRepo
	alerts   *AlertManager
	cfg      config.Config
	logger   *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// NewSweeper 创建扫描器
func NewSweeper(
	devices repository.DevicesRepo,
	readings repository.ReadingsRepo,
	alerts *AlertManager,
	cfg config.Config,
	logger *zap.Logger,
) *Sweeper {
	return &Sweeper{
		devices:  devices,
		readings: readings,
		alerts:   alerts,
		cfg:      cfg,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动周期扫描
func (s *Sweeper) Start() {
	interval := time.Duration(s.cfg.Sweep.IntervalSec) * time.Second

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.logger.Info("Sweeper started", zap.Duration("interval", interval))
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.RunOnce(context.Background())
			}
		}
	}()
}

// Stop 停止扫描并等待当前一轮结束
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
	s.logger.Info("Sweeper stopped")
}

// RunOnce 执行一轮扫描
func (s *Sweeper) RunOnce(ctx context.Context) {
	now := time.Now().UTC()

	if err := s.sweepOffline(ctx, now); err != nil {
		s.logger.Error("Offline sweep failed", zap.Error(err))
	}
	if err := s.retireStale(ctx, now); err != nil {
		s.logger.Error("Device retirement failed", zap.Error(err))
	}
	s.purgeExpired(ctx, now)
}

// sweepOffline 将超时未上报的设备标记 offline 并产生 device_offline 报警
// 去重键保证重复扫描不会堆积重复报警，只会升级已有的那条
func (s *Sweeper) sweepOffline(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-time.Duration(s.cfg.Sweep.OfflineAfterHours) * time.Hour)

	stale, err := s.devices.FindStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to find stale devices: %w", err)
	}

	for _, device := range stale {
		if err := s.devices.MarkOffline(ctx, device.DeviceID); err != nil {
			s.logger.Error("Failed to mark device offline",
				zap.String("device_id", device.DeviceID),
				zap.Error(err),
			)
			continue
		}

		s.logger.Info("Device marked offline",
			zap.String("device_id", device.DeviceID),
			zap.Int("space_id", device.SpaceID),
			zap.Time("last_seen", device.LastSeen),
		)

		cand := &models.CandidateAlert{
			SpaceID:   device.SpaceID,
			AlertType: models.AlertDeviceOffline,
			Severity:  models.SeverityMedium,
			Message: fmt.Sprintf("Device %s in %s has not reported since %s",
				device.DeviceName, device.SpaceName, device.LastSeen.Format(time.RFC3339)),
			DeviceID: device.DeviceID,
		}
		if _, _, err := s.alerts.CreateOrEscalate(ctx, cand); err != nil {
			s.logger.Error("Failed to record offline alert",
				zap.String("device_id", device.DeviceID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// retireStale 删除长期无上报的设备（级联删除其读数）
func (s *Sweeper) retireStale(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-time.Duration(s.cfg.Sweep.RetireAfterHours) * time.Hour)

	count, err := s.devices.RetireStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to retire devices: %w", err)
	}
	if count > 0 {
		s.logger.Info("Retired stale devices", zap.Int64("count", count))
	}
	return nil
}

// purgeExpired 按保留期清理读数与已解决报警
func (s *Sweeper) purgeExpired(ctx context.Context, now time.Time) {
	readingCutoff := now.AddDate(0, 0, -s.cfg.Sweep.ReadingRetentionDays)
	if _, err := s.readings.PurgeOlderThan(ctx, readingCutoff); err != nil {
		s.logger.Error("Reading purge failed", zap.Error(err))
	}

	alertCutoff := now.AddDate(0, 0, -s.cfg.Sweep.AlertRetentionDays)
	if _, err := s.alerts.alerts.PurgeResolvedBefore(ctx, alertCutoff); err != nil {
		s.logger.Error("Alert purge failed", zap.Error(err))
	}
}
