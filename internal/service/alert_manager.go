package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"workbit-telemetry/internal/cache"
	"workbit-telemetry/internal/models"
	"workbit-telemetry/internal/repository"
)

// Publisher 报警通知出口（MQTT）
type Publisher interface {
	PublishJSON(topic string, qos byte, data interface{}) error
}

// AlertEvent alerts/{space_id} 通知消息
type AlertEvent struct {
	Event string        `json:"event"` // created, escalated, resolved
	Alert *models.Alert `json:"alert"`
}

// AlertManager 报警生命周期管理
// 持久化为准，MQTT 通知与 Redis 快照均为尽力而为：失败只记日志，
// 不影响报警记录本身
type AlertManager struct {
	alerts    repository.AlertsRepo
	publisher Publisher
	realtime  *cache.RealtimeCache
	qos       byte
	logger    *zap.Logger
}

// NewAlertManager 创建报警管理器
func NewAlertManager(
	alerts repository.AlertsRepo,
	publisher Publisher,
	realtime *cache.RealtimeCache,
	qos byte,
	logger *zap.Logger,
) *AlertManager {
	return &AlertManager{
		alerts:    alerts,
		publisher: publisher,
		realtime:  realtime,
		qos:       qos,
		logger:    logger,
	}
}

// CreateOrEscalate 去重写入：新建或升级同键未解决报警
func (m *AlertManager) CreateOrEscalate(ctx context.Context, cand *models.CandidateAlert) (*models.Alert, bool, error) {
	alert, created, err := m.alerts.CreateOrEscalate(ctx, cand, time.Now().UTC())
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert alert: %w", err)
	}

	event := "escalated"
	if created {
		event = "created"
	}
	m.logger.Info("Alert recorded",
		zap.String("alert_id", alert.AlertID),
		zap.String("alert_type", alert.AlertType),
		zap.String("severity", alert.Severity),
		zap.Int("space_id", alert.SpaceID),
		zap.String("device_id", alert.DeviceID),
		zap.Int("occurrence_count", alert.OccurrenceCount),
		zap.String("event", event),
	)

	m.notify(event, alert)
	m.cacheActive(ctx, alert)

	return alert, created, nil
}

// Resolve 手动解决报警
func (m *AlertManager) Resolve(ctx context.Context, alertID string, resolvedBy *string) (*models.Alert, error) {
	if err := m.alerts.Resolve(ctx, alertID, resolvedBy, false, time.Now().UTC()); err != nil {
		return nil, err
	}

	alert, err := m.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload alert: %w", err)
	}
	if alert == nil {
		return nil, fmt.Errorf("alert not found after resolve: %s", alertID)
	}

	m.logger.Info("Alert resolved",
		zap.String("alert_id", alert.AlertID),
		zap.String("alert_type", alert.AlertType),
		zap.Int("space_id", alert.SpaceID),
	)

	m.notify("resolved", alert)
	m.uncacheActive(ctx, alert)

	return alert, nil
}

// AutoResolve 条件恢复正常时按键解除，无未解决报警时为空操作
func (m *AlertManager) AutoResolve(ctx context.Context, spaceID int, alertType, deviceID string) (*models.Alert, error) {
	alert, err := m.alerts.ResolveOpenByKey(ctx, spaceID, alertType, deviceID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, nil
	}

	m.logger.Info("Alert auto-resolved",
		zap.String("alert_id", alert.AlertID),
		zap.String("alert_type", alert.AlertType),
		zap.Int("space_id", alert.SpaceID),
		zap.String("device_id", alert.DeviceID),
	)

	m.notify("resolved", alert)
	m.uncacheActive(ctx, alert)

	return alert, nil
}

// AddNotification 记录一次用户通知
func (m *AlertManager) AddNotification(ctx context.Context, alertID, userID, method string) error {
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if method == "" {
		method = "push"
	}

	rec := models.NotificationRecord{
		UserID:     userID,
		NotifiedAt: time.Now().UTC(),
		Method:     method,
	}
	return m.alerts.AddNotification(ctx, alertID, rec)
}

func (m *AlertManager) notify(event string, alert *models.Alert) {
	if m.publisher == nil {
		return
	}

	topic := fmt.Sprintf("alerts/%d", alert.SpaceID)
	if err := m.publisher.PublishJSON(topic, m.qos, AlertEvent{Event: event, Alert: alert}); err != nil {
		m.logger.Warn("Failed to publish alert notification",
			zap.String("topic", topic),
			zap.String("alert_id", alert.AlertID),
			zap.Error(err),
		)
	}
}

func (m *AlertManager) cacheActive(ctx context.Context, alert *models.Alert) {
	if m.realtime == nil {
		return
	}
	if err := m.realtime.AddActiveAlert(ctx, alert.SpaceID, alert.AlertID, alert); err != nil {
		m.logger.Warn("Failed to cache active alert",
			zap.String("alert_id", alert.AlertID),
			zap.Error(err),
		)
	}
}

func (m *AlertManager) uncacheActive(ctx context.Context, alert *models.Alert) {
	if m.realtime == nil {
		return
	}
	if err := m.realtime.RemoveActiveAlert(ctx, alert.SpaceID, alert.AlertID); err != nil {
		m.logger.Warn("Failed to evict resolved alert from cache",
			zap.String("alert_id", alert.AlertID),
			zap.Error(err),
		)
	}
}
