package repository

import (
	"context"
	"time"

	"workbit-telemetry/internal/models"
)

// AlertFilters 报警查询过滤条件
type AlertFilters struct {
	Severity  *string
	AlertType *string
	Resolved  *bool
	SpaceID   *int
	DeviceID  *string
	Limit     int
}

// AlertsRepo 报警仓库接口
type AlertsRepo interface {
	// CreateOrEscalate 原子 find-or-create：
	// 同一 (space_id, alert_type, device_id) 存在未解决报警时升级该报警
	// （occurrence_count+1，刷新 value/severity/sensor_data/last_occurrence），
	// 否则创建新报警。返回最终记录和是否为新建。
	// 实现必须是单条 upsert，不允许先查后插。
	CreateOrEscalate(ctx context.Context, cand *models.CandidateAlert, now time.Time) (*models.Alert, bool, error)

	// GetAlert 按 alert_id 查询，不存在返回 (nil, nil)
	GetAlert(ctx context.Context, alertID string) (*models.Alert, error)

	// ListAlerts 按条件查询，last_occurrence 倒序
	ListAlerts(ctx context.Context, filters AlertFilters) ([]*models.Alert, error)

	// Resolve 解决报警（终态，同一记录不会重新打开）
	// resolvedBy 为 nil 且 auto=true 表示系统自动解除
	Resolve(ctx context.Context, alertID string, resolvedBy *string, auto bool, at time.Time) error

	// ResolveOpenByKey 按去重键解决未解决报警（自动解除路径）
	// 无未解决报警时返回 (nil, nil)
	ResolveOpenByKey(ctx context.Context, spaceID int, alertType, deviceID string, at time.Time) (*models.Alert, error)

	// AddNotification 追加通知记录（引擎不去重）
	AddNotification(ctx context.Context, alertID string, rec models.NotificationRecord) error

	// PurgeResolvedBefore 删除 resolved_at 早于 cutoff 的已解决报警
	// 未解决报警永不清除
	PurgeResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
