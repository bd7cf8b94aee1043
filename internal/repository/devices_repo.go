package repository

import (
	"context"
	"encoding/json"
	"time"

	"workbit-telemetry/internal/models"
)

// DevicesRepo 设备仓库接口
type DevicesRepo interface {
	// RegisterOrUpdate 注册或更新设备（merge-overwrite，last_seen 总是刷新）
	RegisterOrUpdate(ctx context.Context, device *models.Device) error

	// GetDevice 按 device_id 查询，不存在返回 (nil, nil)
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)

	// ListBySpace 按空间查询
	ListBySpace(ctx context.Context, spaceID int) ([]*models.Device, error)

	// ListDevices 查询全部设备
	ListDevices(ctx context.Context) ([]*models.Device, error)

	// Touch 刷新 last_seen（lastPayload 为 nil 时不覆盖）
	// offline 设备被触达后回到 active；返回 false 表示设备不存在
	Touch(ctx context.Context, deviceID string, seenAt time.Time, lastPayload json.RawMessage) (bool, error)

	// UpdateStatus 人工状态覆盖（maintenance 等）
	UpdateStatus(ctx context.Context, deviceID, status string) error

	// GetStats 按状态统计设备数量
	GetStats(ctx context.Context) (*models.DeviceStats, error)

	// FindStale 查询 last_seen 早于 seenBefore 且尚未 offline 的设备
	// maintenance 状态不参与离线判定
	FindStale(ctx context.Context, seenBefore time.Time) ([]*models.Device, error)

	// MarkOffline 标记设备离线
	MarkOffline(ctx context.Context, deviceID string) error

	// RetireStale 删除 last_seen 早于 seenBefore 的设备记录
	RetireStale(ctx context.Context, seenBefore time.Time) (int64, error)
}
