package repository

import (
	"context"
	"time"

	"workbit-telemetry/internal/models"
)

// ReadingsRepo 传感器读数仓库接口（append-only）
type ReadingsRepo interface {
	// Insert 追加一条读数批次，返回生成的 id
	Insert(ctx context.Context, reading *models.SensorReading) (int64, error)

	// ListByDevice 按设备查询最近的读数批次
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]*models.SensorReading, error)

	// PurgeOlderThan 删除 recorded_at 早于 cutoff 的读数
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
