package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"workbit-telemetry/internal/models"
)

// MemoryReadingsRepo 内存实现（append-only）
type MemoryReadingsRepo struct {
	mu       sync.Mutex
	nextID   int64
	readings []*models.SensorReading
}

// NewMemoryReadingsRepo 创建内存读数仓库
func NewMemoryReadingsRepo() *MemoryReadingsRepo {
	return &MemoryReadingsRepo{nextID: 1}
}

// 确保实现了接口
var _ ReadingsRepo = (*MemoryReadingsRepo)(nil)

func (r *MemoryReadingsRepo) Insert(_ context.Context, reading *models.SensorReading) (int64, error) {
	if reading == nil || reading.DeviceID == "" {
		return 0, fmt.Errorf("device_id is required")
	}
	if len(reading.Readings) == 0 {
		return 0, fmt.Errorf("readings cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *reading
	cp.ID = r.nextID
	r.nextID++
	r.readings = append(r.readings, &cp)
	return cp.ID, nil
}

func (r *MemoryReadingsRepo) ListByDevice(_ context.Context, deviceID string, limit int) ([]*models.SensorReading, error) {
	if limit <= 0 {
		limit = 20
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := []*models.SensorReading{}
	for i := len(r.readings) - 1; i >= 0 && len(out) < limit; i-- {
		if r.readings[i].DeviceID == deviceID {
			cp := *r.readings[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryReadingsRepo) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.readings[:0]
	var count int64
	for _, reading := range r.readings {
		if reading.RecordedAt.Before(cutoff) {
			count++
			continue
		}
		kept = append(kept, reading)
	}
	r.readings = kept
	return count, nil
}
