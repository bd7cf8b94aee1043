package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"workbit-telemetry/internal/models"
)

// MemoryDevicesRepo 内存实现（用于 DB 未就绪时的联测和引擎单测）
type MemoryDevicesRepo struct {
	mu      sync.RWMutex
	devices map[string]*models.Device
}

// NewMemoryDevicesRepo 创建内存设备仓库
func NewMemoryDevicesRepo() *MemoryDevicesRepo {
	return &MemoryDevicesRepo{
		devices: map[string]*models.Device{},
	}
}

// 确保实现了接口
var _ DevicesRepo = (*MemoryDevicesRepo)(nil)

func (r *MemoryDevicesRepo) RegisterOrUpdate(_ context.Context, device *models.Device) error {
	if device == nil || device.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.devices[device.DeviceID]
	if !ok {
		cp := *device
		cp.Status = models.DeviceStatusActive
		cp.CreatedAt = device.LastSeen
		cp.UpdatedAt = device.LastSeen
		r.devices[device.DeviceID] = &cp
		return nil
	}

	existing.DeviceName = device.DeviceName
	existing.DeviceType = device.DeviceType
	existing.SpaceID = device.SpaceID
	existing.SpaceName = device.SpaceName
	existing.MQTTTopic = device.MQTTTopic
	if len(device.Sensors) > 0 {
		existing.Sensors = device.Sensors
	}
	if len(device.HardwareInfo) > 0 && string(device.HardwareInfo) != "{}" {
		existing.HardwareInfo = device.HardwareInfo
	}
	if device.Location != nil {
		existing.Location = device.Location
	}
	if existing.Status == models.DeviceStatusOffline {
		existing.Status = models.DeviceStatusActive
	}
	existing.LastSeen = device.LastSeen
	existing.LastPayload = device.LastPayload
	existing.UpdatedAt = device.LastSeen

	return nil
}

func (r *MemoryDevicesRepo) GetDevice(_ context.Context, deviceID string) (*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return nil, nil
	}
	cp := *device
	return &cp, nil
}

func (r *MemoryDevicesRepo) ListBySpace(_ context.Context, spaceID int) ([]*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.Device{}
	for _, d := range r.devices {
		if d.SpaceID == spaceID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sortDevices(out)
	return out, nil
}

func (r *MemoryDevicesRepo) ListDevices(_ context.Context) ([]*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.Device{}
	for _, d := range r.devices {
		cp := *d
		out = append(out, &cp)
	}
	sortDevices(out)
	return out, nil
}

func (r *MemoryDevicesRepo) Touch(_ context.Context, deviceID string, seenAt time.Time, lastPayload json.RawMessage) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return false, nil
	}
	device.LastSeen = seenAt
	if len(lastPayload) > 0 {
		device.LastPayload = lastPayload
	}
	if device.Status == models.DeviceStatusOffline {
		device.Status = models.DeviceStatusActive
	}
	device.UpdatedAt = seenAt
	return true, nil
}

func (r *MemoryDevicesRepo) UpdateStatus(_ context.Context, deviceID, status string) error {
	validStatuses := map[string]bool{
		models.DeviceStatusActive:      true,
		models.DeviceStatusInactive:    true,
		models.DeviceStatusMaintenance: true,
		models.DeviceStatusOffline:     true,
	}
	if !validStatuses[status] {
		return fmt.Errorf("invalid status: %s", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return fmt.Errorf("device not found: %s", deviceID)
	}
	device.Status = status
	return nil
}

func (r *MemoryDevicesRepo) GetStats(_ context.Context) (*models.DeviceStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &models.DeviceStats{}
	for _, d := range r.devices {
		stats.Total++
		switch d.Status {
		case models.DeviceStatusActive:
			stats.Active++
		case models.DeviceStatusInactive:
			stats.Inactive++
		case models.DeviceStatusMaintenance:
			stats.Maintenance++
		case models.DeviceStatusOffline:
			stats.Offline++
		}
	}
	return stats, nil
}

func (r *MemoryDevicesRepo) FindStale(_ context.Context, seenBefore time.Time) ([]*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.Device{}
	for _, d := range r.devices {
		if d.LastSeen.Before(seenBefore) &&
			d.Status != models.DeviceStatusOffline &&
			d.Status != models.DeviceStatusMaintenance {
			cp := *d
			out = append(out, &cp)
		}
	}
	sortDevices(out)
	return out, nil
}

func (r *MemoryDevicesRepo) MarkOffline(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return nil
	}
	if device.Status != models.DeviceStatusOffline && device.Status != models.DeviceStatusMaintenance {
		device.Status = models.DeviceStatusOffline
	}
	return nil
}

func (r *MemoryDevicesRepo) RetireStale(_ context.Context, seenBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, d := range r.devices {
		if d.LastSeen.Before(seenBefore) {
			delete(r.devices, id)
			count++
		}
	}
	return count, nil
}

func sortDevices(devices []*models.Device) {
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].DeviceName < devices[j].DeviceName
	})
}
