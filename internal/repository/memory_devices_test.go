package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workbit-telemetry/internal/models"
)

func TestMemoryUpdateStatus(t *testing.T) {
	repo := NewMemoryDevicesRepo()
	ctx := context.Background()

	require.NoError(t, repo.RegisterOrUpdate(ctx, &models.Device{
		DeviceID:   "dev-001",
		DeviceName: "Env Sensor 1",
		DeviceType: models.DeviceTypeEnvironmental,
		SpaceID:    12,
		SpaceName:  "Meeting Room A",
		Status:     models.DeviceStatusActive,
		LastSeen:   time.Now(),
	}))

	require.NoError(t, repo.UpdateStatus(ctx, "dev-001", models.DeviceStatusMaintenance))

	device, err := repo.GetDevice(ctx, "dev-001")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusMaintenance, device.Status)

	// 枚举之外的状态拒绝，与 PostgreSQL 实现保持一致
	err = repo.UpdateStatus(ctx, "dev-001", "broken")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status")

	device, err = repo.GetDevice(ctx, "dev-001")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusMaintenance, device.Status)

	err = repo.UpdateStatus(ctx, "ghost", models.DeviceStatusActive)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "device not found")
}
