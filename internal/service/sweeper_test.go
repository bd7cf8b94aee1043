package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"workbit-telemetry/internal/config"
	"workbit-telemetry/internal/models"
	"workbit-telemetry/internal/repository"
)

type sweeperFixture struct {
	sweeper  *Sweeper
	devices  *repository.MemoryDevicesRepo
	readings *repository.MemoryReadingsRepo
	alerts   *repository.MemoryAlertsRepo
}

func newSweeperFixture(t *testing.T) *sweeperFixture {
	t.Helper()

	devices := repository.NewMemoryDevicesRepo()
	readings := repository.NewMemoryReadingsRepo()
	alerts := repository.NewMemoryAlertsRepo()

	cfg := config.Config{}
	cfg.Sweep.IntervalSec = 300
	cfg.Sweep.OfflineAfterHours = 24
	cfg.Sweep.RetireAfterHours = 720
	cfg.Sweep.ReadingRetentionDays = 30
	cfg.Sweep.AlertRetentionDays = 90

	logger := zap.NewNop()
	manager := NewAlertManager(alerts, nil, nil, 1, logger)

	return &sweeperFixture{
		sweeper:  NewSweeper(devices, readings, manager, cfg, logger),
		devices:  devices,
		readings: readings,
		alerts:   alerts,
	}
}

func addDevice(t *testing.T, f *sweeperFixture, deviceID string, lastSeen time.Time) {
	t.Helper()
	err := f.devices.RegisterOrUpdate(context.Background(), &models.Device{
		DeviceID:   deviceID,
		DeviceName: deviceID,
		DeviceType: models.DeviceTypeEnvironmental,
		SpaceID:    12,
		SpaceName:  "Meeting Room A",
		LastSeen:   lastSeen,
	})
	require.NoError(t, err)
}

func TestSweeper_MarksStaleDeviceOffline(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	addDevice(t, f, "stale-1", time.Now().Add(-25*time.Hour))
	addDevice(t, f, "fresh-1", time.Now())

	f.sweeper.RunOnce(ctx)

	stale, err := f.devices.GetDevice(ctx, "stale-1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOffline, stale.Status)

	fresh, err := f.devices.GetDevice(ctx, "fresh-1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusActive, fresh.Status)

	resolved := false
	alerts, err := f.alerts.ListAlerts(ctx, repository.AlertFilters{Resolved: &resolved})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertDeviceOffline, alerts[0].AlertType)
	assert.Equal(t, models.SeverityMedium, alerts[0].Severity)
	assert.Equal(t, "stale-1", alerts[0].DeviceID)
}

func TestSweeper_RepeatedSweepsDoNotDuplicate(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	addDevice(t, f, "stale-1", time.Now().Add(-25*time.Hour))

	f.sweeper.RunOnce(ctx)
	f.sweeper.RunOnce(ctx)
	f.sweeper.RunOnce(ctx)

	// 已标记 offline 的设备不再参与扫描，报警也只有一条
	resolved := false
	alerts, err := f.alerts.ListAlerts(ctx, repository.AlertFilters{Resolved: &resolved})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestSweeper_BoundaryNotYetStale(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	addDevice(t, f, "edge-1", time.Now().Add(-23*time.Hour))

	f.sweeper.RunOnce(ctx)

	device, err := f.devices.GetDevice(ctx, "edge-1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusActive, device.Status)
}

func TestSweeper_MaintenanceExcluded(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	addDevice(t, f, "repair-1", time.Now().Add(-48*time.Hour))
	require.NoError(t, f.devices.UpdateStatus(ctx, "repair-1", models.DeviceStatusMaintenance))

	f.sweeper.RunOnce(ctx)

	device, err := f.devices.GetDevice(ctx, "repair-1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusMaintenance, device.Status)

	resolved := false
	alerts, err := f.alerts.ListAlerts(ctx, repository.AlertFilters{Resolved: &resolved})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestSweeper_RetiresLongDeadDevices(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	addDevice(t, f, "dead-1", time.Now().Add(-800*time.Hour))

	f.sweeper.RunOnce(ctx)

	device, err := f.devices.GetDevice(ctx, "dead-1")
	require.NoError(t, err)
	assert.Nil(t, device)
}

func TestSweeper_PurgesExpiredData(t *testing.T) {
	f := newSweeperFixture(t)
	ctx := context.Background()

	addDevice(t, f, "dev-001", time.Now())
	_, err := f.readings.Insert(ctx, &models.SensorReading{
		DeviceID:   "dev-001",
		SpaceID:    12,
		RecordedAt: time.Now().AddDate(0, 0, -31),
		Readings:   []models.Reading{{SensorName: "t", SensorType: "temperature", Value: models.NumberValue(22)}},
	})
	require.NoError(t, err)

	value := 27.4
	alert, _, err := f.alerts.CreateOrEscalate(ctx, &models.CandidateAlert{
		SpaceID:   12,
		AlertType: models.AlertTemperatureCritical,
		Severity:  models.SeverityHigh,
		Value:     &value,
		Message:   "Temperature above maximum",
		DeviceID:  "dev-001",
	}, time.Now().AddDate(0, 0, -100))
	require.NoError(t, err)
	require.NoError(t, f.alerts.Resolve(ctx, alert.AlertID, nil, true, time.Now().AddDate(0, 0, -95)))

	f.sweeper.RunOnce(ctx)

	readings, err := f.readings.ListByDevice(ctx, "dev-001", 10)
	require.NoError(t, err)
	assert.Empty(t, readings)

	gone, err := f.alerts.GetAlert(ctx, alert.AlertID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
