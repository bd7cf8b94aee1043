package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"workbit-telemetry/internal/models"
)

// PostgresDevicesRepo 设备仓库 PostgreSQL 实现
type PostgresDevicesRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresDevicesRepo 创建设备仓库
func NewPostgresDevicesRepo(db *sql.DB, logger *zap.Logger) *PostgresDevicesRepo {
	return &PostgresDevicesRepo{db: db, logger: logger}
}

// 确保实现了接口
var _ DevicesRepo = (*PostgresDevicesRepo)(nil)

const deviceColumns = `
	device_id,
	device_name,
	device_type,
	space_id,
	space_name,
	status,
	mqtt_topic,
	sensors,
	hardware_info,
	location,
	last_seen,
	last_payload,
	created_at,
	updated_at
`

// RegisterOrUpdate 注册或更新设备
// merge-overwrite：空的 sensors/hardware_info 不覆盖已有值，last_seen 总是刷新，
// offline 设备重新注册后回到 active
func (r *PostgresDevicesRepo) RegisterOrUpdate(ctx context.Context, device *models.Device) error {
	if device == nil {
		return fmt.Errorf("device is required")
	}
	if device.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	sensors, err := json.Marshal(device.Sensors)
	if err != nil {
		return fmt.Errorf("failed to marshal sensors: %w", err)
	}
	hardwareInfo := device.HardwareInfo
	if len(hardwareInfo) == 0 {
		hardwareInfo = json.RawMessage("{}")
	}
	lastPayload := device.LastPayload
	if len(lastPayload) == 0 {
		lastPayload = json.RawMessage("{}")
	}

	query := `
		INSERT INTO devices (
			device_id, device_name, device_type, space_id, space_name,
			status, mqtt_topic, sensors, hardware_info, location,
			last_seen, last_payload
		) VALUES (
			$1, $2, $3, $4, $5, 'active', $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (device_id) DO UPDATE SET
			device_name   = EXCLUDED.device_name,
			device_type   = EXCLUDED.device_type,
			space_id      = EXCLUDED.space_id,
			space_name    = EXCLUDED.space_name,
			mqtt_topic    = EXCLUDED.mqtt_topic,
			sensors       = CASE WHEN EXCLUDED.sensors = '[]'::jsonb
			                     THEN devices.sensors ELSE EXCLUDED.sensors END,
			hardware_info = CASE WHEN EXCLUDED.hardware_info = '{}'::jsonb
			                     THEN devices.hardware_info ELSE EXCLUDED.hardware_info END,
			location      = COALESCE(EXCLUDED.location, devices.location),
			status        = CASE WHEN devices.status = 'offline'
			                     THEN 'active' ELSE devices.status END,
			last_seen     = EXCLUDED.last_seen,
			last_payload  = EXCLUDED.last_payload,
			updated_at    = CURRENT_TIMESTAMP
	`

	_, err = r.db.ExecContext(ctx, query,
		device.DeviceID,
		device.DeviceName,
		device.DeviceType,
		device.SpaceID,
		device.SpaceName,
		device.MQTTTopic,
		sensors,
		hardwareInfo,
		device.Location,
		device.LastSeen,
		lastPayload,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}

	return nil
}

// GetDevice 按 device_id 查询
func (r *PostgresDevicesRepo) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	query := `SELECT ` + deviceColumns + ` FROM devices WHERE device_id = $1`

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, deviceID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return device, nil
}

// ListBySpace 按空间查询设备
func (r *PostgresDevicesRepo) ListBySpace(ctx context.Context, spaceID int) ([]*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE space_id = $1 ORDER BY device_name`

	rows, err := r.db.QueryContext(ctx, query, spaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices by space: %w", err)
	}
	defer rows.Close()

	return scanDevices(rows)
}

// ListDevices 查询全部设备
func (r *PostgresDevicesRepo) ListDevices(ctx context.Context) ([]*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY device_name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	return scanDevices(rows)
}

// Touch 刷新 last_seen（重放同一消息是安全的：重复设置相同值）
func (r *PostgresDevicesRepo) Touch(ctx context.Context, deviceID string, seenAt time.Time, lastPayload json.RawMessage) (bool, error) {
	if deviceID == "" {
		return false, fmt.Errorf("device_id is required")
	}

	query := `
		UPDATE devices
		SET last_seen    = $2,
		    last_payload = COALESCE($3, last_payload),
		    status       = CASE WHEN status = 'offline' THEN 'active' ELSE status END,
		    updated_at   = CURRENT_TIMESTAMP
		WHERE device_id = $1
	`

	var payload interface{}
	if len(lastPayload) > 0 {
		payload = []byte(lastPayload)
	}

	result, err := r.db.ExecContext(ctx, query, deviceID, seenAt, payload)
	if err != nil {
		return false, fmt.Errorf("failed to touch device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// UpdateStatus 人工状态覆盖
func (r *PostgresDevicesRepo) UpdateStatus(ctx context.Context, deviceID, status string) error {
	if deviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	validStatuses := map[string]bool{
		models.DeviceStatusActive:      true,
		models.DeviceStatusInactive:    true,
		models.DeviceStatusMaintenance: true,
		models.DeviceStatusOffline:     true,
	}
	if !validStatuses[status] {
		return fmt.Errorf("invalid status: %s", status)
	}

	query := `
		UPDATE devices
		SET status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE device_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, deviceID, status)
	if err != nil {
		return fmt.Errorf("failed to update device status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("device not found: %s", deviceID)
	}

	return nil
}

// GetStats 按状态统计
func (r *PostgresDevicesRepo) GetStats(ctx context.Context) (*models.DeviceStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'inactive'),
			COUNT(*) FILTER (WHERE status = 'maintenance'),
			COUNT(*) FILTER (WHERE status = 'offline')
		FROM devices
	`

	var stats models.DeviceStats
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.Total,
		&stats.Active,
		&stats.Inactive,
		&stats.Maintenance,
		&stats.Offline,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get device stats: %w", err)
	}

	return &stats, nil
}

// FindStale 查询超过静默窗口、尚未标记离线的设备
// maintenance 是人工覆盖状态，不参与离线判定
func (r *PostgresDevicesRepo) FindStale(ctx context.Context, seenBefore time.Time) ([]*models.Device, error) {
	query := `SELECT ` + deviceColumns + `
		FROM devices
		WHERE last_seen < $1
		  AND status NOT IN ('offline', 'maintenance')
		ORDER BY last_seen
	`

	rows, err := r.db.QueryContext(ctx, query, seenBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale devices: %w", err)
	}
	defer rows.Close()

	return scanDevices(rows)
}

// MarkOffline 标记设备离线
func (r *PostgresDevicesRepo) MarkOffline(ctx context.Context, deviceID string) error {
	query := `
		UPDATE devices
		SET status = 'offline', updated_at = CURRENT_TIMESTAMP
		WHERE device_id = $1 AND status NOT IN ('offline', 'maintenance')
	`

	if _, err := r.db.ExecContext(ctx, query, deviceID); err != nil {
		return fmt.Errorf("failed to mark device offline: %w", err)
	}

	return nil
}

// RetireStale 删除长期未上线的设备（读数随 FK 级联删除）
func (r *PostgresDevicesRepo) RetireStale(ctx context.Context, seenBefore time.Time) (int64, error) {
	query := `DELETE FROM devices WHERE last_seen < $1`

	result, err := r.db.ExecContext(ctx, query, seenBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to retire stale devices: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 && r.logger != nil {
		r.logger.Info("Retired stale devices",
			zap.Int64("count", rowsAffected),
			zap.Time("seen_before", seenBefore),
		)
	}

	return rowsAffected, nil
}

// scanner 兼容 *sql.Row 和 *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row scanner) (*models.Device, error) {
	var device models.Device
	var sensors, hardwareInfo, lastPayload []byte
	var location sql.NullString

	err := row.Scan(
		&device.DeviceID,
		&device.DeviceName,
		&device.DeviceType,
		&device.SpaceID,
		&device.SpaceName,
		&device.Status,
		&device.MQTTTopic,
		&sensors,
		&hardwareInfo,
		&location,
		&device.LastSeen,
		&lastPayload,
		&device.CreatedAt,
		&device.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if location.Valid {
		device.Location = &location.String
	}
	if len(sensors) > 0 {
		if err := json.Unmarshal(sensors, &device.Sensors); err != nil {
			device.Sensors = []models.SensorDescriptor{}
		}
	}
	if len(hardwareInfo) > 0 {
		device.HardwareInfo = hardwareInfo
	} else {
		device.HardwareInfo = json.RawMessage("{}")
	}
	if len(lastPayload) > 0 {
		device.LastPayload = lastPayload
	} else {
		device.LastPayload = json.RawMessage("{}")
	}

	return &device, nil
}

func scanDevices(rows *sql.Rows) ([]*models.Device, error) {
	devices := []*models.Device{}
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}
	return devices, nil
}
