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

// PostgresReadingsRepo 读数仓库 PostgreSQL 实现
type PostgresReadingsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresReadingsRepo 创建读数仓库
func NewPostgresReadingsRepo(db *sql.DB, logger *zap.Logger) *PostgresReadingsRepo {
	return &PostgresReadingsRepo{db: db, logger: logger}
}

// 确保实现了接口
var _ ReadingsRepo = (*PostgresReadingsRepo)(nil)

// Insert 追加读数批次
func (r *PostgresReadingsRepo) Insert(ctx context.Context, reading *models.SensorReading) (int64, error) {
	if reading == nil {
		return 0, fmt.Errorf("reading is required")
	}
	if reading.DeviceID == "" {
		return 0, fmt.Errorf("device_id is required")
	}
	if len(reading.Readings) == 0 {
		return 0, fmt.Errorf("readings cannot be empty")
	}

	readings, err := json.Marshal(reading.Readings)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal readings: %w", err)
	}

	query := `
		INSERT INTO sensor_readings (
			device_id, space_id, recorded_at, readings,
			device_status, battery_level, signal_strength
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var id int64
	err = r.db.QueryRowContext(ctx, query,
		reading.DeviceID,
		reading.SpaceID,
		reading.RecordedAt,
		readings,
		reading.DeviceStatus,
		reading.BatteryLevel,
		reading.SignalStrength,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert reading: %w", err)
	}

	return id, nil
}

// ListByDevice 按设备查询最近的读数批次
func (r *PostgresReadingsRepo) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*models.SensorReading, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT
			id, device_id, space_id, recorded_at, readings,
			device_status, battery_level, signal_strength, created_at
		FROM sensor_readings
		WHERE device_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	results := []*models.SensorReading{}
	for rows.Next() {
		var reading models.SensorReading
		var readings []byte
		var deviceStatus sql.NullString
		var batteryLevel, signalStrength sql.NullFloat64

		if err := rows.Scan(
			&reading.ID,
			&reading.DeviceID,
			&reading.SpaceID,
			&reading.RecordedAt,
			&readings,
			&deviceStatus,
			&batteryLevel,
			&signalStrength,
			&reading.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}

		if len(readings) > 0 {
			if err := json.Unmarshal(readings, &reading.Readings); err != nil {
				return nil, fmt.Errorf("failed to unmarshal readings: %w", err)
			}
		}
		if deviceStatus.Valid {
			reading.DeviceStatus = &deviceStatus.String
		}
		if batteryLevel.Valid {
			reading.BatteryLevel = &batteryLevel.Float64
		}
		if signalStrength.Valid {
			reading.SignalStrength = &signalStrength.Float64
		}

		results = append(results, &reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}

	return results, nil
}

// PurgeOlderThan 删除超过保留期的读数
func (r *PostgresReadingsRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM sensor_readings WHERE recorded_at < $1`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge readings: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 && r.logger != nil {
		r.logger.Info("Purged expired readings",
			zap.Int64("count", rowsAffected),
			zap.Time("cutoff", cutoff),
		)
	}

	return rowsAffected, nil
}
