package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"workbit-telemetry/internal/models"
)

// PostgresAlertsRepo 报警仓库 PostgreSQL 实现
type PostgresAlertsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAlertsRepo 创建报警仓库
func NewPostgresAlertsRepo(db *sql.DB, logger *zap.Logger) *PostgresAlertsRepo {
	return &PostgresAlertsRepo{db: db, logger: logger}
}

// 确保实现了接口
var _ AlertsRepo = (*PostgresAlertsRepo)(nil)

const alertColumns = `
	alert_id,
	space_id,
	alert_type,
	severity,
	value,
	message,
	device_id,
	sensor_data,
	people_count,
	resolved,
	resolved_at,
	resolved_by,
	auto_resolved,
	occurrence_count,
	first_occurrence,
	last_occurrence,
	notified_users,
	created_at,
	updated_at
`

// CreateOrEscalate 原子 find-or-create
// 依赖 uniq_alerts_open_key 部分唯一索引：并发的同键写入只会
// 产生一次插入，其余都走 DO UPDATE 升级路径
func (r *PostgresAlertsRepo) CreateOrEscalate(ctx context.Context, cand *models.CandidateAlert, now time.Time) (*models.Alert, bool, error) {
	if cand == nil {
		return nil, false, fmt.Errorf("candidate is required")
	}
	if cand.AlertType == "" {
		return nil, false, fmt.Errorf("alert_type is required")
	}
	if cand.DeviceID == "" {
		return nil, false, fmt.Errorf("device_id is required")
	}

	sensorData := cand.SensorData
	if len(sensorData) == 0 {
		sensorData = json.RawMessage("{}")
	}

	query := `
		INSERT INTO alerts (
			alert_id, space_id, alert_type, severity, value, message,
			device_id, sensor_data, people_count, resolved,
			occurrence_count, first_occurrence, last_occurrence, notified_users
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, 1, $10, $10, '[]'
		)
		ON CONFLICT (space_id, alert_type, device_id) WHERE resolved = FALSE
		DO UPDATE SET
			severity         = EXCLUDED.severity,
			value            = EXCLUDED.value,
			message          = EXCLUDED.message,
			sensor_data      = EXCLUDED.sensor_data,
			people_count     = EXCLUDED.people_count,
			last_occurrence  = EXCLUDED.last_occurrence,
			occurrence_count = alerts.occurrence_count + 1,
			updated_at       = CURRENT_TIMESTAMP
		RETURNING ` + alertColumns

	row := r.db.QueryRowContext(ctx, query,
		uuid.New().String(),
		cand.SpaceID,
		cand.AlertType,
		cand.Severity,
		cand.Value,
		cand.Message,
		cand.DeviceID,
		sensorData,
		cand.PeopleCount,
		now,
	)

	alert, err := scanAlert(row)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert alert: %w", err)
	}

	return alert, alert.OccurrenceCount == 1, nil
}

// GetAlert 按 alert_id 查询
func (r *PostgresAlertsRepo) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE alert_id = $1`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return alert, nil
}

// ListAlerts 按条件查询
func (r *PostgresAlertsRepo) ListAlerts(ctx context.Context, filters AlertFilters) ([]*models.Alert, error) {
	where := []string{}
	args := []interface{}{}
	argN := 1

	if filters.Severity != nil {
		where = append(where, fmt.Sprintf("severity = $%d", argN))
		args = append(args, *filters.Severity)
		argN++
	}
	if filters.AlertType != nil {
		where = append(where, fmt.Sprintf("alert_type = $%d", argN))
		args = append(args, *filters.AlertType)
		argN++
	}
	if filters.Resolved != nil {
		where = append(where, fmt.Sprintf("resolved = $%d", argN))
		args = append(args, *filters.Resolved)
		argN++
	}
	if filters.SpaceID != nil {
		where = append(where, fmt.Sprintf("space_id = $%d", argN))
		args = append(args, *filters.SpaceID)
		argN++
	}
	if filters.DeviceID != nil {
		where = append(where, fmt.Sprintf("device_id = $%d", argN))
		args = append(args, *filters.DeviceID)
		argN++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		%s
		ORDER BY last_occurrence DESC
		LIMIT $%d
	`, alertColumns, whereClause, argN)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, nil
}

// Resolve 解决报警（终态）
func (r *PostgresAlertsRepo) Resolve(ctx context.Context, alertID string, resolvedBy *string, auto bool, at time.Time) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}

	query := `
		UPDATE alerts
		SET resolved      = TRUE,
		    resolved_at   = $2,
		    resolved_by   = $3,
		    auto_resolved = $4,
		    updated_at    = CURRENT_TIMESTAMP
		WHERE alert_id = $1 AND resolved = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, alertID, at, resolvedBy, auto)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("alert not found or already resolved: %s", alertID)
	}

	return nil
}

// ResolveOpenByKey 按去重键自动解除
func (r *PostgresAlertsRepo) ResolveOpenByKey(ctx context.Context, spaceID int, alertType, deviceID string, at time.Time) (*models.Alert, error) {
	if alertType == "" {
		return nil, fmt.Errorf("alert_type is required")
	}
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	query := `
		UPDATE alerts
		SET resolved      = TRUE,
		    resolved_at   = $4,
		    resolved_by   = NULL,
		    auto_resolved = TRUE,
		    updated_at    = CURRENT_TIMESTAMP
		WHERE space_id = $1 AND alert_type = $2 AND device_id = $3 AND resolved = FALSE
		RETURNING ` + alertColumns

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, spaceID, alertType, deviceID, at))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to auto-resolve alert: %w", err)
	}

	return alert, nil
}

// AddNotification 追加通知记录到 notified_users JSONB 数组
func (r *PostgresAlertsRepo) AddNotification(ctx context.Context, alertID string, rec models.NotificationRecord) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if rec.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	query := `
		UPDATE alerts
		SET notified_users = notified_users || $2::jsonb,
		    updated_at     = CURRENT_TIMESTAMP
		WHERE alert_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, alertID, recJSON)
	if err != nil {
		return fmt.Errorf("failed to add notification: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("alert not found: %s", alertID)
	}

	return nil
}

// PurgeResolvedBefore 删除过期的已解决报警
func (r *PostgresAlertsRepo) PurgeResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM alerts WHERE resolved = TRUE AND resolved_at < $1`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge alerts: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 && r.logger != nil {
		r.logger.Info("Purged resolved alerts",
			zap.Int64("count", rowsAffected),
			zap.Time("cutoff", cutoff),
		)
	}

	return rowsAffected, nil
}

func scanAlert(row scanner) (*models.Alert, error) {
	var alert models.Alert
	var value sql.NullFloat64
	var peopleCount sql.NullInt64
	var resolvedAt sql.NullTime
	var resolvedBy sql.NullString
	var sensorData, notifiedUsers []byte

	err := row.Scan(
		&alert.AlertID,
		&alert.SpaceID,
		&alert.AlertType,
		&alert.Severity,
		&value,
		&alert.Message,
		&alert.DeviceID,
		&sensorData,
		&peopleCount,
		&alert.Resolved,
		&resolvedAt,
		&resolvedBy,
		&alert.AutoResolved,
		&alert.OccurrenceCount,
		&alert.FirstOccurrence,
		&alert.LastOccurrence,
		&notifiedUsers,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if value.Valid {
		alert.Value = &value.Float64
	}
	if peopleCount.Valid {
		pc := int(peopleCount.Int64)
		alert.PeopleCount = &pc
	}
	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}
	if resolvedBy.Valid {
		alert.ResolvedBy = &resolvedBy.String
	}
	if len(sensorData) > 0 {
		alert.SensorData = sensorData
	} else {
		alert.SensorData = json.RawMessage("{}")
	}
	if len(notifiedUsers) > 0 {
		alert.NotifiedUsers = notifiedUsers
	} else {
		alert.NotifiedUsers = json.RawMessage("[]")
	}

	return &alert, nil
}
