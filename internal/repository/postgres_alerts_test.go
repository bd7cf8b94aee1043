package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"workbit-telemetry/internal/models"
)

func setupMockAlertsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresAlertsRepo) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewPostgresAlertsRepo(db, logger)

	return db, mock, repo
}

var alertColumnNames = []string{
	"alert_id", "space_id", "alert_type", "severity", "value",
	"message", "device_id", "sensor_data", "people_count", "resolved",
	"resolved_at", "resolved_by", "auto_resolved", "occurrence_count",
	"first_occurrence", "last_occurrence", "notified_users", "created_at", "updated_at",
}

// ============================================
// 去重写入测试
// ============================================

func TestCreateOrEscalate_NewAlert(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	alertID := uuid.New().String()
	now := time.Now()
	value := 27.4

	rows := sqlmock.NewRows(alertColumnNames).AddRow(
		alertID, 12, models.AlertTemperatureCritical, models.SeverityHigh, value,
		"Temperature 27.4°C above maximum 26.0°C in Meeting Room A", "dev-001",
		`{"sensor_type":"temperature","value":27.4,"unit":"°C"}`, nil, false,
		nil, nil, false, 1,
		now, now, `[]`, now, now,
	)

	mock.ExpectQuery(`INSERT INTO alerts`).WillReturnRows(rows)

	cand := &models.CandidateAlert{
		SpaceID:   12,
		AlertType: models.AlertTemperatureCritical,
		Severity:  models.SeverityHigh,
		Value:     &value,
		Message:   "Temperature 27.4°C above maximum 26.0°C in Meeting Room A",
		DeviceID:  "dev-001",
	}

	alert, created, err := repo.CreateOrEscalate(ctx, cand, now)

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, alertID, alert.AlertID)
	assert.Equal(t, 1, alert.OccurrenceCount)
	assert.False(t, alert.Resolved)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrEscalate_Escalation(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	alertID := uuid.New().String()
	first := time.Now().Add(-10 * time.Minute)
	now := time.Now()
	value := 27.6

	// 同键未解决报警已存在：DO UPDATE 返回计数 +1 的同一条记录
	rows := sqlmock.NewRows(alertColumnNames).AddRow(
		alertID, 12, models.AlertTemperatureCritical, models.SeverityHigh, value,
		"Temperature 27.6°C above maximum 26.0°C in Meeting Room A", "dev-001",
		`{"sensor_type":"temperature","value":27.6,"unit":"°C"}`, nil, false,
		nil, nil, false, 2,
		first, now, `[]`, first, now,
	)

	mock.ExpectQuery(`INSERT INTO alerts`).WillReturnRows(rows)

	cand := &models.CandidateAlert{
		SpaceID:   12,
		AlertType: models.AlertTemperatureCritical,
		Severity:  models.SeverityHigh,
		Value:     &value,
		Message:   "Temperature 27.6°C above maximum 26.0°C in Meeting Room A",
		DeviceID:  "dev-001",
	}

	alert, created, err := repo.CreateOrEscalate(ctx, cand, now)

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, alertID, alert.AlertID)
	assert.Equal(t, 2, alert.OccurrenceCount)
	assert.Equal(t, 27.6, *alert.Value)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrEscalate_MissingFields(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	ctx := context.Background()

	_, _, err := repo.CreateOrEscalate(ctx, &models.CandidateAlert{DeviceID: "dev-001"}, time.Now())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "alert_type is required")

	_, _, err = repo.CreateOrEscalate(ctx, &models.CandidateAlert{AlertType: models.AlertCO2Critical}, time.Now())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "device_id is required")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAlert_ScansFullRow(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	alertID := uuid.New().String()
	first := time.Now().Add(-2 * time.Hour)
	now := time.Now()

	rows := sqlmock.NewRows(alertColumnNames).AddRow(
		alertID, 12, models.AlertCapacityExceeded, models.SeverityCritical, nil,
		"Occupancy 9 above capacity 8 in Meeting Room A", "dev-001",
		`{}`, 9, true,
		now, "user-7", false, 2,
		first, now, `[{"user_id":"user-7","method":"push"}]`, first, now,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(alertID).
		WillReturnRows(rows)

	alert, err := repo.GetAlert(ctx, alertID)

	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, alertID, alert.AlertID)
	assert.Nil(t, alert.Value)
	require.NotNil(t, alert.PeopleCount)
	assert.Equal(t, 9, *alert.PeopleCount)
	require.NotNil(t, alert.ResolvedBy)
	assert.Equal(t, "user-7", *alert.ResolvedBy)
	require.NotNil(t, alert.ResolvedAt)
	assert.Equal(t, 2, alert.OccurrenceCount)
	assert.Contains(t, string(alert.NotifiedUsers), "user-7")

	require.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// 解决与通知测试
// ============================================

func TestResolve_Success(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	alertID := uuid.New().String()
	resolvedBy := "user-7"
	now := time.Now()

	mock.ExpectExec(`UPDATE alerts`).
		WithArgs(alertID, now, &resolvedBy, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Resolve(ctx, alertID, &resolvedBy, false, now)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_AlreadyResolved(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	alertID := uuid.New().String()
	now := time.Now()

	// resolved = TRUE 的记录不再匹配 WHERE 条件
	mock.ExpectExec(`UPDATE alerts`).
		WithArgs(alertID, now, nil, false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Resolve(ctx, alertID, nil, false, now)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found or already resolved")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveOpenByKey_NoOpenAlert(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`UPDATE alerts`).
		WithArgs(12, models.AlertCO2Critical, "dev-001", now).
		WillReturnError(sql.ErrNoRows)

	alert, err := repo.ResolveOpenByKey(ctx, 12, models.AlertCO2Critical, "dev-001", now)

	require.NoError(t, err)
	assert.Nil(t, alert)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveOpenByKey_Resolves(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	alertID := uuid.New().String()
	first := time.Now().Add(-time.Hour)
	now := time.Now()

	rows := sqlmock.NewRows(alertColumnNames).AddRow(
		alertID, 12, models.AlertCO2Critical, models.SeverityMedium, 850.0,
		"CO2 850ppm above 800ppm in Meeting Room A", "dev-001",
		`{}`, nil, true,
		now, nil, true, 3,
		first, now, `[]`, first, now,
	)

	mock.ExpectQuery(`UPDATE alerts`).
		WithArgs(12, models.AlertCO2Critical, "dev-001", now).
		WillReturnRows(rows)

	alert, err := repo.ResolveOpenByKey(ctx, 12, models.AlertCO2Critical, "dev-001", now)

	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.True(t, alert.Resolved)
	assert.True(t, alert.AutoResolved)
	assert.Nil(t, alert.ResolvedBy)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddNotification_Success(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	alertID := uuid.New().String()

	mock.ExpectExec(`UPDATE alerts`).
		WithArgs(alertID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AddNotification(ctx, alertID, models.NotificationRecord{
		UserID:     "user-7",
		NotifiedAt: time.Now(),
		Method:     "push",
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeResolvedBefore(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	cutoff := time.Now().AddDate(0, 0, -90)

	mock.ExpectExec(`DELETE FROM alerts`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	count, err := repo.PurgeResolvedBefore(ctx, cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	require.NoError(t, mock.ExpectationsWereMet())
}
