package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"workbit-telemetry/internal/models"
)

// MemoryAlertsRepo 内存实现
// CreateOrEscalate 在互斥锁内完成 find-or-create，与 PostgreSQL 实现的
// 原子 upsert 语义一致
type MemoryAlertsRepo struct {
	mu     sync.Mutex
	alerts map[string]*models.Alert
}

// NewMemoryAlertsRepo 创建内存报警仓库
func NewMemoryAlertsRepo() *MemoryAlertsRepo {
	return &MemoryAlertsRepo{
		alerts: map[string]*models.Alert{},
	}
}

// 确保实现了接口
var _ AlertsRepo = (*MemoryAlertsRepo)(nil)

func (r *MemoryAlertsRepo) CreateOrEscalate(_ context.Context, cand *models.CandidateAlert, now time.Time) (*models.Alert, bool, error) {
	if cand == nil || cand.AlertType == "" || cand.DeviceID == "" {
		return nil, false, fmt.Errorf("alert_type and device_id are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sensorData := cand.SensorData
	if len(sensorData) == 0 {
		sensorData = json.RawMessage("{}")
	}

	for _, a := range r.alerts {
		if !a.Resolved && a.SpaceID == cand.SpaceID &&
			a.AlertType == cand.AlertType && a.DeviceID == cand.DeviceID {
			a.Severity = cand.Severity
			a.Value = cand.Value
			a.Message = cand.Message
			a.SensorData = sensorData
			a.PeopleCount = cand.PeopleCount
			a.LastOccurrence = now
			a.OccurrenceCount++
			a.UpdatedAt = now
			cp := *a
			return &cp, false, nil
		}
	}

	alert := &models.Alert{
		AlertID:         uuid.New().String(),
		SpaceID:         cand.SpaceID,
		AlertType:       cand.AlertType,
		Severity:        cand.Severity,
		Value:           cand.Value,
		Message:         cand.Message,
		DeviceID:        cand.DeviceID,
		SensorData:      sensorData,
		PeopleCount:     cand.PeopleCount,
		OccurrenceCount: 1,
		FirstOccurrence: now,
		LastOccurrence:  now,
		NotifiedUsers:   json.RawMessage("[]"),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.alerts[alert.AlertID] = alert
	cp := *alert
	return &cp, true, nil
}

func (r *MemoryAlertsRepo) GetAlert(_ context.Context, alertID string) (*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	alert, ok := r.alerts[alertID]
	if !ok {
		return nil, nil
	}
	cp := *alert
	return &cp, nil
}

func (r *MemoryAlertsRepo) ListAlerts(_ context.Context, filters AlertFilters) ([]*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []*models.Alert{}
	for _, a := range r.alerts {
		if filters.Severity != nil && a.Severity != *filters.Severity {
			continue
		}
		if filters.AlertType != nil && a.AlertType != *filters.AlertType {
			continue
		}
		if filters.Resolved != nil && a.Resolved != *filters.Resolved {
			continue
		}
		if filters.SpaceID != nil && a.SpaceID != *filters.SpaceID {
			continue
		}
		if filters.DeviceID != nil && a.DeviceID != *filters.DeviceID {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastOccurrence.After(out[j].LastOccurrence)
	})

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryAlertsRepo) Resolve(_ context.Context, alertID string, resolvedBy *string, auto bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	alert, ok := r.alerts[alertID]
	if !ok || alert.Resolved {
		return fmt.Errorf("alert not found or already resolved: %s", alertID)
	}

	alert.Resolved = true
	alert.ResolvedAt = &at
	alert.ResolvedBy = resolvedBy
	alert.AutoResolved = auto
	alert.UpdatedAt = at
	return nil
}

func (r *MemoryAlertsRepo) ResolveOpenByKey(_ context.Context, spaceID int, alertType, deviceID string, at time.Time) (*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.alerts {
		if !a.Resolved && a.SpaceID == spaceID && a.AlertType == alertType && a.DeviceID == deviceID {
			a.Resolved = true
			a.ResolvedAt = &at
			a.ResolvedBy = nil
			a.AutoResolved = true
			a.UpdatedAt = at
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryAlertsRepo) AddNotification(_ context.Context, alertID string, rec models.NotificationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	alert, ok := r.alerts[alertID]
	if !ok {
		return fmt.Errorf("alert not found: %s", alertID)
	}

	var records []models.NotificationRecord
	if len(alert.NotifiedUsers) > 0 {
		if err := json.Unmarshal(alert.NotifiedUsers, &records); err != nil {
			records = []models.NotificationRecord{}
		}
	}
	records = append(records, rec)
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal notifications: %w", err)
	}
	alert.NotifiedUsers = data
	return nil
}

func (r *MemoryAlertsRepo) PurgeResolvedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, a := range r.alerts {
		if a.Resolved && a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
			delete(r.alerts, id)
			count++
		}
	}
	return count, nil
}
