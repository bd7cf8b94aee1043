package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"workbit-telemetry/internal/models"
	"workbit-telemetry/internal/repository"
)

// AlertLifecycle 报警生命周期操作（由 service.AlertManager 实现）
type AlertLifecycle interface {
	Resolve(ctx context.Context, alertID string, resolvedBy *string) (*models.Alert, error)
	AddNotification(ctx context.Context, alertID, userID, method string) error
}

// AlertHandler 报警查询与生命周期 API
type AlertHandler struct {
	alerts  repository.AlertsRepo
	manager AlertLifecycle
	logger  *zap.Logger
}

// NewAlertHandler 创建报警处理器
func NewAlertHandler(alerts repository.AlertsRepo, manager AlertLifecycle, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, manager: manager, logger: logger}
}

// ListAlerts GET /telemetry/api/v1/alerts
// 过滤参数：severity、type、resolved、space_id、device_id、limit
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	filters := repository.AlertFilters{}

	if v := q.Get("severity"); v != "" {
		filters.Severity = &v
	}
	if v := q.Get("type"); v != "" {
		filters.AlertType = &v
	}
	if v := q.Get("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid resolved"))
			return
		}
		filters.Resolved = &resolved
	}
	if v := q.Get("space_id"); v != "" {
		spaceID, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid space_id"))
			return
		}
		filters.SpaceID = &spaceID
	}
	if v := q.Get("device_id"); v != "" {
		filters.DeviceID = &v
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeJSON(w, http.StatusBadRequest, Fail("invalid limit"))
			return
		}
		filters.Limit = limit
	}

	alerts, err := h.alerts.ListAlerts(req.Context(), filters)
	if err != nil {
		h.logger.Error("Failed to list alerts", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list alerts"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(alerts))
}

// GetAlert GET /telemetry/api/v1/alerts/{id}
func (h *AlertHandler) GetAlert(w http.ResponseWriter, req *http.Request, alertID string) {
	alert, err := h.alerts.GetAlert(req.Context(), alertID)
	if err != nil {
		h.logger.Error("Failed to get alert", zap.String("alert_id", alertID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to get alert"))
		return
	}
	if alert == nil {
		writeJSON(w, http.StatusNotFound, Fail("alert not found"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(alert))
}

// ResolveAlert PUT /telemetry/api/v1/alerts/{id}/resolve
func (h *AlertHandler) ResolveAlert(w http.ResponseWriter, req *http.Request, alertID string) {
	var body struct {
		ResolvedBy string `json:"resolved_by"`
	}
	if req.Body != nil {
		// 请求体可空，resolved_by 可选
		_ = json.NewDecoder(req.Body).Decode(&body)
	}

	var resolvedBy *string
	if body.ResolvedBy != "" {
		resolvedBy = &body.ResolvedBy
	}

	alert, err := h.manager.Resolve(req.Context(), alertID, resolvedBy)
	if err != nil {
		h.logger.Warn("Failed to resolve alert", zap.String("alert_id", alertID), zap.Error(err))
		writeJSON(w, http.StatusConflict, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(alert))
}

// NotifyAlert POST /telemetry/api/v1/alerts/{id}/notify
func (h *AlertHandler) NotifyAlert(w http.ResponseWriter, req *http.Request, alertID string) {
	var body struct {
		UserID string `json:"user_id"`
		Method string `json:"method"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	if err := h.manager.AddNotification(req.Context(), alertID, body.UserID, body.Method); err != nil {
		h.logger.Warn("Failed to record notification", zap.String("alert_id", alertID), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"alert_id": alertID, "user_id": body.UserID}))
}
