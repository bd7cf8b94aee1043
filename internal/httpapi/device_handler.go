package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"workbit-telemetry/internal/repository"
)

// DeviceHandler 设备查询 API
type DeviceHandler struct {
	devices  repository.DevicesRepo
	readings repository.ReadingsRepo
	logger   *zap.Logger
}

// NewDeviceHandler 创建设备处理器
func NewDeviceHandler(devices repository.DevicesRepo, readings repository.ReadingsRepo, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{devices: devices, readings: readings, logger: logger}
}

// ListDevices GET /telemetry/api/v1/devices[?space_id=N]
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	if raw := req.URL.Query().Get("space_id"); raw != "" {
		spaceID, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid space_id"))
			return
		}
		devices, err := h.devices.ListBySpace(ctx, spaceID)
		if err != nil {
			h.logger.Error("Failed to list devices by space", zap.Int("space_id", spaceID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, Fail("failed to list devices"))
			return
		}
		writeJSON(w, http.StatusOK, Ok(devices))
		return
	}

	devices, err := h.devices.ListDevices(ctx)
	if err != nil {
		h.logger.Error("Failed to list devices", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list devices"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(devices))
}

// GetDevice GET /telemetry/api/v1/devices/{id}
func (h *DeviceHandler) GetDevice(w http.ResponseWriter, req *http.Request, deviceID string) {
	device, err := h.devices.GetDevice(req.Context(), deviceID)
	if err != nil {
		h.logger.Error("Failed to get device", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to get device"))
		return
	}
	if device == nil {
		writeJSON(w, http.StatusNotFound, Fail("device not found"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(device))
}

// GetStats GET /telemetry/api/v1/devices/stats
func (h *DeviceHandler) GetStats(w http.ResponseWriter, req *http.Request) {
	stats, err := h.devices.GetStats(req.Context())
	if err != nil {
		h.logger.Error("Failed to get device stats", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to get stats"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(stats))
}

// ListReadings GET /telemetry/api/v1/devices/{id}/readings[?limit=N]
func (h *DeviceHandler) ListReadings(w http.ResponseWriter, req *http.Request, deviceID string) {
	limit := 20
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, Fail("invalid limit"))
			return
		}
		limit = n
	}

	readings, err := h.readings.ListByDevice(req.Context(), deviceID, limit)
	if err != nil {
		h.logger.Error("Failed to list readings", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list readings"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(readings))
}

// UpdateStatus PATCH /telemetry/api/v1/devices/{id}/status
func (h *DeviceHandler) UpdateStatus(w http.ResponseWriter, req *http.Request, deviceID string) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Status == "" {
		writeJSON(w, http.StatusBadRequest, Fail("status is required"))
		return
	}

	if err := h.devices.UpdateStatus(req.Context(), deviceID, body.Status); err != nil {
		h.logger.Warn("Failed to update device status",
			zap.String("device_id", deviceID),
			zap.String("status", body.Status),
			zap.Error(err),
		)
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"device_id": deviceID, "status": body.Status}))
}
