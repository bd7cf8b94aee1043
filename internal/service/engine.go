package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"workbit-telemetry/internal/cache"
	"workbit-telemetry/internal/evaluator"
	"workbit-telemetry/internal/models"
	"workbit-telemetry/internal/repository"
)

// Engine 遥测核心：注册、读数入库、阈值评估、门禁校验
// 持久化是唯一的硬依赖；Redis 流与快照、MQTT 响应失败只记日志
type Engine struct {
	devices     repository.DevicesRepo
	readings    repository.ReadingsRepo
	alerts      *AlertManager
	thresholds  evaluator.Thresholds
	realtime    *cache.RealtimeCache
	redisClient *redis.Client
	publisher   Publisher
	qos         byte
	logger      *zap.Logger
}

// NewEngine 创建遥测引擎
func NewEngine(
	devices repository.DevicesRepo,
	readings repository.ReadingsRepo,
	alerts *AlertManager,
	thresholds evaluator.Thresholds,
	realtime *cache.RealtimeCache,
	redisClient *redis.Client,
	publisher Publisher,
	qos byte,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		devices:     devices,
		readings:    readings,
		alerts:      alerts,
		thresholds:  thresholds,
		realtime:    realtime,
		redisClient: redisClient,
		publisher:   publisher,
		qos:         qos,
		logger:      logger,
	}
}

// RegisterDevice 处理 devices/add
// 校验失败整条丢弃；重复注册按 upsert 处理，幂等
func (e *Engine) RegisterDevice(ctx context.Context, reg *models.DeviceRegistration) error {
	if reg == nil {
		return fmt.Errorf("%w: registration is required", ErrValidation)
	}
	if reg.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrValidation)
	}
	if reg.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if reg.Type != models.DeviceTypeEnvironmental && reg.Type != models.DeviceTypeAccessControl {
		return fmt.Errorf("%w: unsupported device type: %s", ErrValidation, reg.Type)
	}
	if reg.SpaceID <= 0 {
		return fmt.Errorf("%w: space_id must be positive", ErrValidation)
	}
	if reg.SpaceName == "" {
		return fmt.Errorf("%w: space_name is required", ErrValidation)
	}

	topic := reg.MQTTTopic
	if topic == "" {
		topic = fmt.Sprintf("devices/%s", reg.DeviceID)
	}

	hardwareInfo := reg.HardwareInfo
	if len(hardwareInfo) == 0 {
		hardwareInfo = json.RawMessage("{}")
	}
	sensors := reg.Sensors
	if sensors == nil {
		sensors = []models.SensorDescriptor{}
	}

	// 搬迁检测：同设备换空间时记录一条审计日志
	prior, err := e.devices.GetDevice(ctx, reg.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to check existing device: %w", err)
	}
	if prior != nil && prior.SpaceID != reg.SpaceID {
		e.logger.Info("Device relocated",
			zap.String("device_id", reg.DeviceID),
			zap.Int("from_space_id", prior.SpaceID),
			zap.Int("to_space_id", reg.SpaceID),
		)
	}

	now := time.Now().UTC()
	device := &models.Device{
		DeviceID:     reg.DeviceID,
		DeviceName:   reg.Name,
		DeviceType:   reg.Type,
		SpaceID:      reg.SpaceID,
		SpaceName:    reg.SpaceName,
		Status:       models.DeviceStatusActive,
		MQTTTopic:    topic,
		Sensors:      sensors,
		HardwareInfo: hardwareInfo,
		Location:     reg.Location,
		LastSeen:     now,
	}

	if err := e.devices.RegisterOrUpdate(ctx, device); err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}

	e.logger.Info("Device registered",
		zap.String("device_id", device.DeviceID),
		zap.String("device_type", device.DeviceType),
		zap.Int("space_id", device.SpaceID),
	)

	// 设备重新上报视为恢复在线，解除遗留的离线报警
	if prior != nil && prior.Status == models.DeviceStatusOffline {
		if _, err := e.alerts.AutoResolve(ctx, prior.SpaceID, models.AlertDeviceOffline, device.DeviceID); err != nil {
			e.logger.Warn("Failed to auto-resolve offline alert",
				zap.String("device_id", device.DeviceID),
				zap.Error(err),
			)
		}
	}

	e.cacheDeviceSnapshot(ctx, device.DeviceID, device)
	return nil
}

// IngestReadings 处理 devices/{id}/readings
// 未注册设备整批丢弃（fail-closed），不产生任何读数或报警
func (e *Engine) IngestReadings(ctx context.Context, deviceID string, payload *models.ReadingsPayload) error {
	if deviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrValidation)
	}
	if payload == nil || len(payload.Readings) == 0 {
		return fmt.Errorf("%w: readings cannot be empty", ErrValidation)
	}
	// 单条读数缺字段则整批拒绝，不落任何数据
	for i, r := range payload.Readings {
		if r.SensorName == "" {
			return fmt.Errorf("%w: readings[%d] sensor_name is required", ErrValidation, i)
		}
		if r.SensorType == "" {
			return fmt.Errorf("%w: readings[%d] sensor_type is required", ErrValidation, i)
		}
		if !r.Value.IsValid() {
			return fmt.Errorf("%w: readings[%d] value is required", ErrValidation, i)
		}
	}

	device, err := e.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to load device: %w", err)
	}
	if device == nil {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	spaceID := device.SpaceID
	if payload.SpaceID != nil {
		spaceID = *payload.SpaceID
	}
	recordedAt := time.Now().UTC()
	if payload.Timestamp != nil {
		recordedAt = payload.Timestamp.UTC()
	}

	reading := &models.SensorReading{
		DeviceID:       deviceID,
		SpaceID:        spaceID,
		RecordedAt:     recordedAt,
		Readings:       payload.Readings,
		BatteryLevel:   payload.BatteryLevel,
		SignalStrength: payload.SignalStrength,
	}
	if payload.DeviceStatus != "" {
		reading.DeviceStatus = &payload.DeviceStatus
	}

	if _, err := e.readings.Insert(ctx, reading); err != nil {
		return fmt.Errorf("failed to persist readings: %w", err)
	}

	e.touchDevice(ctx, device, recordedAt, payload)
	e.publishReading(ctx, reading)
	e.cacheDeviceSnapshot(ctx, deviceID, reading)

	evalCtx := evaluator.Context{
		DeviceID:  deviceID,
		SpaceID:   spaceID,
		SpaceName: device.SpaceName,
	}
	for _, r := range payload.Readings {
		e.evaluateReading(ctx, evalCtx, r.SensorType, r.Value)
	}

	return nil
}

// IngestEnvironmental 处理 sensors/environmental_data 聚合消息
func (e *Engine) IngestEnvironmental(ctx context.Context, payload *models.EnvironmentalPayload) error {
	if payload == nil || payload.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrValidation)
	}

	device, err := e.devices.GetDevice(ctx, payload.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to load device: %w", err)
	}
	if device == nil {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, payload.DeviceID)
	}

	spaceID := device.SpaceID
	if payload.SpaceID != nil {
		spaceID = *payload.SpaceID
	}
	recordedAt := time.Now().UTC()
	if payload.Timestamp != nil {
		recordedAt = payload.Timestamp.UTC()
	}

	readings := environmentalReadings(payload)
	if len(readings) > 0 {
		reading := &models.SensorReading{
			DeviceID:   payload.DeviceID,
			SpaceID:    spaceID,
			RecordedAt: recordedAt,
			Readings:   readings,
		}
		if _, err := e.readings.Insert(ctx, reading); err != nil {
			return fmt.Errorf("failed to persist readings: %w", err)
		}
		e.publishReading(ctx, reading)
	}

	e.touchDevice(ctx, device, recordedAt, payload)
	e.cacheSpaceEnvironment(ctx, spaceID, payload)

	evalCtx := evaluator.Context{
		DeviceID:  payload.DeviceID,
		SpaceID:   spaceID,
		SpaceName: device.SpaceName,
	}
	for _, r := range readings {
		e.evaluateReading(ctx, evalCtx, r.SensorType, r.Value)
	}

	// 容量评估需要消息自带容量
	if payload.PeopleCount != nil && payload.Capacity != nil {
		if cand := evaluator.EvaluateCapacity(*payload.PeopleCount, *payload.Capacity, evalCtx); cand != nil {
			e.raise(ctx, cand)
		} else {
			e.autoResolve(ctx, spaceID, models.AlertCapacityExceeded, payload.DeviceID)
		}
	}

	// 检测流水线报错（如人数统计失败）
	if payload.Error != "" {
		cand := &models.CandidateAlert{
			SpaceID:   spaceID,
			AlertType: models.AlertDetectionError,
			Severity:  models.SeverityLow,
			Message: fmt.Sprintf("Detection error on %s in %s: %s",
				payload.DeviceID, device.SpaceName, payload.Error),
			DeviceID: payload.DeviceID,
		}
		e.raise(ctx, cand)
	} else {
		e.autoResolve(ctx, spaceID, models.AlertDetectionError, payload.DeviceID)
	}

	return nil
}

// RecordAccess 处理 access/request：按访客名单校验刷卡
func (e *Engine) RecordAccess(ctx context.Context, req *models.AccessRequest) error {
	if req == nil || req.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrValidation)
	}
	if req.CardCode == "" {
		return fmt.Errorf("%w: card_code is required", ErrValidation)
	}

	device, err := e.devices.GetDevice(ctx, req.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to load device: %w", err)
	}
	if device == nil {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, req.DeviceID)
	}

	spaceID := device.SpaceID
	if req.SpaceID != nil {
		spaceID = *req.SpaceID
	}

	granted := false
	if e.realtime != nil {
		guests, err := e.realtime.GetGuestList(ctx, spaceID)
		if err != nil {
			e.logger.Warn("Failed to load guest list, denying access",
				zap.Int("space_id", spaceID),
				zap.Error(err),
			)
		} else {
			for _, g := range guests {
				if g == req.CardCode {
					granted = true
					break
				}
			}
		}
	}

	now := time.Now().UTC()
	e.touchDevice(ctx, device, now, req)

	event := map[string]interface{}{
		"device_id":   req.DeviceID,
		"space_id":    spaceID,
		"card_code":   req.CardCode,
		"access_type": req.AccessType,
		"granted":     granted,
		"timestamp":   now.Unix(),
	}

	if e.redisClient != nil {
		if _, err := cache.PublishJSONToStream(ctx, e.redisClient, cache.AccessStream, event); err != nil {
			e.logger.Warn("Failed to publish access event to stream", zap.Error(err))
		}
	}

	if e.publisher != nil {
		topic := fmt.Sprintf("access/response/%s", req.DeviceID)
		if err := e.publisher.PublishJSON(topic, e.qos, event); err != nil {
			e.logger.Warn("Failed to publish access response",
				zap.String("topic", topic),
				zap.Error(err),
			)
		}
	}

	e.logger.Info("Access request processed",
		zap.String("device_id", req.DeviceID),
		zap.Int("space_id", spaceID),
		zap.Bool("granted", granted),
	)
	return nil
}

// SyncGuestList 处理 guests/list：整体替换空间访客名单
func (e *Engine) SyncGuestList(ctx context.Context, gl *models.GuestList) error {
	if gl == nil || gl.SpaceID <= 0 {
		return fmt.Errorf("%w: space_id must be positive", ErrValidation)
	}
	if e.realtime == nil {
		return nil
	}

	guests := gl.Guests
	if guests == nil {
		guests = []string{}
	}
	if err := e.realtime.SetGuestList(ctx, gl.SpaceID, guests); err != nil {
		return fmt.Errorf("failed to store guest list: %w", err)
	}

	e.logger.Info("Guest list synced",
		zap.Int("space_id", gl.SpaceID),
		zap.Int("count", len(guests)),
	)
	return nil
}

// evaluateReading 单读数评估：越界报警，恢复正常则自动解除
func (e *Engine) evaluateReading(ctx context.Context, evalCtx evaluator.Context, sensorType string, value models.SensorValue) {
	if cand := evaluator.Evaluate(e.thresholds, sensorType, value, evalCtx); cand != nil {
		e.raise(ctx, cand)
		return
	}

	alertType, ok := evaluator.AlertTypeForSensor(sensorType)
	if !ok {
		return
	}
	if evaluator.InNormalRange(e.thresholds, sensorType, value) {
		e.autoResolve(ctx, evalCtx.SpaceID, alertType, evalCtx.DeviceID)
	}
}

func (e *Engine) raise(ctx context.Context, cand *models.CandidateAlert) {
	if _, _, err := e.alerts.CreateOrEscalate(ctx, cand); err != nil {
		e.logger.Error("Failed to record alert",
			zap.String("alert_type", cand.AlertType),
			zap.String("device_id", cand.DeviceID),
			zap.Error(err),
		)
	}
}

func (e *Engine) autoResolve(ctx context.Context, spaceID int, alertType, deviceID string) {
	if _, err := e.alerts.AutoResolve(ctx, spaceID, alertType, deviceID); err != nil {
		e.logger.Warn("Failed to auto-resolve alert",
			zap.String("alert_type", alertType),
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}
}

func (e *Engine) touchDevice(ctx context.Context, device *models.Device, seenAt time.Time, payload interface{}) {
	var lastPayload json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			lastPayload = data
		}
	}

	found, err := e.devices.Touch(ctx, device.DeviceID, seenAt, lastPayload)
	if err != nil {
		e.logger.Warn("Failed to update device last_seen",
			zap.String("device_id", device.DeviceID),
			zap.Error(err),
		)
		return
	}
	if !found {
		return
	}

	// 离线设备收到数据即恢复，顺带解除离线报警
	if device.Status == models.DeviceStatusOffline {
		e.autoResolve(ctx, device.SpaceID, models.AlertDeviceOffline, device.DeviceID)
	}
}

func (e *Engine) publishReading(ctx context.Context, reading *models.SensorReading) {
	if e.redisClient == nil {
		return
	}
	if _, err := cache.PublishJSONToStream(ctx, e.redisClient, cache.ReadingsStream, reading); err != nil {
		e.logger.Warn("Failed to publish reading to stream",
			zap.String("device_id", reading.DeviceID),
			zap.Error(err),
		)
	}
}

func (e *Engine) cacheDeviceSnapshot(ctx context.Context, deviceID string, snapshot interface{}) {
	if e.realtime == nil {
		return
	}
	if err := e.realtime.SetDeviceSnapshot(ctx, deviceID, snapshot); err != nil {
		e.logger.Warn("Failed to cache device snapshot",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}
}

func (e *Engine) cacheSpaceEnvironment(ctx context.Context, spaceID int, env interface{}) {
	if e.realtime == nil {
		return
	}
	if err := e.realtime.SetSpaceEnvironment(ctx, spaceID, env); err != nil {
		e.logger.Warn("Failed to cache space environment",
			zap.Int("space_id", spaceID),
			zap.Error(err),
		)
	}
}

// environmentalReadings 聚合消息展开为标准读数
func environmentalReadings(payload *models.EnvironmentalPayload) []models.Reading {
	readings := []models.Reading{}
	if payload.Temperature != nil {
		readings = append(readings, models.Reading{
			SensorName: "temperature",
			SensorType: evaluator.SensorTemperature,
			Value:      models.NumberValue(*payload.Temperature),
			Unit:       "°C",
		})
	}
	if payload.Humidity != nil {
		readings = append(readings, models.Reading{
			SensorName: "humidity",
			SensorType: evaluator.SensorHumidity,
			Value:      models.NumberValue(*payload.Humidity),
			Unit:       "%",
		})
	}
	if payload.CO2 != nil {
		readings = append(readings, models.Reading{
			SensorName: "co2",
			SensorType: evaluator.SensorCO2,
			Value:      models.NumberValue(*payload.CO2),
			Unit:       "ppm",
		})
	}
	if payload.PeopleCount != nil {
		readings = append(readings, models.Reading{
			SensorName: "people_count",
			SensorType: "people_count",
			Value:      models.NumberValue(float64(*payload.PeopleCount)),
			Unit:       "people",
		})
	}
	return readings
}
