package evaluator

import (
	"encoding/json"
	"fmt"

	"workbit-telemetry/internal/models"
)

// 可评估的传感器类型
const (
	SensorTemperature = "temperature"
	SensorHumidity    = "humidity"
	SensorCO2         = "co2"
)

// Thresholds 阈值配置
// 边界相等不算越界（严格 < / >）
type Thresholds struct {
	TemperatureMin float64
	TemperatureMax float64
	HumidityMin    float64
	HumidityMax    float64
	CO2Warning     float64
	CO2Critical    float64
	SeverityFactor float64 // 超出 bound×factor（或低于 bound÷factor）升级为 critical
}

// Context 评估上下文（候选报警需要的空间/设备信息）
type Context struct {
	DeviceID  string
	SpaceID   int
	SpaceName string
}

// AlertTypeForSensor 传感器类型对应的报警类型
func AlertTypeForSensor(sensorType string) (string, bool) {
	switch sensorType {
	case SensorTemperature:
		return models.AlertTemperatureCritical, true
	case SensorHumidity:
		return models.AlertHumidityCritical, true
	case SensorCO2:
		return models.AlertCO2Critical, true
	default:
		return "", false
	}
}

// Evaluate 纯函数：值 → 候选报警
// 非数值变体（如布尔 presence）直接返回 nil，类型不匹配永远不产生报警
func Evaluate(th Thresholds, sensorType string, value models.SensorValue, evalCtx Context) *models.CandidateAlert {
	v, ok := value.Number()
	if !ok {
		return nil
	}

	switch sensorType {
	case SensorTemperature:
		return evaluateRange(th, evalCtx, models.AlertTemperatureCritical, "Temperature", "°C",
			v, th.TemperatureMin, th.TemperatureMax)
	case SensorHumidity:
		return evaluateRange(th, evalCtx, models.AlertHumidityCritical, "Humidity", "%",
			v, th.HumidityMin, th.HumidityMax)
	case SensorCO2:
		return evaluateCO2(th, evalCtx, v)
	default:
		return nil
	}
}

// EvaluateCapacity 容量评估：people_count 超过空间容量即 critical
func EvaluateCapacity(peopleCount, capacity int, evalCtx Context) *models.CandidateAlert {
	if peopleCount <= capacity {
		return nil
	}
	v := float64(peopleCount)
	pc := peopleCount
	return &models.CandidateAlert{
		SpaceID:   evalCtx.SpaceID,
		AlertType: models.AlertCapacityExceeded,
		Severity:  models.SeverityCritical,
		Value:     &v,
		Message: fmt.Sprintf("Occupancy %d exceeds capacity %d in %s",
			peopleCount, capacity, evalCtx.SpaceName),
		DeviceID:    evalCtx.DeviceID,
		SensorData:  sensorSnapshot("capacity", v, "people"),
		PeopleCount: &pc,
	}
}

// InNormalRange 值是否在正常区间内（用于自动解除）
// 非数值变体视为"未知"，返回 false，不触发自动解除
func InNormalRange(th Thresholds, sensorType string, value models.SensorValue) bool {
	v, ok := value.Number()
	if !ok {
		return false
	}
	switch sensorType {
	case SensorTemperature:
		return v >= th.TemperatureMin && v <= th.TemperatureMax
	case SensorHumidity:
		return v >= th.HumidityMin && v <= th.HumidityMax
	case SensorCO2:
		return v <= th.CO2Warning
	default:
		return false
	}
}

// evaluateRange 双边阈值评估（temperature / humidity）
// 越界即 high；超出 bound×factor（高侧）或低于 bound÷factor（低侧）升级 critical
func evaluateRange(th Thresholds, evalCtx Context, alertType, label, unit string, v, min, max float64) *models.CandidateAlert {
	var severity, message string

	switch {
	case v > max:
		severity = models.SeverityHigh
		if th.SeverityFactor > 0 && v > max*th.SeverityFactor {
			severity = models.SeverityCritical
		}
		message = fmt.Sprintf("%s %.1f%s above maximum %.1f%s in %s",
			label, v, unit, max, unit, evalCtx.SpaceName)
	case v < min:
		severity = models.SeverityHigh
		if th.SeverityFactor > 0 && v < min/th.SeverityFactor {
			severity = models.SeverityCritical
		}
		message = fmt.Sprintf("%s %.1f%s below minimum %.1f%s in %s",
			label, v, unit, min, unit, evalCtx.SpaceName)
	default:
		return nil
	}

	val := v
	return &models.CandidateAlert{
		SpaceID:    evalCtx.SpaceID,
		AlertType:  alertType,
		Severity:   severity,
		Value:      &val,
		Message:    message,
		DeviceID:   evalCtx.DeviceID,
		SensorData: sensorSnapshot(alertTypeSensor(alertType), v, unit),
	}
}

// evaluateCO2 分级阈值评估：> warning 为 medium，> critical 为 critical
func evaluateCO2(th Thresholds, evalCtx Context, v float64) *models.CandidateAlert {
	if v <= th.CO2Warning {
		return nil
	}

	severity := models.SeverityMedium
	bound := th.CO2Warning
	if v > th.CO2Critical {
		severity = models.SeverityCritical
		bound = th.CO2Critical
	}

	val := v
	return &models.CandidateAlert{
		SpaceID:   evalCtx.SpaceID,
		AlertType: models.AlertCO2Critical,
		Severity:  severity,
		Value:     &val,
		Message: fmt.Sprintf("CO2 %.0fppm above %.0fppm in %s",
			v, bound, evalCtx.SpaceName),
		DeviceID:   evalCtx.DeviceID,
		SensorData: sensorSnapshot(SensorCO2, v, "ppm"),
	}
}

func alertTypeSensor(alertType string) string {
	switch alertType {
	case models.AlertTemperatureCritical:
		return SensorTemperature
	case models.AlertHumidityCritical:
		return SensorHumidity
	case models.AlertCO2Critical:
		return SensorCO2
	default:
		return alertType
	}
}

func sensorSnapshot(sensorType string, value float64, unit string) json.RawMessage {
	data, _ := json.Marshal(map[string]interface{}{
		"sensor_type": sensorType,
		"value":       value,
		"unit":        unit,
	})
	return data
}
