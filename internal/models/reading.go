package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SensorValueKind SensorValue 的变体标签
type SensorValueKind int

const (
	ValueInvalid SensorValueKind = iota
	ValueNumber
	ValueBool
	ValueString
)

// SensorValue 混合类型传感器值（number | boolean | string）
// 阈值评估只匹配数值变体，其余变体直接跳过
type SensorValue struct {
	kind SensorValueKind
	num  float64
	b    bool
	str  string
}

// NumberValue 构造数值变体
func NumberValue(v float64) SensorValue {
	return SensorValue{kind: ValueNumber, num: v}
}

// BoolValue 构造布尔变体
func BoolValue(v bool) SensorValue {
	return SensorValue{kind: ValueBool, b: v}
}

// StringValue 构造字符串变体
func StringValue(v string) SensorValue {
	return SensorValue{kind: ValueString, str: v}
}

// Kind 返回变体标签
func (v SensorValue) Kind() SensorValueKind {
	return v.kind
}

// Number 返回数值，第二个返回值表示是否为数值变体
func (v SensorValue) Number() (float64, bool) {
	return v.num, v.kind == ValueNumber
}

// Bool 返回布尔值
func (v SensorValue) Bool() (bool, bool) {
	return v.b, v.kind == ValueBool
}

// String 返回字符串值
func (v SensorValue) String() (string, bool) {
	return v.str, v.kind == ValueString
}

// IsValid 值是否存在（缺失值永远不产生报警）
func (v SensorValue) IsValid() bool {
	return v.kind != ValueInvalid
}

// UnmarshalJSON 按 JSON 类型分派到对应变体
func (v *SensorValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal sensor value: %w", err)
	}
	switch val := raw.(type) {
	case float64:
		*v = NumberValue(val)
	case bool:
		*v = BoolValue(val)
	case string:
		*v = StringValue(val)
	case nil:
		*v = SensorValue{}
	default:
		return fmt.Errorf("unsupported sensor value type: %T", raw)
	}
	return nil
}

// MarshalJSON 按变体输出原始 JSON 类型
func (v SensorValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueNumber:
		return json.Marshal(v.num)
	case ValueBool:
		return json.Marshal(v.b)
	case ValueString:
		return json.Marshal(v.str)
	default:
		return []byte("null"), nil
	}
}

// Reading 单个传感器读数
type Reading struct {
	SensorName string      `json:"sensor_name"`
	SensorType string      `json:"sensor_type"`
	Value      SensorValue `json:"value"`
	Unit       string      `json:"unit,omitempty"`
	Quality    string      `json:"quality,omitempty"`
}

// ReadingsPayload devices/{id}/readings 消息
type ReadingsPayload struct {
	Readings       []Reading  `json:"readings"`
	SpaceID        *int       `json:"space_id,omitempty"`
	DeviceStatus   string     `json:"device_status,omitempty"`
	BatteryLevel   *float64   `json:"battery_level,omitempty"`
	SignalStrength *float64   `json:"signal_strength,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

// SensorReading 读数批次（对应 sensor_readings 表，写入后不可变）
type SensorReading struct {
	ID             int64     `json:"id" db:"id"`
	DeviceID       string    `json:"device_id" db:"device_id"`
	SpaceID        int       `json:"space_id" db:"space_id"`
	RecordedAt     time.Time `json:"recorded_at" db:"recorded_at"`
	Readings       []Reading `json:"readings" db:"readings"` // JSONB
	DeviceStatus   *string   `json:"device_status,omitempty" db:"device_status"`
	BatteryLevel   *float64  `json:"battery_level,omitempty" db:"battery_level"`
	SignalStrength *float64  `json:"signal_strength,omitempty" db:"signal_strength"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
