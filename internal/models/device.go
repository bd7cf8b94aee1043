package models

import (
	"encoding/json"
	"time"
)

// 设备状态
const (
	DeviceStatusActive      = "active"
	DeviceStatusInactive    = "inactive"
	DeviceStatusMaintenance = "maintenance"
	DeviceStatusOffline     = "offline"
)

// 设备类型
const (
	DeviceTypeEnvironmental = "environmental"
	DeviceTypeAccessControl = "access_control"
)

// SensorDescriptor 设备声明的传感器
type SensorDescriptor struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Unit string `json:"unit,omitempty"`
}

// Device 设备（对应 devices 表）
type Device struct {
	DeviceID     string             `json:"device_id" db:"device_id"`
	DeviceName   string             `json:"name" db:"device_name"`
	DeviceType   string             `json:"type" db:"device_type"` // environmental, access_control
	SpaceID      int                `json:"space_id" db:"space_id"`
	SpaceName    string             `json:"space_name" db:"space_name"`
	Status       string             `json:"status" db:"status"`
	MQTTTopic    string             `json:"mqtt_topic" db:"mqtt_topic"`
	Sensors      []SensorDescriptor `json:"sensors" db:"sensors"`
	HardwareInfo json.RawMessage    `json:"hardware_info" db:"hardware_info"` // JSONB
	Location     *string            `json:"location,omitempty" db:"location"`
	LastSeen     time.Time          `json:"last_seen" db:"last_seen"`
	LastPayload  json.RawMessage    `json:"last_payload" db:"last_payload"` // JSONB
	CreatedAt    time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" db:"updated_at"`
}

// DeviceRegistration devices/add 注册消息
type DeviceRegistration struct {
	DeviceID     string             `json:"device_id"`
	Name         string             `json:"name"`
	Type         string             `json:"type"`
	SpaceID      int                `json:"space_id"`
	SpaceName    string             `json:"space_name"`
	Sensors      []SensorDescriptor `json:"sensors,omitempty"`
	MQTTTopic    string             `json:"mqtt_topic,omitempty"`
	HardwareInfo json.RawMessage    `json:"hardware_info,omitempty"`
	Location     *string            `json:"location,omitempty"`
}

// DeviceStats 设备状态统计（GET /devices/stats）
type DeviceStats struct {
	Total       int `json:"total"`
	Active      int `json:"active"`
	Inactive    int `json:"inactive"`
	Maintenance int `json:"maintenance"`
	Offline     int `json:"offline"`
}
