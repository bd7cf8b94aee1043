package models

import (
	"encoding/json"
	"time"
)

// 报警类型
const (
	AlertCapacityExceeded    = "capacity_exceeded"
	AlertCO2Critical         = "co2_critical"
	AlertTemperatureCritical = "temperature_critical"
	AlertHumidityCritical    = "humidity_critical"
	AlertDeviceOffline       = "device_offline"
	AlertDetectionError      = "detection_error"
)

// 报警级别
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// NotificationRecord 通知记录（notified_users JSONB 数组元素）
type NotificationRecord struct {
	UserID     string    `json:"user_id"`
	NotifiedAt time.Time `json:"notified_at"`
	Method     string    `json:"method"` // push, email, sms
}

// Alert 报警（对应 alerts 表）
// 不变式：同一 (space_id, alert_type, device_id) 最多一条 resolved=false 的记录
type Alert struct {
	AlertID         string          `json:"alert_id" db:"alert_id"`
	SpaceID         int             `json:"space_id" db:"space_id"`
	AlertType       string          `json:"alert_type" db:"alert_type"`
	Severity        string          `json:"severity" db:"severity"`
	Value           *float64        `json:"value,omitempty" db:"value"`
	Message         string          `json:"message" db:"message"`
	DeviceID        string          `json:"device_id" db:"device_id"`
	SensorData      json.RawMessage `json:"sensor_data" db:"sensor_data"` // JSONB
	PeopleCount     *int            `json:"people_count,omitempty" db:"people_count"`
	Resolved        bool            `json:"resolved" db:"resolved"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy      *string         `json:"resolved_by,omitempty" db:"resolved_by"`
	AutoResolved    bool            `json:"auto_resolved" db:"auto_resolved"`
	OccurrenceCount int             `json:"occurrence_count" db:"occurrence_count"`
	FirstOccurrence time.Time       `json:"first_occurrence" db:"first_occurrence"`
	LastOccurrence  time.Time       `json:"last_occurrence" db:"last_occurrence"`
	NotifiedUsers   json.RawMessage `json:"notified_users" db:"notified_users"` // JSONB
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// CandidateAlert 阈值评估产出的候选报警（尚未去重）
type CandidateAlert struct {
	SpaceID     int             `json:"space_id"`
	AlertType   string          `json:"alert_type"`
	Severity    string          `json:"severity"`
	Value       *float64        `json:"value,omitempty"`
	Message     string          `json:"message"`
	DeviceID    string          `json:"device_id"`
	SensorData  json.RawMessage `json:"sensor_data,omitempty"`
	PeopleCount *int            `json:"people_count,omitempty"`
}
