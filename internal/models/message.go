package models

import "time"

// EnvironmentalPayload sensors/environmental_data 聚合环境消息
type EnvironmentalPayload struct {
	DeviceID    string     `json:"device_id"`
	SpaceID     *int       `json:"space_id,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
	Humidity    *float64   `json:"humidity,omitempty"`
	CO2         *float64   `json:"co2,omitempty"`
	PeopleCount *int       `json:"people_count,omitempty"`
	Capacity    *int       `json:"capacity,omitempty"`
	Error       string     `json:"error,omitempty"` // 检测流水线错误（如摄像头人数统计失败）
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

// AccessRequest access/request RFID 访问请求
type AccessRequest struct {
	DeviceID   string     `json:"device_id"`
	SpaceID    *int       `json:"space_id,omitempty"`
	CardCode   string     `json:"card_code"`
	AccessType string     `json:"access_type,omitempty"` // entry, exit
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// GuestList guests/list 访客名单推送
type GuestList struct {
	SpaceID int      `json:"space_id"`
	Guests  []string `json:"guests"`
}

// BackendStatus backend/status 存活通告
type BackendStatus struct {
	Status    string `json:"status"` // online, offline
	Timestamp int64  `json:"timestamp"`
}
