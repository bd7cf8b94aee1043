package service

import "errors"

// 业务错误哨兵，调用方用 errors.Is 区分
var (
	// ErrValidation 消息字段校验失败
	ErrValidation = errors.New("validation failed")

	// ErrUnknownDevice 未注册设备（读数整批丢弃）
	ErrUnknownDevice = errors.New("unknown device")
)
