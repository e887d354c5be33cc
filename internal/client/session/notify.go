package session

import (
	"go.uber.org/zap"
)

// Kind 通知类型
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notification 提示消息，不改变状态
type Notification struct {
	Kind    Kind
	Message string
	// Code game-error 的错误码
	Code string
}

// Notifier 提示消息出口
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc 函数适配器
type NotifierFunc func(Notification)

// Notify 调用函数本身
func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier 写入日志
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier logger 为 nil 时使用全局 logger
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.L()
	}
	return &LogNotifier{logger: logger}
}

// Notify 按类型选择日志级别
func (n *LogNotifier) Notify(note Notification) {
	fields := []zap.Field{zap.String("kind", string(note.Kind))}
	if note.Code != "" {
		fields = append(fields, zap.String("code", note.Code))
	}
	if note.Kind == KindError {
		n.logger.Warn(note.Message, fields...)
		return
	}
	n.logger.Info(note.Message, fields...)
}
