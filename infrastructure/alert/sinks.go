package alert

import (
	"go.uber.org/zap"
)

// LogSink 把告警写入结构化日志
type LogSink struct {
	log  *zap.Logger
	name string
}

func NewLogSink(name string, log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log, name: name}
}

func (s *LogSink) Send(a Alert) error {
	fields := []zap.Field{
		zap.String("level", string(a.Level)),
		zap.Time("alert_time", a.Timestamp),
	}
	if a.Channel != "" {
		fields = append(fields, zap.String("channel", a.Channel))
	}
	if a.Code != 0 {
		fields = append(fields, zap.Int("code", a.Code))
	}
	for k, v := range a.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	switch a.Level {
	case LevelCritical:
		s.log.Error(a.Message, fields...)
	case LevelWarning:
		s.log.Warn(a.Message, fields...)
	default:
		s.log.Info(a.Message, fields...)
	}
	return nil
}

func (s *LogSink) Name() string { return s.name }
