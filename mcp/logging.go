package mcp

import (
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel string

const (
	LogLevelDebug     LogLevel = "debug"
	LogLevelInfo      LogLevel = "info"
	LogLevelNotice    LogLevel = "notice"
	LogLevelWarning   LogLevel = "warning"
	LogLevelError     LogLevel = "error"
	LogLevelCritical  LogLevel = "critical"
	LogLevelAlert     LogLevel = "alert"
	LogLevelEmergency LogLevel = "emergency"
)

// LogData represents structured data for a log message
type LogData map[string]any

var logSeverity = map[LogLevel]int{
	LogLevelDebug:     0,
	LogLevelInfo:      1,
	LogLevelNotice:    2,
	LogLevelWarning:   3,
	LogLevelError:     4,
	LogLevelCritical:  5,
	LogLevelAlert:     6,
	LogLevelEmergency: 7,
}

// shouldEmitLog reports whether a message at level passes the configured
// minimum.
func shouldEmitLog(minimum, level LogLevel) bool {
	min, ok := logSeverity[minimum]
	if !ok {
		min = logSeverity[LogLevelInfo]
	}
	sev, ok := logSeverity[level]
	if !ok {
		return true
	}
	return sev >= min
}

// buildLogParams assembles the notifications/message payload.
func buildLogParams(level LogLevel, logger, message string, data LogData) map[string]any {
	if data == nil {
		data = make(LogData)
	}
	data["message"] = message
	data["timestamp"] = time.Now().Format(time.RFC3339)
	return map[string]any{
		"level":  level,
		"data":   data,
		"logger": logger,
	}
}
