package internal

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	Info LogLevel = iota
	Warning
	Error
	Debug
)

func (l LogLevel) String() string {
	switch l {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Debug:
		return "debug"
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// LogStruct represents a log entry with a level and message
type LogStruct struct {
	LogLevel LogLevel
	Message  string
	// RunId identifies the pipeline run that produced the entry, if any.
	RunId string
}

// LogHandlerFunc defines the function signature for log handlers
type LogHandlerFunc func(sender interface{}, log LogStruct)

// LogHandler is the global event handler for logs. It defaults to logrus and
// may be replaced or set to nil to silence the engine.
var LogHandler LogHandlerFunc = LogrusHandler(logrus.StandardLogger())

// LogrusHandler forwards engine logs to a logrus logger.
func LogrusHandler(logger logrus.FieldLogger) LogHandlerFunc {
	return func(sender interface{}, log LogStruct) {
		entry := logger.WithField("component", senderName(sender))
		if log.RunId != "" {
			entry = entry.WithField("run", log.RunId)
		}

		switch log.LogLevel {
		case Debug:
			entry.Debug(log.Message)
		case Warning:
			entry.Warn(log.Message)
		case Error:
			entry.Error(log.Message)
		default:
			entry.Info(log.Message)
		}
	}
}

func senderName(sender interface{}) string {
	if sender == nil {
		return "sophon"
	}
	if named, ok := sender.(interface{ LogName() string }); ok {
		return named.LogName()
	}
	return fmt.Sprintf("%T", sender)
}

func pushLog(sender interface{}, level LogLevel, message string) {
	handler := LogHandler
	if handler == nil {
		return
	}

	var runId string
	if run, ok := sender.(interface{ RunId() string }); ok {
		runId = run.RunId()
	}
	handler(sender, LogStruct{LogLevel: level, Message: message, RunId: runId})
}

// PushLogDebug sends a debug log message
func PushLogDebug(sender interface{}, message string) {
	pushLog(sender, Debug, message)
}

// PushLogInfo sends an info log message
func PushLogInfo(sender interface{}, message string) {
	pushLog(sender, Info, message)
}

// PushLogWarning sends a warning log message
func PushLogWarning(sender interface{}, message string) {
	pushLog(sender, Warning, message)
}

// PushLogError sends an error log message
func PushLogError(sender interface{}, message string) {
	pushLog(sender, Error, message)
}
