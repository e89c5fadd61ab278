package applog

import (
	"encoding/json"
	"log"
	"time"
)

const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Or returns logger, or log.Default() when logger is nil.
func Or(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.Default()
	}
	return logger
}

func Info(logger *log.Logger, msg string, fields map[string]any) {
	Event(logger, LevelInfo, msg, fields)
}

func Warn(logger *log.Logger, msg string, fields map[string]any) {
	Event(logger, LevelWarn, msg, fields)
}

func Error(logger *log.Logger, msg string, fields map[string]any) {
	Event(logger, LevelError, msg, fields)
}

// Event writes one JSON object per line. ts, level and msg always win over
// same-named keys in fields.
func Event(logger *log.Logger, level, msg string, fields map[string]any) {
	payload := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		payload[k] = v
	}
	payload["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	payload["level"] = level
	payload["msg"] = msg
	JSON(logger, payload)
}

func JSON(logger *log.Logger, payload map[string]any) {
	if logger == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		logger.Printf(`{"level":"error","msg":"log_marshal_failed","error":%q}`, err.Error())
		return
	}
	logger.Print(string(b))
}
