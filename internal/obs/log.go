package obs

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
	minLevel   atomic.Int32
)

var levels = map[string]int32{"debug": -1, "info": 0, "warn": 1, "error": 2}

// SetLevel drops Log entries below level. Unknown levels are rejected.
func SetLevel(level string) error {
	v, ok := levels[level]
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}
	minLevel.Store(v)
	return nil
}

func enabled(level string) bool {
	v, ok := levels[level]
	return !ok || v >= minLevel.Load()
}

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits a structured JSON log line with common HTTP fields.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// Log emits a JSON line with ts, level and msg merged over fields.
func Log(level, msg string, fields map[string]any) {
	if !enabled(level) {
		return
	}
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level
	entry["msg"] = msg
	LogRequest(entry)
}

// Debug logs at debug level.
func Debug(msg string, fields map[string]any) { Log("debug", msg, fields) }

// Info logs at info level.
func Info(msg string, fields map[string]any) { Log("info", msg, fields) }

// Warn logs at warn level.
func Warn(msg string, fields map[string]any) { Log("warn", msg, fields) }

// Error logs at error level.
func Error(msg string, fields map[string]any) { Log("error", msg, fields) }
