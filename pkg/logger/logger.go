// Package logger emits structured JSON log events. Every log line is an
// event name plus a flat field map, so the output can be shipped to a log
// pipeline without parsing free-form text.
package logger

import (
	"log/slog"
	"os"
	"sync"
)

var (
	log  *slog.Logger
	once sync.Once
)

func Init() {
	once.Do(func() {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	})
}

func Info(event string, fields map[string]interface{}) {
	if log == nil {
		Init()
	}
	log.Info(event, attrs(fields)...)
}

func Warn(event string, fields map[string]interface{}) {
	if log == nil {
		Init()
	}
	log.Warn(event, attrs(fields)...)
}

func Error(event string, err error, fields map[string]interface{}) {
	if log == nil {
		Init()
	}
	args := attrs(fields)
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	log.Error(event, args...)
}

func InfoWithUser(userID, event string, fields map[string]interface{}) {
	if log == nil {
		Init()
	}
	log.Info(event, append(attrs(fields), slog.String("user_id", userID))...)
}

func WarnWithUser(userID, event string, fields map[string]interface{}) {
	if log == nil {
		Init()
	}
	log.Warn(event, append(attrs(fields), slog.String("user_id", userID))...)
}

func attrs(fields map[string]interface{}) []any {
	args := make([]any, 0, len(fields))
	for key, value := range fields {
		args = append(args, slog.Any(key, value))
	}
	return args
}
