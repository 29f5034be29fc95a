// internal/logger/logger.go
//
// 全域結構化 logger（zap）。Initialize 之前 Log 為 no-op，測試不需任何設定。
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log 為全域 logger。
var Log = zap.NewNop()

// 常用欄位建構函式，呼叫端不需直接匯入 zap。
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Bool     = zap.Bool
	Duration = zap.Duration
	Error    = zap.Error
)

// Initialize 以指定等級建立 production 設定（JSON 輸出）的 logger 並取代 Log。
func Initialize(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	Log = l
	return nil
}
