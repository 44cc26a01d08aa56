// Package logger собирает slog.Logger для сервисов по настройкам из конфига.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/magabrotheeeer/helper-dispatch/internal/config"
)

// New создает текстовый логгер. Если задан cfg.File, вывод дублируется
// в файл с ротацией.
func New(cfg config.Log) *slog.Logger {
	return slog.New(slog.NewTextHandler(writer(cfg, os.Stdout), &slog.HandlerOptions{Level: level(cfg.Level)}))
}

func writer(cfg config.Log, stdout io.Writer) io.Writer {
	if cfg.File == "" {
		return stdout
	}
	return io.MultiWriter(stdout, &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	})
}

func level(s string) slog.Level {
	switch strings.ToLower(s) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}
