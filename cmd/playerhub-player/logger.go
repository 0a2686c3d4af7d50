package main

import (
	"log/slog"
	"os"
	"strings"
)

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func initLogger(logLevel string) {
	level := slog.LevelInfo
	switch strings.ToUpper(logLevel) {
	case "ERROR":
		level = slog.LevelError
	case "WARNING":
		level = slog.LevelWarn
	case "DEBUG":
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
