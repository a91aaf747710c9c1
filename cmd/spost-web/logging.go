package main

import (
	"fmt"

	"SPost-Planner/internal/bridge"
	"SPost-Planner/internal/config"
	"SPost-Planner/internal/core/network"
	"SPost-Planner/internal/planner"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func installLogger(log *zap.Logger) {
	network.SetLogger(log.Named("network"))
	bridge.SetLogger(log.Named("bridge"))
	planner.SetLogger(log.Named("planner"))
}
