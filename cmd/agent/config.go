package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	logrus "github.com/sirupsen/logrus"

	"voice-agent-server-golang/internal/config"
	log "voice-agent-server-golang/logger"
)

func initConfig(envFile string) (*config.AppConfig, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	return cfg, nil
}

// initLog 日志按天轮转，保留 log.max_age 个文件
func initLog(cfg config.LogConfig) error {
	if cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return fmt.Errorf("创建日志目录失败: %w", err)
		}
	}
	logPath := filepath.Join(cfg.Path, cfg.File)

	opts := []rotatelogs.Option{
		rotatelogs.WithLinkName(logPath),
		rotatelogs.WithRotationTime(24 * time.Hour),
	}
	if cfg.MaxAge > 0 {
		opts = append(opts, rotatelogs.WithRotationCount(uint(cfg.MaxAge)))
	}
	writer, err := rotatelogs.New(logPath+".%Y%m%d", opts...)
	if err != nil {
		return fmt.Errorf("init log error: %w", err)
	}

	// 根据配置决定输出目标
	if cfg.Stdout {
		log.SetOutput(io.MultiWriter(writer, os.Stdout))
		logrus.SetFormatter(log.Formatter(true))
	} else {
		log.SetOutput(writer)
		logrus.SetFormatter(log.Formatter(false))
	}
	log.SetLevel(cfg.Level)
	return nil
}
