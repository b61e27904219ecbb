package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"voice-agent-server-golang/internal/config"
	log "voice-agent-server-golang/logger"
)

// 连接池配置
const (
	poolSize     = 10
	minIdleConns = 2
	maxRetries   = 3
	ioTimeout    = 5 * time.Second
)

// NewClient 按配置创建客户端并测试连接
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		MinIdleConns: minIdleConns,
		MaxRetries:   maxRetries,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
		DialTimeout:  ioTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, ioTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Infof("Redis客户端初始化成功: %s:%d", cfg.Host, cfg.Port)
	return client, nil
}

// KeyWithPrefix 获取带前缀的键名
func KeyWithPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", prefix, key)
}

// LogStats 记录连接池统计信息
func LogStats(client *redis.Client) {
	if client == nil {
		return
	}
	stats := client.PoolStats()
	log.Debugf("Redis连接池统计 - 总连接: %d, 空闲连接: %d, 过期连接: %d, 命中: %d, 未命中: %d, 超时: %d",
		stats.TotalConns, stats.IdleConns, stats.StaleConns, stats.Hits, stats.Misses, stats.Timeouts)
}
