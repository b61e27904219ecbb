package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	i_redis "voice-agent-server-golang/internal/db/redis"
	log "voice-agent-server-golang/logger"
)

// Store 保存每个参与者的对话记录
type Store interface {
	Append(ctx context.Context, participant string, role schema.RoleType, content string) error
	// History 返回最近 limit 条消息，旧消息在前
	History(ctx context.Context, participant string, limit int) ([]*schema.Message, error)
}

// RedisStore 使用 list 存储，每个参与者一个 key
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	maxLen    int
	ttl       time.Duration
}

// NewRedisStore maxLen 为保留的最大消息条数，<=0 时不裁剪
func NewRedisStore(client *redis.Client, keyPrefix string, maxLen int, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		maxLen:    maxLen,
		ttl:       ttl,
	}
}

func (s *RedisStore) key(participant string) string {
	return i_redis.KeyWithPrefix(s.keyPrefix, "transcript:"+participant)
}

func (s *RedisStore) Append(ctx context.Context, participant string, role schema.RoleType, content string) error {
	msgBytes, err := json.Marshal(schema.Message{Role: role, Content: content})
	if err != nil {
		return fmt.Errorf("marshal message failed: %w", err)
	}

	key := s.key(participant)
	log.Debugf("添加消息到对话记录: %s, %s", key, string(msgBytes))

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, string(msgBytes))
	if s.maxLen > 0 {
		pipe.LTrim(ctx, key, int64(-s.maxLen), -1)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) History(ctx context.Context, participant string, limit int) ([]*schema.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	results, err := s.client.LRange(ctx, s.key(participant), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get messages failed: %w", err)
	}

	messages := make([]*schema.Message, 0, len(results))
	for _, r := range results {
		var msg schema.Message
		if err := json.Unmarshal([]byte(r), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message failed: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}

// NopStore 未启用 redis 时使用
type NopStore struct{}

func (NopStore) Append(ctx context.Context, participant string, role schema.RoleType, content string) error {
	return nil
}

func (NopStore) History(ctx context.Context, participant string, limit int) ([]*schema.Message, error) {
	return nil, nil
}
