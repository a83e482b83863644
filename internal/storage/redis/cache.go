package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"mailsync/backend/internal/domain"
)

// Cache 基于 Redis 的拉取结果缓存与限流计数实现。
//
// 缓存键按账户隔离；删除账户或发生变更操作后应主动失效，
// 否则等待 TTL 自然过期。
type Cache struct {
	client *Client
}

// NewCache 创建 Redis 缓存实例
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

func messagesKey(accountID string) string {
	return fmt.Sprintf("mailsync:messages:%s", accountID)
}

func rateLimitKey(key string) string {
	return fmt.Sprintf("mailsync:ratelimit:%s", key)
}

// GetMessages 获取账户的缓存拉取结果，未命中返回 (nil, false, nil)。
func (c *Cache) GetMessages(ctx context.Context, accountID string) ([]domain.Message, bool, error) {
	data, err := c.client.rdb.Get(ctx, messagesKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var messages []domain.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		// 缓存内容损坏时按未命中处理并顺手清掉
		_ = c.client.rdb.Del(ctx, messagesKey(accountID)).Err()
		return nil, false, nil
	}
	return messages, true, nil
}

// SetMessages 缓存账户的拉取结果。
func (c *Cache) SetMessages(ctx context.Context, accountID string, messages []domain.Message, ttl time.Duration) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	return c.client.rdb.Set(ctx, messagesKey(accountID), data, ttl).Err()
}

// InvalidateMessages 使账户的缓存结果失效。
func (c *Cache) InvalidateMessages(ctx context.Context, accountID string) error {
	return c.client.rdb.Del(ctx, messagesKey(accountID)).Err()
}

// IncrementRateLimit 自增限流计数，首次自增时设置窗口过期。
func (c *Cache) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	ctx := context.Background()
	k := rateLimitKey(key)

	count, err := c.client.rdb.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := c.client.rdb.Expire(ctx, k, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// GetRateLimit 获取限流计数。
func (c *Cache) GetRateLimit(key string) (int64, error) {
	ctx := context.Background()

	count, err := c.client.rdb.Get(ctx, rateLimitKey(key)).Int64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// Close 关闭底层 Redis 连接。
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health Redis 连通性检查。
func (c *Cache) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return c.client.Ping(ctx)
}
