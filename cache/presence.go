package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	subscriberSetKey = "room:%s:subscribers"   // Set: 订阅端连接ID集合
	subscriberTTLKey = "room:%s:subscriber:%s" // String: 单个订阅端的心跳 key
	presenceTTL      = 120 * time.Second
)

// PresenceCache 记录房间订阅端的在线情况。
// 进程重启后推送连接会断开重连，集合带 TTL 自愈，不要求严格一致。
type PresenceCache struct {
	client *redis.Client
}

// NewPresenceCache 创建订阅在线缓存
func NewPresenceCache(client *redis.Client) *PresenceCache {
	return &PresenceCache{client: client}
}

// AddSubscriber 记录订阅端上线
func (c *PresenceCache) AddSubscriber(ctx context.Context, roomID string, connID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	pipe := c.client.Pipeline()
	pipe.SAdd(ctx, fmt.Sprintf(subscriberSetKey, roomID), connID)
	pipe.Expire(ctx, fmt.Sprintf(subscriberSetKey, roomID), presenceTTL)
	pipe.Set(ctx, fmt.Sprintf(subscriberTTLKey, roomID, connID), "1", presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RemoveSubscriber 记录订阅端下线
func (c *PresenceCache) RemoveSubscriber(ctx context.Context, roomID string, connID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	pipe := c.client.Pipeline()
	pipe.SRem(ctx, fmt.Sprintf(subscriberSetKey, roomID), connID)
	pipe.Del(ctx, fmt.Sprintf(subscriberTTLKey, roomID, connID))
	_, err := pipe.Exec(ctx)
	return err
}

// Heartbeat 刷新订阅端心跳
func (c *PresenceCache) Heartbeat(ctx context.Context, roomID string, connID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	pipe := c.client.Pipeline()
	pipe.Expire(ctx, fmt.Sprintf(subscriberSetKey, roomID), presenceTTL)
	pipe.Set(ctx, fmt.Sprintf(subscriberTTLKey, roomID, connID), "1", presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// CountSubscribers 返回仍有心跳的订阅端数量，顺带清理过期成员
func (c *PresenceCache) CountSubscribers(ctx context.Context, roomID string) (int, error) {
	if c.client == nil {
		return 0, fmt.Errorf("Redis client not initialized")
	}

	members, err := c.client.SMembers(ctx, fmt.Sprintf(subscriberSetKey, roomID)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}

	alive := 0
	for _, connID := range members {
		exists, err := c.client.Exists(ctx, fmt.Sprintf(subscriberTTLKey, roomID, connID)).Result()
		if err != nil {
			return 0, err
		}
		if exists > 0 {
			alive++
			continue
		}
		// 心跳过期，顺手移出集合
		c.client.SRem(ctx, fmt.Sprintf(subscriberSetKey, roomID), connID)
	}
	return alive, nil
}
