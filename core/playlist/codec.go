package playlist

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"VcFM/logger"
	"VcFM/model"

	"github.com/go-redis/redis/v8"
)

// Codec 负责曲目属性与存储层之间的压缩/还原。
// 每条曲目以身份串的内容哈希为 key，属性按名拆开存放在各自的
// Detail-{attr} 哈希中，局部更新（如追加 seek）不需要重写整条记录。
type Codec struct {
	client *redis.Client
	botID  string
}

// NewCodec 创建曲目编解码器
func NewCodec(client *redis.Client, botID string) *Codec {
	return &Codec{client: client, botID: botID}
}

func (c *Codec) keysKey() string {
	return fmt.Sprintf("%s:Keys", c.botID)
}

func (c *Codec) detailKey(attr string) string {
	return fmt.Sprintf("%s:Detail-%s", c.botID, attr)
}

func (c *Codec) inProgressKey() string {
	return fmt.Sprintf("%s:InProgress", c.botID)
}

// TrackKey 计算身份串 "{namespace}/{id}" 的内容哈希。
// 同一首曲目无论属性如何变化，key 恒定，用于去重。
func TrackKey(identity string) string {
	sum := md5.Sum([]byte(identity))
	return hex.EncodeToString(sum[:])
}

// Compress 将属性映射写入存储，返回曲目 key。
// 对同一身份重复调用是幂等的：属性被覆盖，key 不变。
func (c *Codec) Compress(ctx context.Context, attrs map[string]string) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("Redis client not initialized")
	}

	key := TrackKey(attrs[model.AttrNamespace] + "/" + attrs[model.AttrID])

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, c.keysKey(), key, strings.Join(names, ","))
	for _, name := range names {
		pipe.HSet(ctx, c.detailKey(name), key, attrs[name])
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("压缩曲目属性失败: %w", err)
	}

	return key, nil
}

// Extract 按 key 还原完整属性映射。
// 未知 key 返回空映射；半写状态下缺失的单个属性被跳过，不中断还原。
func (c *Codec) Extract(ctx context.Context, key string) (map[string]string, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	result := make(map[string]string)

	names, err := c.client.HGet(ctx, c.keysKey(), key).Result()
	if err != nil {
		if err == redis.Nil {
			return result, nil
		}
		return nil, fmt.Errorf("读取属性名列表失败: %w", err)
	}

	for _, name := range strings.Split(names, ",") {
		value, err := c.client.HGet(ctx, c.detailKey(name), key).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("读取属性 %s 失败: %w", name, err)
		}
		result[name] = value
	}

	return result, nil
}

// ClearData 级联删除一条曲目的全部数据：
// 本地媒体文件、上传进行中标记、各属性值以及属性名列表。
// 对已删除的 key 重复调用是安全的空操作。
func (c *Codec) ClearData(ctx context.Context, key string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	names, err := c.client.HGet(ctx, c.keysKey(), key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("读取属性名列表失败: %w", err)
	}

	for _, name := range strings.Split(names, ",") {
		switch name {
		case model.AttrPath:
			path, err := c.client.HGet(ctx, c.detailKey(name), key).Result()
			if err == nil && path != "" {
				if _, statErr := os.Stat(path); statErr == nil {
					if rmErr := os.Remove(path); rmErr != nil {
						logger.Warn("删除媒体文件失败",
							logger.String("path", path),
							logger.ErrorField(rmErr))
					}
				}
			}
		case model.AttrID:
			id, err := c.client.HGet(ctx, c.detailKey(name), key).Result()
			if err == nil && id != "" {
				c.client.HDel(ctx, c.inProgressKey(), id)
			}
		}
		c.client.HDel(ctx, c.detailKey(name), key)
	}

	return c.client.HDel(ctx, c.keysKey(), key).Err()
}
