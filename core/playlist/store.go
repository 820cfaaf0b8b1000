package playlist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"VcFM/model"

	"github.com/go-redis/redis/v8"
)

// ErrNotQueued 曲目不在房间队列中
var ErrNotQueued = errors.New("track not in queue")

// Store 管理每个房间的播放队列与播放状态。
// Redis 是唯一的事实来源：每次读取都重新取数，进程重启后状态不丢失。
// 各步骤不跨 key 加事务，靠单步幂等保证一致（重复添加/删除都是安全空操作）。
type Store struct {
	client *redis.Client
	botID  string
	codec  *Codec
}

// NewStore 创建队列存储
func NewStore(client *redis.Client, botID string) *Store {
	return &Store{
		client: client,
		botID:  botID,
		codec:  NewCodec(client, botID),
	}
}

// Codec 返回底层编解码器
func (s *Store) Codec() *Codec {
	return s.codec
}

func (s *Store) playlistKey(room string) string {
	return fmt.Sprintf("%s:Playlist:%s", s.botID, room)
}

func (s *Store) nowPlayingKey() string {
	return fmt.Sprintf("%s:NowPlaying", s.botID)
}

func (s *Store) statusKey() string {
	return fmt.Sprintf("%s:Status", s.botID)
}

func (s *Store) ruleKey() string {
	return fmt.Sprintf("%s:PlayingRule", s.botID)
}

func (s *Store) playerMessageKey() string {
	return fmt.Sprintf("%s:PlayerMessage", s.botID)
}

// SplitEntry 拆分 "{pos}-{key}" 形式的队列条目
func SplitEntry(entry string) (int, string) {
	parts := strings.SplitN(entry, "-", 2)
	if len(parts) != 2 {
		return 0, entry
	}
	pos, _ := strconv.Atoi(parts[0])
	return pos, parts[1]
}

// ========== 队列管理 ==========

// Entries 返回房间队列的有序条目序列，空队列返回空切片。
// 逻辑顺序就是条目串的排序结果，位置标签在删除后不重编号。
func (s *Store) Entries(ctx context.Context, room string) ([]string, error) {
	if s.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	members, err := s.client.SMembers(ctx, s.playlistKey(room)).Result()
	if err != nil {
		if err == redis.Nil {
			return []string{}, nil
		}
		return nil, fmt.Errorf("读取播放队列失败: %w", err)
	}

	sort.Strings(members)
	return members, nil
}

// FullEntry 按曲目 key 找到队列中的完整条目 "{pos}-{key}"
func (s *Store) FullEntry(ctx context.Context, room string, key string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("Redis client not initialized")
	}

	var cursor uint64
	for {
		matches, next, err := s.client.SScan(ctx, s.playlistKey(room), cursor, "*-"+key, 0).Result()
		if err != nil {
			return "", fmt.Errorf("扫描播放队列失败: %w", err)
		}
		if len(matches) > 0 {
			return matches[0], nil
		}
		if next == 0 {
			return "", ErrNotQueued
		}
		cursor = next
	}
}

// Add 将曲目加入房间队列。
// 先压缩属性得到 key；同一曲目重复添加不产生新条目，返回 (false, key)。
// 位置标签取当前基数+1，只在插入时分配一次。
func (s *Store) Add(ctx context.Context, room string, attrs map[string]string) (bool, string, error) {
	key, err := s.codec.Compress(ctx, attrs)
	if err != nil {
		return false, "", err
	}

	if _, err := s.FullEntry(ctx, room, key); err == nil {
		return false, key, nil
	} else if !errors.Is(err, ErrNotQueued) {
		return false, "", err
	}

	count, err := s.client.SCard(ctx, s.playlistKey(room)).Result()
	if err != nil {
		return false, "", fmt.Errorf("读取队列长度失败: %w", err)
	}

	entry := fmt.Sprintf("%d-%s", count+1, key)
	if err := s.client.SAdd(ctx, s.playlistKey(room), entry).Err(); err != nil {
		return false, "", fmt.Errorf("写入队列条目失败: %w", err)
	}

	return true, key, nil
}

// PositionOf 返回曲目在当前排序后队列中的序号（1 起始）。
// 注意这是现存条目中的名次，不是插入时分配的位置标签。
func (s *Store) PositionOf(ctx context.Context, room string, key string) (int, error) {
	entries, err := s.Entries(ctx, room)
	if err != nil {
		return 0, err
	}

	full, err := s.FullEntry(ctx, room, key)
	if err != nil {
		return 0, err
	}

	for i, entry := range entries {
		if entry == full {
			return i + 1, nil
		}
	}
	return 0, ErrNotQueued
}

// Remove 级联删除曲目：属性数据、本地文件、上传标记，最后移除队列条目。
// 曲目不在队列中时仍清理残留数据并返回成功。
func (s *Store) Remove(ctx context.Context, room string, key string) error {
	full, err := s.FullEntry(ctx, room, key)
	if errors.Is(err, ErrNotQueued) {
		return s.codec.ClearData(ctx, key)
	}
	if err != nil {
		return err
	}

	if err := s.codec.ClearData(ctx, key); err != nil {
		return err
	}
	return s.client.SRem(ctx, s.playlistKey(room), full).Err()
}

// Clear 清空房间：删除每个条目及其级联数据，再移除全部播放状态字段
func (s *Store) Clear(ctx context.Context, room string) error {
	entries, err := s.Entries(ctx, room)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		_, key := SplitEntry(entry)
		if err := s.codec.ClearData(ctx, key); err != nil {
			return err
		}
		if err := s.client.SRem(ctx, s.playlistKey(room), entry).Err(); err != nil {
			return err
		}
	}

	pipe := s.client.Pipeline()
	pipe.HDel(ctx, s.ruleKey(), room)
	pipe.HDel(ctx, s.statusKey(), room)
	pipe.HDel(ctx, s.nowPlayingKey(), room)
	pipe.HDel(ctx, s.playerMessageKey(), room)
	_, err = pipe.Exec(ctx)
	return err
}

// ========== 播放状态 ==========

// Now 返回房间当前播放的曲目 key，无播放时返回空串
func (s *Store) Now(ctx context.Context, room string) (string, error) {
	key, err := s.client.HGet(ctx, s.nowPlayingKey(), room).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return key, nil
}

// Play 设置当前曲目并置为播放中
func (s *Store) Play(ctx context.Context, room string, key string) error {
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.nowPlayingKey(), room, key)
	pipe.HSet(ctx, s.statusKey(), room, string(model.StatusPlay))
	_, err := pipe.Exec(ctx)
	return err
}

// Pause 仅切换状态字段，传输层的实际暂停由调用方同步执行
func (s *Store) Pause(ctx context.Context, room string) error {
	return s.client.HSet(ctx, s.statusKey(), room, string(model.StatusPause)).Err()
}

// Resume 恢复播放状态
func (s *Store) Resume(ctx context.Context, room string) error {
	return s.client.HSet(ctx, s.statusKey(), room, string(model.StatusPlay)).Err()
}

// Status 返回播放/暂停状态
func (s *Store) Status(ctx context.Context, room string) (model.PlayStatus, error) {
	v, err := s.client.HGet(ctx, s.statusKey(), room).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return model.PlayStatus(v), nil
}

// Rule 返回房间的播放规则，未设置时返回空规则
func (s *Store) Rule(ctx context.Context, room string) (model.Rule, error) {
	v, err := s.client.HGet(ctx, s.ruleKey(), room).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return model.Rule(v), nil
}

// SetRule 设置播放规则
func (s *Store) SetRule(ctx context.Context, room string, rule model.Rule) error {
	return s.client.HSet(ctx, s.ruleKey(), room, string(rule)).Err()
}

// PlayerMessage 返回房间最近一次渲染的播放器消息引用
func (s *Store) PlayerMessage(ctx context.Context, room string) (string, error) {
	v, err := s.client.HGet(ctx, s.playerMessageKey(), room).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

// SetPlayerMessage 记录播放器消息引用
func (s *Store) SetPlayerMessage(ctx context.Context, room string, ref string) error {
	return s.client.HSet(ctx, s.playerMessageKey(), room, ref).Err()
}

// ClearPlayerMessage 移除播放器消息引用
func (s *Store) ClearPlayerMessage(ctx context.Context, room string) error {
	return s.client.HDel(ctx, s.playerMessageKey(), room).Err()
}

// ========== 上传标记 ==========

func (s *Store) inProgressKey() string {
	return fmt.Sprintf("%s:InProgress", s.botID)
}

func (s *Store) savedKey() string {
	return fmt.Sprintf("%s:Saved", s.botID)
}

func (s *Store) messageIDKey() string {
	return fmt.Sprintf("%s:MessageID", s.botID)
}

// InProgress 检查指定来源ID是否有上传正在进行
func (s *Store) InProgress(ctx context.Context, providerID string) (bool, error) {
	_, err := s.client.HGet(ctx, s.inProgressKey(), providerID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetInProgress 标记上传进行中
func (s *Store) SetInProgress(ctx context.Context, providerID string) error {
	return s.client.HSet(ctx, s.inProgressKey(), providerID, "true").Err()
}

// ClearInProgress 清除上传进行中标记
func (s *Store) ClearInProgress(ctx context.Context, providerID string) error {
	return s.client.HDel(ctx, s.inProgressKey(), providerID).Err()
}

// IsSaved 检查来源ID是否已归档
func (s *Store) IsSaved(ctx context.Context, providerID string) (bool, error) {
	return s.client.SIsMember(ctx, s.savedKey(), providerID).Result()
}

// MarkSaved 标记来源ID已归档
func (s *Store) MarkSaved(ctx context.Context, providerID string) error {
	return s.client.SAdd(ctx, s.savedKey(), providerID).Err()
}

// MessageRef 返回来源ID对应的归档对象引用，未归档返回空串
func (s *Store) MessageRef(ctx context.Context, providerID string) (string, error) {
	v, err := s.client.HGet(ctx, s.messageIDKey(), providerID).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

// SetMessageRef 记录来源ID对应的归档对象引用
func (s *Store) SetMessageRef(ctx context.Context, providerID string, ref string) error {
	return s.client.HSet(ctx, s.messageIDKey(), providerID, ref).Err()
}
