package stream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"VcFM/core/playlist"
	"VcFM/logger"
	"VcFM/model"
)

var (
	// ErrTrackGone 曲目属性数据缺失（已被清理或从未写入）
	ErrTrackGone = errors.New("track data missing")
	// ErrJoinFailed 重试次数用尽后流仍未起播
	ErrJoinFailed = errors.New("stream join failed after retries")
)

// Controller 负责把房间的直播流切换到指定队列条目。
// 覆盖三种路径：全新入会、原地热切换、带偏移的续播，
// 并带零时长守卫：传输层宣称已接入但实际没有出流时按固定偏移重试。
type Controller struct {
	store     *playlist.Store
	transport Transport
	builder   SourceBuilder

	joinSettle   time.Duration // 重新入会前等待传输层释放资源
	streamSettle time.Duration // 切流后到查询播放进度的间隔
	maxRetries   int           // 零时长守卫的重试上限
}

// NewController 创建流切换控制器
func NewController(store *playlist.Store, transport Transport, builder SourceBuilder,
	joinSettle, streamSettle time.Duration, maxRetries int) *Controller {
	return &Controller{
		store:        store,
		transport:    transport,
		builder:      builder,
		joinSettle:   joinSettle,
		streamSettle: streamSettle,
		maxRetries:   maxRetries,
	}
}

// ChangeStream 把房间的流切换到指定条目。
// seek 大于 0 表示从该秒数起播；asNewJoin 为 true 时先退出再重新入会。
// 入会被拒（如 ErrNoActiveCall）时错误原样上抛，不再做任何状态变更。
func (c *Controller) ChangeStream(ctx context.Context, room string, entry string, seek int, asNewJoin bool) error {
	return c.changeStream(ctx, room, entry, seek, asNewJoin, 0)
}

func (c *Controller) changeStream(ctx context.Context, room string, entry string, seek int, asNewJoin bool, attempt int) error {
	_, key := playlist.SplitEntry(entry)

	if err := c.store.Play(ctx, room, key); err != nil {
		return fmt.Errorf("更新当前播放曲目失败: %w", err)
	}

	attrs, err := c.store.Codec().Extract(ctx, key)
	if err != nil {
		return err
	}
	if len(attrs) == 0 {
		return ErrTrackGone
	}

	// 普通续播会重置累计偏移：只有显式 seek 才保留 seek 表达式
	if seek == 0 && attrs[model.AttrSeek] != "" {
		delete(attrs, model.AttrSeek)
		if _, err := c.store.Codec().Compress(ctx, attrs); err != nil {
			return err
		}
	}

	duration, _ := strconv.ParseFloat(attrs[model.AttrDuration], 64)
	spec := SourceSpec{
		Path:            attrs[model.AttrPath],
		Kind:            model.MediaKind(attrs[model.AttrKind]),
		DurationSeconds: duration,
	}
	if seek > 0 {
		spec.SeekSeconds = seek
	}

	source, err := c.builder.Build(spec)
	if err != nil {
		return fmt.Errorf("构造流源失败: %w", err)
	}

	if asNewJoin {
		c.LeaveQuietly(ctx, room)
		time.Sleep(c.joinSettle)
		if err := c.transport.Join(ctx, room, source); err != nil {
			return err
		}
	} else {
		if err := c.transport.ChangeSource(ctx, room, source); err != nil {
			return err
		}
	}

	// 零时长守卫：传输层可能在媒体真正出流前就报告已接入
	time.Sleep(c.streamSettle)
	played, err := c.transport.PlayedTime(ctx, room)
	if err != nil {
		logger.Warn("查询播放进度失败", logger.String("room", room), logger.ErrorField(err))
		return nil
	}
	if played == 0 {
		if attempt+1 >= c.maxRetries {
			logger.Error("流始终未起播，放弃重试",
				logger.String("room", room),
				logger.Int("attempts", attempt+1))
			return ErrJoinFailed
		}
		logger.Warn("入会后未检测到播放进度，按 2 秒偏移重试",
			logger.String("room", room),
			logger.Int("attempt", attempt+1))
		return c.changeStream(ctx, room, entry, 2, false, attempt+1)
	}

	return nil
}

// LeaveQuietly 尽力退出通话，失败只记日志（对未入会的房间是幂等空操作）
func (c *Controller) LeaveQuietly(ctx context.Context, room string) {
	if err := c.transport.Leave(ctx, room); err != nil {
		logger.Debug("退出通话失败（忽略）", logger.String("room", room), logger.ErrorField(err))
	}
}
