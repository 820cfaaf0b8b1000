package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"VcFM/core/access"
	"VcFM/core/media"
	"VcFM/core/playlist"
	"VcFM/core/provider"
	"VcFM/core/stream"
	"VcFM/logger"
	"VcFM/model"
)

var (
	// ErrNoResults 搜索没有命中任何曲目
	ErrNoResults = errors.New("no search results")
	// ErrNothingPlaying 房间当前没有播放中的曲目
	ErrNothingPlaying = errors.New("nothing playing")
	// ErrNothingNext 按当前规则没有可播放的下一首
	ErrNothingNext = errors.New("nothing to play next")
	// ErrNothingPrevious 按当前规则没有可回退的上一首
	ErrNothingPrevious = errors.New("nothing to play previous")
	// ErrSeekOutOfRange 跳转目标距曲目两端不足 10 秒
	ErrSeekOutOfRange = errors.New("seek target out of range")
)

// 跳转目标到曲目两端的最小安全距离（秒）
const seekMargin = 10

// Engine 队列操作的统一入口。
// 每个命令先过访问检查，再组合存储、流控制与外部服务完成操作；
// 命令之间不共享内存状态，全部以 Redis 为准。
type Engine struct {
	store     *playlist.Store
	ctrl      *stream.Controller
	transport stream.Transport
	provider  *provider.Client
	fetcher   *media.Fetcher
	access    *access.Pipeline
}

// NewEngine 创建命令引擎
func NewEngine(store *playlist.Store, ctrl *stream.Controller, transport stream.Transport,
	prov *provider.Client, fetcher *media.Fetcher, acc *access.Pipeline) *Engine {
	return &Engine{
		store:     store,
		ctrl:      ctrl,
		transport: transport,
		provider:  prov,
		fetcher:   fetcher,
		access:    acc,
	}
}

func (e *Engine) authorize(ctx context.Context, room string, userID int64, op string, needCall bool) error {
	return e.access.Authorize(ctx, &access.Request{
		Room:     room,
		UserID:   userID,
		Op:       op,
		NeedCall: needCall,
	})
}

// PlayResult 点播命令的结果
type PlayResult struct {
	Track         *model.Track `json:"track"`
	Key           string       `json:"key"`
	Started       bool         `json:"started"`       // true 表示立即起播，false 表示已入队
	Position      int          `json:"position"`      // 入队时在队列中的序号
	AlreadyQueued bool         `json:"alreadyQueued"` // 曲目此前已在队列中
}

// ========== 点播 ==========

// PlayProvider 按关键词点播：搜索取第一条结果，下载媒体文件后入队。
// 房间没有播放中的曲目时立即入会起播，否则返回曲目在队列中的位置。
func (e *Engine) PlayProvider(ctx context.Context, room string, userID int64, query string) (*PlayResult, error) {
	if err := e.authorize(ctx, room, userID, "play", false); err != nil {
		return nil, err
	}

	results, err := e.provider.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	return e.playResult(ctx, room, results[0])
}

// PlayResultItem 点播搜索结果中的指定条目（搜索与选择分离的交互路径）
func (e *Engine) PlayResultItem(ctx context.Context, room string, userID int64, item provider.SearchResult) (*PlayResult, error) {
	if err := e.authorize(ctx, room, userID, "play", false); err != nil {
		return nil, err
	}
	return e.playResult(ctx, room, item)
}

func (e *Engine) playResult(ctx context.Context, room string, item provider.SearchResult) (*PlayResult, error) {
	var track *model.Track
	var err error
	if item.Kind == model.KindVideo {
		track, err = e.provider.GetVideo(ctx, item.ID)
	} else {
		track, err = e.provider.GetAudio(ctx, item.ID)
	}
	if err != nil {
		return nil, err
	}

	// 重复点播直接报告已有位置，不再重新下载媒体文件
	key := playlist.TrackKey(track.Identity())
	if _, err := e.store.FullEntry(ctx, room, key); err == nil {
		pos, err := e.store.PositionOf(ctx, room, key)
		if err != nil {
			return nil, err
		}
		logger.Debug("曲目已在队列中", logger.String("room", room), logger.String("key", key))
		return &PlayResult{Track: track, Key: key, Position: pos, AlreadyQueued: true}, nil
	} else if !errors.Is(err, playlist.ErrNotQueued) {
		return nil, err
	}

	path, err := e.fetcher.Download(ctx, track.Link, track.Kind, track.Identity())
	if err != nil {
		return nil, err
	}
	track.Path = path

	if _, key, err = e.store.Add(ctx, room, track.Attrs()); err != nil {
		return nil, err
	}

	now, err := e.store.Now(ctx, room)
	if err != nil {
		return nil, err
	}

	// 房间空闲：入会起播，规则未设置时落到顺序播放
	if now == "" {
		rule, err := e.store.Rule(ctx, room)
		if err != nil {
			return nil, err
		}
		if rule == "" {
			if err := e.store.SetRule(ctx, room, model.RuleQueue); err != nil {
				return nil, err
			}
		}

		entry, err := e.store.FullEntry(ctx, room, key)
		if err != nil {
			return nil, err
		}
		if err := e.ctrl.ChangeStream(ctx, room, entry, 0, true); err != nil {
			return nil, err
		}
		// 记录播放器展示引用，拆除房间时据此通知订阅端移除界面
		if err := e.store.SetPlayerMessage(ctx, room, key); err != nil {
			logger.Warn("记录播放器引用失败", logger.String("room", room), logger.ErrorField(err))
		}
		return &PlayResult{Track: track, Key: key, Started: true}, nil
	}

	pos, err := e.store.PositionOf(ctx, room, key)
	if err != nil {
		return nil, err
	}
	return &PlayResult{Track: track, Key: key, Position: pos}, nil
}

// ========== 队列推进 ==========

// PlayNext 强制切到下一首。单曲循环规则下也会推进（强制语义）。
func (e *Engine) PlayNext(ctx context.Context, room string, userID int64) error {
	if err := e.authorize(ctx, room, userID, "next", true); err != nil {
		return err
	}

	entries, current, rule, err := e.queueContext(ctx, room)
	if err != nil {
		return err
	}

	next, ok := playlist.Next(entries, current, rule, true)
	if !ok {
		return ErrNothingNext
	}

	asNewJoin := next == current
	return e.ctrl.ChangeStream(ctx, room, next, 0, asNewJoin)
}

// PlayPrevious 回到上一首。只有循环整队规则会从队首回卷到队尾。
func (e *Engine) PlayPrevious(ctx context.Context, room string, userID int64) error {
	if err := e.authorize(ctx, room, userID, "previous", true); err != nil {
		return err
	}

	entries, current, rule, err := e.queueContext(ctx, room)
	if err != nil {
		return err
	}

	prev, ok := playlist.Previous(entries, current, rule)
	if !ok {
		return ErrNothingPrevious
	}

	asNewJoin := prev == current
	return e.ctrl.ChangeStream(ctx, room, prev, 0, asNewJoin)
}

// queueContext 取齐推进计算需要的三元组：有序条目、当前完整条目、规则
func (e *Engine) queueContext(ctx context.Context, room string) ([]string, string, model.Rule, error) {
	entries, err := e.store.Entries(ctx, room)
	if err != nil {
		return nil, "", "", err
	}
	rule, err := e.store.Rule(ctx, room)
	if err != nil {
		return nil, "", "", err
	}

	current := ""
	now, err := e.store.Now(ctx, room)
	if err != nil {
		return nil, "", "", err
	}
	if now != "" {
		if full, err := e.store.FullEntry(ctx, room, now); err == nil {
			current = full
		}
	}
	return entries, current, rule, nil
}

// ========== 播放控制 ==========

// Pause 暂停播放，传输层先暂停，随后落状态
func (e *Engine) Pause(ctx context.Context, room string, userID int64) error {
	if err := e.authorize(ctx, room, userID, "pause", true); err != nil {
		return err
	}
	if err := e.transport.Pause(ctx, room); err != nil {
		return err
	}
	return e.store.Pause(ctx, room)
}

// Resume 恢复播放
func (e *Engine) Resume(ctx context.Context, room string, userID int64) error {
	if err := e.authorize(ctx, room, userID, "resume", true); err != nil {
		return err
	}
	if err := e.transport.Resume(ctx, room); err != nil {
		return err
	}
	return e.store.Resume(ctx, room)
}

// Stop 停止播放并拆除房间状态：清空队列、级联数据与播放字段，退出通话
func (e *Engine) Stop(ctx context.Context, room string, userID int64) error {
	if err := e.authorize(ctx, room, userID, "stop", false); err != nil {
		return err
	}
	if err := e.store.Clear(ctx, room); err != nil {
		return err
	}
	e.ctrl.LeaveQuietly(ctx, room)
	logger.Info("房间播放已停止", logger.String("room", room))
	return nil
}

// SeekBy 在当前进度上前后跳转 delta 秒，返回跳转后的绝对位置。
// 目标距曲目任一端不足 10 秒时拒绝。累计偏移以表达式追加方式持久化，
// 曲目正常续播时会被整体重置。
func (e *Engine) SeekBy(ctx context.Context, room string, userID int64, delta int) (int, error) {
	if err := e.authorize(ctx, room, userID, "seek", true); err != nil {
		return 0, err
	}

	now, err := e.store.Now(ctx, room)
	if err != nil {
		return 0, err
	}
	if now == "" {
		return 0, ErrNothingPlaying
	}

	attrs, err := e.store.Codec().Extract(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(attrs) == 0 {
		return 0, stream.ErrTrackGone
	}

	played, err := e.transport.PlayedTime(ctx, room)
	if err != nil {
		return 0, fmt.Errorf("查询播放进度失败: %w", err)
	}

	base, err := playlist.SeekOffset(attrs[model.AttrSeek])
	if err != nil {
		return 0, err
	}
	target := int(played) + base + delta

	duration, _ := strconv.ParseFloat(attrs[model.AttrDuration], 64)
	if target < seekMargin || float64(target) > duration-seekMargin {
		return 0, ErrSeekOutOfRange
	}

	// 先落偏移表达式再切流：切流按目标秒数起播时要求属性里已有最新偏移
	attrs[model.AttrSeek] = playlist.AppendSeek(attrs[model.AttrSeek], delta)
	if _, err := e.store.Codec().Compress(ctx, attrs); err != nil {
		return 0, err
	}

	entry, err := e.store.FullEntry(ctx, room, now)
	if err != nil {
		return 0, err
	}
	if err := e.ctrl.ChangeStream(ctx, room, entry, target, false); err != nil {
		return 0, err
	}
	return target, nil
}

// PlayForce 直接跳到队列中的指定曲目
func (e *Engine) PlayForce(ctx context.Context, room string, userID int64, key string) error {
	if err := e.authorize(ctx, room, userID, "jump", true); err != nil {
		return err
	}

	entry, err := e.store.FullEntry(ctx, room, key)
	if err != nil {
		return err
	}
	return e.ctrl.ChangeStream(ctx, room, entry, 0, false)
}

// DeleteEntry 从队列删除曲目。删除正在播放的曲目时先强制推进，
// 推进无处可去（队尾且顺序规则，或队列只剩它自己）则整体拆除。
func (e *Engine) DeleteEntry(ctx context.Context, room string, userID int64, key string) error {
	if err := e.authorize(ctx, room, userID, "delete", false); err != nil {
		return err
	}

	now, err := e.store.Now(ctx, room)
	if err != nil {
		return err
	}
	if key != now {
		return e.store.Remove(ctx, room, key)
	}

	entries, current, rule, err := e.queueContext(ctx, room)
	if err != nil {
		return err
	}
	next, ok := playlist.Next(entries, current, rule, true)

	if err := e.store.Remove(ctx, room, key); err != nil {
		return err
	}

	if !ok || next == current {
		if err := e.store.Clear(ctx, room); err != nil {
			return err
		}
		e.ctrl.LeaveQuietly(ctx, room)
		logger.Info("删除当前曲目后队列无可播内容，房间已清理", logger.String("room", room))
		return nil
	}
	return e.ctrl.ChangeStream(ctx, room, next, 0, false)
}

// CycleRule 把房间规则轮换到下一个，返回新规则
func (e *Engine) CycleRule(ctx context.Context, room string, userID int64) (model.Rule, error) {
	if err := e.authorize(ctx, room, userID, "rule", false); err != nil {
		return "", err
	}

	rule, err := e.store.Rule(ctx, room)
	if err != nil {
		return "", err
	}
	next := model.CycleRule(rule)
	if err := e.store.SetRule(ctx, room, next); err != nil {
		return "", err
	}
	return next, nil
}

// ========== 查询 ==========

// QueueItem 队列快照中的一条曲目
type QueueItem struct {
	Position int    `json:"position"`
	Key      string `json:"key"`
	Name     string `json:"name"`
	Current  bool   `json:"current"`
}

// QueueSnapshot 返回房间队列的有序快照
func (e *Engine) QueueSnapshot(ctx context.Context, room string) ([]QueueItem, error) {
	entries, err := e.store.Entries(ctx, room)
	if err != nil {
		return nil, err
	}
	now, err := e.store.Now(ctx, room)
	if err != nil {
		return nil, err
	}

	items := make([]QueueItem, 0, len(entries))
	for i, entry := range entries {
		_, key := playlist.SplitEntry(entry)
		attrs, err := e.store.Codec().Extract(ctx, key)
		if err != nil {
			return nil, err
		}
		items = append(items, QueueItem{
			Position: i + 1,
			Key:      key,
			Name:     playlist.DisplayName(attrs),
			Current:  key == now,
		})
	}
	return items, nil
}

// CurrentDisplay 渲染当前曲目的播放器文案
func (e *Engine) CurrentDisplay(ctx context.Context, room string) (string, error) {
	now, err := e.store.Now(ctx, room)
	if err != nil {
		return "", err
	}
	if now == "" {
		return "", ErrNothingPlaying
	}

	attrs, err := e.store.Codec().Extract(ctx, now)
	if err != nil {
		return "", err
	}
	if len(attrs) == 0 {
		return "", stream.ErrTrackGone
	}

	played, err := e.transport.PlayedTime(ctx, room)
	if err != nil {
		logger.Warn("查询播放进度失败", logger.String("room", room), logger.ErrorField(err))
		played = 0
	}
	return playlist.Display(attrs, played), nil
}
