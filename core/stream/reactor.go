package stream

import (
	"context"

	"VcFM/core/playlist"
	"VcFM/logger"
)

// Reactor 消费传输层事件：流结束时按规则推进队列，
// 队列耗尽或通话终止时拆除房间状态。
// 同一房间的事件按到达顺序依次处理，不并发。
type Reactor struct {
	store     *playlist.Store
	ctrl      *Controller
	presenter Presenter
}

// NewReactor 创建事件反应器
func NewReactor(store *playlist.Store, ctrl *Controller, presenter Presenter) *Reactor {
	return &Reactor{store: store, ctrl: ctrl, presenter: presenter}
}

// Run 循环消费事件直到 ctx 取消或通道关闭
func (r *Reactor) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.dispatch(ctx, ev)
		}
	}
}

func (r *Reactor) dispatch(ctx context.Context, ev Event) {
	var err error
	switch ev.Kind {
	case EventStreamEnd:
		err = r.OnStreamEnd(ctx, ev.Room)
	case EventKicked:
		err = r.OnKicked(ctx, ev.Room)
	case EventCallClosed:
		err = r.OnCallClosed(ctx, ev.Room)
	}
	if err != nil {
		logger.Error("处理传输层事件失败",
			logger.String("kind", string(ev.Kind)),
			logger.String("room", ev.Room),
			logger.ErrorField(err))
	}
}

// OnStreamEnd 当前流播放结束：计算下一首并切换；
// 没有下一首时删除播放器消息、清空房间状态并退出通话。
func (r *Reactor) OnStreamEnd(ctx context.Context, room string) error {
	entries, err := r.store.Entries(ctx, room)
	if err != nil {
		return err
	}
	now, err := r.store.Now(ctx, room)
	if err != nil {
		return err
	}
	rule, err := r.store.Rule(ctx, room)
	if err != nil {
		return err
	}

	current := ""
	if now != "" {
		if full, err := r.store.FullEntry(ctx, room, now); err == nil {
			current = full
		}
	}

	next, ok := playlist.Next(entries, current, rule, false)
	if !ok {
		r.deletePlayerMessage(ctx, room)
		if err := r.store.Clear(ctx, room); err != nil {
			return err
		}
		r.ctrl.LeaveQuietly(ctx, room)
		logger.Info("队列播放完毕，房间已清理", logger.String("room", room))
		return nil
	}

	// 单曲循环回到自身时做一次干净的重新入会，避免热切换到同一文件
	asNewJoin := next == current
	if err := r.ctrl.ChangeStream(ctx, room, next, 0, asNewJoin); err != nil {
		return err
	}

	if err := r.presenter.RefreshPlayer(ctx, room); err != nil {
		logger.Warn("刷新播放器展示失败", logger.String("room", room), logger.ErrorField(err))
	}
	return nil
}

// OnKicked 推流端被移出通话：无条件清空房间状态（重复调用安全）
func (r *Reactor) OnKicked(ctx context.Context, room string) error {
	return r.store.Clear(ctx, room)
}

// OnCallClosed 通话被关闭：删除播放器消息后清空房间状态
func (r *Reactor) OnCallClosed(ctx context.Context, room string) error {
	r.deletePlayerMessage(ctx, room)
	return r.store.Clear(ctx, room)
}

func (r *Reactor) deletePlayerMessage(ctx context.Context, room string) {
	ref, err := r.store.PlayerMessage(ctx, room)
	if err != nil || ref == "" {
		return
	}
	if err := r.presenter.DeletePlayer(ctx, room, ref); err != nil {
		logger.Debug("删除播放器消息失败（忽略）", logger.String("room", room), logger.ErrorField(err))
	}
	if err := r.store.ClearPlayerMessage(ctx, room); err != nil {
		logger.Warn("清除播放器消息引用失败", logger.String("room", room), logger.ErrorField(err))
	}
}
