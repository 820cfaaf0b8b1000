package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"VcFM/logger"
)

var errUnsupportedSource = errors.New("unsupported media source")

// LocalSource 本地传输层的流源：直接携带构造参数
type LocalSource struct {
	Spec SourceSpec
}

// LocalBuilder 本地传输层的流源构造器
type LocalBuilder struct{}

// Build 实现 SourceBuilder
func (LocalBuilder) Build(spec SourceSpec) (MediaSource, error) {
	return &LocalSource{Spec: spec}, nil
}

type localSession struct {
	source    *LocalSource
	startedAt time.Time
	paused    bool
	pausedAt  time.Time
	pausedFor time.Duration
	ended     bool
}

// elapsed 已播放秒数（扣除暂停时间，叠加起播偏移）
func (s *localSession) elapsed(now time.Time) float64 {
	pausedFor := s.pausedFor
	if s.paused {
		pausedFor += now.Sub(s.pausedAt)
	}
	played := now.Sub(s.startedAt) - pausedFor
	return played.Seconds() + float64(s.source.Spec.SeekSeconds)
}

// LocalTransport 进程内的传输层实现：不做真实推流，
// 按时钟推进播放进度，曲目时长耗尽时上报流结束事件。
// 用于联调与没有外部推流端的部署形态。
type LocalTransport struct {
	mu       sync.Mutex
	sessions map[string]*localSession
	events   chan Event
	interval time.Duration
}

// NewLocalTransport 创建本地传输层
func NewLocalTransport() *LocalTransport {
	return &LocalTransport{
		sessions: make(map[string]*localSession),
		events:   make(chan Event, 64),
		interval: time.Second,
	}
}

// Run 周期扫描会话，时长耗尽的会话上报流结束。阻塞直到 ctx 取消。
func (t *LocalTransport) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.sweep(now)
		}
	}
}

func (t *LocalTransport) sweep(now time.Time) {
	t.mu.Lock()
	var ended []string
	for room, sess := range t.sessions {
		if sess.paused || sess.ended {
			continue
		}
		duration := sess.source.Spec.DurationSeconds
		if duration > 0 && sess.elapsed(now) >= duration {
			// 流结束但保持在会，等待下一次切流或显式退出
			sess.ended = true
			ended = append(ended, room)
		}
	}
	t.mu.Unlock()

	for _, room := range ended {
		logger.Debug("本地会话播放结束", logger.String("room", room))
		t.events <- Event{Kind: EventStreamEnd, Room: room}
	}
}

// Join 实现 Transport
func (t *LocalTransport) Join(ctx context.Context, room string, source MediaSource) error {
	src, ok := source.(*LocalSource)
	if !ok {
		return errUnsupportedSource
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[room] = &localSession{source: src, startedAt: time.Now()}
	return nil
}

// Leave 实现 Transport，对未入会的房间幂等
func (t *LocalTransport) Leave(ctx context.Context, room string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, room)
	return nil
}

// ChangeSource 实现 Transport，要求房间已有会话
func (t *LocalTransport) ChangeSource(ctx context.Context, room string, source MediaSource) error {
	src, ok := source.(*LocalSource)
	if !ok {
		return errUnsupportedSource
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[room]; !exists {
		return ErrNoActiveCall
	}
	t.sessions[room] = &localSession{source: src, startedAt: time.Now()}
	return nil
}

// Pause 实现 Transport
func (t *LocalTransport) Pause(ctx context.Context, room string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, ok := t.sessions[room]
	if !ok {
		return ErrNoActiveCall
	}
	if !sess.paused {
		sess.paused = true
		sess.pausedAt = time.Now()
	}
	return nil
}

// Resume 实现 Transport
func (t *LocalTransport) Resume(ctx context.Context, room string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, ok := t.sessions[room]
	if !ok {
		return ErrNoActiveCall
	}
	if sess.paused {
		sess.pausedFor += time.Since(sess.pausedAt)
		sess.paused = false
	}
	return nil
}

// PlayedTime 实现 Transport
func (t *LocalTransport) PlayedTime(ctx context.Context, room string) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, ok := t.sessions[room]
	if !ok {
		return 0, ErrNoActiveCall
	}
	if sess.ended {
		return sess.source.Spec.DurationSeconds, nil
	}
	return sess.elapsed(time.Now()), nil
}

// ActiveRooms 实现 Transport
func (t *LocalTransport) ActiveRooms(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rooms := make([]string, 0, len(t.sessions))
	for room := range t.sessions {
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// Events 实现 Transport
func (t *LocalTransport) Events() <-chan Event {
	return t.events
}
