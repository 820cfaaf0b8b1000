package stream

import (
	"context"
	"errors"

	"VcFM/model"
)

// ErrNoActiveCall 房间内没有进行中的通话，入会被拒绝
var ErrNoActiveCall = errors.New("no active call")

// EventKind 传输层事件类型
type EventKind string

const (
	EventStreamEnd  EventKind = "stream_end"  // 当前媒体播放结束
	EventKicked     EventKind = "kicked"      // 推流端被移出通话
	EventCallClosed EventKind = "call_closed" // 房间通话被关闭
)

// Event 传输层上报的房间事件
type Event struct {
	Kind EventKind
	Room string
}

// MediaSource 传输层可消费的流源句柄，由 SourceBuilder 构造，引擎不解释其内容
type MediaSource interface{}

// SourceSpec 构造流源所需的参数。
// SeekSeconds 大于 0 时要求从该偏移起播，并在 DurationSeconds 处截断。
type SourceSpec struct {
	Path            string
	Kind            model.MediaKind
	SeekSeconds     int
	DurationSeconds float64
}

// SourceBuilder 把本地媒体文件包装成传输层的流源
type SourceBuilder interface {
	Build(spec SourceSpec) (MediaSource, error)
}

// Transport 外部推流传输层的契约。
// 所有调用都可能挂起，必须接受 context；Leave 对未入会的房间应当幂等。
type Transport interface {
	Join(ctx context.Context, room string, source MediaSource) error
	Leave(ctx context.Context, room string) error
	ChangeSource(ctx context.Context, room string, source MediaSource) error
	Pause(ctx context.Context, room string) error
	Resume(ctx context.Context, room string) error
	// PlayedTime 返回已播放秒数，尚未出流时返回 0
	PlayedTime(ctx context.Context, room string) (float64, error)
	// ActiveRooms 返回当前有活跃推流的房间列表
	ActiveRooms(ctx context.Context) ([]string, error)
	// Events 返回事件通道，由传输层在流结束/被踢出/通话关闭时写入
	Events() <-chan Event
}

// Presenter 播放器界面的外部协作方：删除旧的播放器消息、刷新当前展示
type Presenter interface {
	DeletePlayer(ctx context.Context, room string, ref string) error
	RefreshPlayer(ctx context.Context, room string) error
}
