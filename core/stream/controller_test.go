package stream

import (
	"context"
	"errors"
	"sync"
	"testing"

	"VcFM/core/playlist"
	"VcFM/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// fakeTransport 记录调用序列，播放进度按脚本依次返回
type fakeTransport struct {
	mu      sync.Mutex
	joins   int
	leaves  int
	changes int
	pauses  int
	resumes int

	joinErr   error
	played    []float64
	playedIdx int

	lastSpec SourceSpec
	events   chan Event
}

func newFakeTransport(played ...float64) *fakeTransport {
	return &fakeTransport{played: played, events: make(chan Event, 16)}
}

func (t *fakeTransport) Join(ctx context.Context, room string, source MediaSource) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.joinErr != nil {
		return t.joinErr
	}
	t.joins++
	t.lastSpec = source.(*LocalSource).Spec
	return nil
}

func (t *fakeTransport) Leave(ctx context.Context, room string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaves++
	return nil
}

func (t *fakeTransport) ChangeSource(ctx context.Context, room string, source MediaSource) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.changes++
	t.lastSpec = source.(*LocalSource).Spec
	return nil
}

func (t *fakeTransport) Pause(ctx context.Context, room string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pauses++
	return nil
}

func (t *fakeTransport) Resume(ctx context.Context, room string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resumes++
	return nil
}

func (t *fakeTransport) PlayedTime(ctx context.Context, room string) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.played) == 0 {
		return 0, nil
	}
	v := t.played[t.playedIdx]
	if t.playedIdx < len(t.played)-1 {
		t.playedIdx++
	}
	return v, nil
}

func (t *fakeTransport) ActiveRooms(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (t *fakeTransport) Events() <-chan Event {
	return t.events
}

func newStreamTestStore(t *testing.T) *playlist.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return playlist.NewStore(client, "testfm")
}

func queueTrack(t *testing.T, store *playlist.Store, room, id string, extra map[string]string) (string, string) {
	t.Helper()
	attrs := map[string]string{
		model.AttrNamespace: model.NamespaceProvider,
		model.AttrID:        id,
		model.AttrKind:      string(model.KindAudio),
		model.AttrTitle:     "Song" + id,
		model.AttrDuration:  "180",
		model.AttrPath:      "/tmp/missing-" + id + ".mp3",
	}
	for k, v := range extra {
		attrs[k] = v
	}
	_, key, err := store.Add(context.Background(), room, attrs)
	if err != nil {
		t.Fatal(err)
	}
	entry, err := store.FullEntry(context.Background(), room, key)
	if err != nil {
		t.Fatal(err)
	}
	return key, entry
}

func newTestController(store *playlist.Store, transport Transport) *Controller {
	return NewController(store, transport, LocalBuilder{}, 0, 0, 3)
}

func TestChangeStreamHotSwap(t *testing.T) {
	store := newStreamTestStore(t)
	transport := newFakeTransport(12)
	ctrl := newTestController(store, transport)
	ctx := context.Background()

	key, entry := queueTrack(t, store, "room1", "1", nil)

	if err := ctrl.ChangeStream(ctx, "room1", entry, 0, false); err != nil {
		t.Fatalf("ChangeStream: %v", err)
	}
	if transport.changes != 1 || transport.joins != 0 {
		t.Errorf("热切换应走 ChangeSource: changes=%d joins=%d", transport.changes, transport.joins)
	}
	if now, _ := store.Now(ctx, "room1"); now != key {
		t.Errorf("Now = %q, want %q", now, key)
	}
	if status, _ := store.Status(ctx, "room1"); status != model.StatusPlay {
		t.Errorf("Status = %q, want play", status)
	}
}

func TestChangeStreamNewJoin(t *testing.T) {
	store := newStreamTestStore(t)
	transport := newFakeTransport(12)
	ctrl := newTestController(store, transport)

	_, entry := queueTrack(t, store, "room1", "1", nil)

	if err := ctrl.ChangeStream(context.Background(), "room1", entry, 0, true); err != nil {
		t.Fatalf("ChangeStream: %v", err)
	}
	if transport.leaves != 1 || transport.joins != 1 || transport.changes != 0 {
		t.Errorf("重新入会应先退出再入会: leaves=%d joins=%d changes=%d",
			transport.leaves, transport.joins, transport.changes)
	}
	// 普通起播也携带曲目时长，传输层据此判定自然播完
	if transport.lastSpec.DurationSeconds != 180 {
		t.Errorf("DurationSeconds = %v, want 180", transport.lastSpec.DurationSeconds)
	}
	if transport.lastSpec.SeekSeconds != 0 {
		t.Errorf("SeekSeconds = %d, want 0", transport.lastSpec.SeekSeconds)
	}
}

func TestChangeStreamJoinRejected(t *testing.T) {
	store := newStreamTestStore(t)
	transport := newFakeTransport(12)
	transport.joinErr = ErrNoActiveCall
	ctrl := newTestController(store, transport)

	_, entry := queueTrack(t, store, "room1", "1", nil)

	err := ctrl.ChangeStream(context.Background(), "room1", entry, 0, true)
	if !errors.Is(err, ErrNoActiveCall) {
		t.Errorf("入会被拒应原样上抛, got %v", err)
	}
}

func TestChangeStreamTrackGone(t *testing.T) {
	store := newStreamTestStore(t)
	ctrl := newTestController(store, newFakeTransport(12))

	err := ctrl.ChangeStream(context.Background(), "room1", "1-deadbeef", 0, false)
	if !errors.Is(err, ErrTrackGone) {
		t.Errorf("缺失曲目数据应返回 ErrTrackGone, got %v", err)
	}
}

func TestChangeStreamResetsSeekOnResume(t *testing.T) {
	store := newStreamTestStore(t)
	ctrl := newTestController(store, newFakeTransport(12))
	ctx := context.Background()

	key, entry := queueTrack(t, store, "room1", "1", map[string]string{model.AttrSeek: "+30-10"})

	if err := ctrl.ChangeStream(ctx, "room1", entry, 0, false); err != nil {
		t.Fatalf("ChangeStream: %v", err)
	}
	attrs, _ := store.Codec().Extract(ctx, key)
	if _, ok := attrs[model.AttrSeek]; ok {
		t.Error("普通续播应重置累计跳转偏移")
	}
}

func TestChangeStreamKeepsSeekOnExplicitOffset(t *testing.T) {
	store := newStreamTestStore(t)
	transport := newFakeTransport(40)
	ctrl := newTestController(store, transport)
	ctx := context.Background()

	key, entry := queueTrack(t, store, "room1", "1", map[string]string{model.AttrSeek: "+30"})

	if err := ctrl.ChangeStream(ctx, "room1", entry, 30, false); err != nil {
		t.Fatalf("ChangeStream: %v", err)
	}
	attrs, _ := store.Codec().Extract(ctx, key)
	if attrs[model.AttrSeek] != "+30" {
		t.Errorf("显式跳转应保留偏移表达式, got %q", attrs[model.AttrSeek])
	}
	if transport.lastSpec.SeekSeconds != 30 {
		t.Errorf("SeekSeconds = %d, want 30", transport.lastSpec.SeekSeconds)
	}
	if transport.lastSpec.DurationSeconds != 180 {
		t.Errorf("DurationSeconds = %v, want 180", transport.lastSpec.DurationSeconds)
	}
}

func TestChangeStreamZeroDurationRetry(t *testing.T) {
	store := newStreamTestStore(t)
	transport := newFakeTransport(0, 7)
	ctrl := newTestController(store, transport)

	_, entry := queueTrack(t, store, "room1", "1", nil)

	if err := ctrl.ChangeStream(context.Background(), "room1", entry, 0, false); err != nil {
		t.Fatalf("ChangeStream: %v", err)
	}
	if transport.changes != 2 {
		t.Errorf("首次零进度应重试一次: changes=%d, want 2", transport.changes)
	}
	if transport.lastSpec.SeekSeconds != 2 {
		t.Errorf("重试应按 2 秒偏移起播, SeekSeconds=%d", transport.lastSpec.SeekSeconds)
	}
}

func TestChangeStreamRetryExhausted(t *testing.T) {
	store := newStreamTestStore(t)
	transport := newFakeTransport(0)
	ctrl := newTestController(store, transport)

	_, entry := queueTrack(t, store, "room1", "1", nil)

	err := ctrl.ChangeStream(context.Background(), "room1", entry, 0, false)
	if !errors.Is(err, ErrJoinFailed) {
		t.Fatalf("重试耗尽应返回 ErrJoinFailed, got %v", err)
	}
	if transport.changes != 3 {
		t.Errorf("重试次数应有上限: changes=%d, want 3", transport.changes)
	}
}

func TestLeaveQuietlyIdempotent(t *testing.T) {
	store := newStreamTestStore(t)
	transport := newFakeTransport(12)
	ctrl := newTestController(store, transport)
	ctx := context.Background()

	// 未入会时也不报错
	ctrl.LeaveQuietly(ctx, "room1")
	ctrl.LeaveQuietly(ctx, "room1")
	if transport.leaves != 2 {
		t.Errorf("leaves = %d, want 2", transport.leaves)
	}
}
