package stream

import (
	"context"
	"sync"
	"testing"

	"VcFM/model"
)

// fakePresenter 记录展示协作方收到的调用
type fakePresenter struct {
	mu        sync.Mutex
	deleted   []string
	refreshed []string
}

func (p *fakePresenter) DeletePlayer(ctx context.Context, room string, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, ref)
	return nil
}

func (p *fakePresenter) RefreshPlayer(ctx context.Context, room string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshed = append(p.refreshed, room)
	return nil
}

func TestOnStreamEndAdvancesQueue(t *testing.T) {
	store := newStreamTestStore(t)
	transport := newFakeTransport(12)
	ctrl := newTestController(store, transport)
	presenter := &fakePresenter{}
	reactor := NewReactor(store, ctrl, presenter)
	ctx := context.Background()

	k1, _ := queueTrack(t, store, "room1", "1", nil)
	k2, _ := queueTrack(t, store, "room1", "2", nil)
	store.Play(ctx, "room1", k1)
	store.SetRule(ctx, "room1", model.RuleQueue)

	if err := reactor.OnStreamEnd(ctx, "room1"); err != nil {
		t.Fatalf("OnStreamEnd: %v", err)
	}

	if now, _ := store.Now(ctx, "room1"); now != k2 {
		t.Errorf("Now = %q, want %q", now, k2)
	}
	if transport.changes != 1 {
		t.Errorf("推进应走热切换: changes=%d", transport.changes)
	}
	if len(presenter.refreshed) != 1 {
		t.Errorf("推进后应刷新展示: refreshed=%v", presenter.refreshed)
	}
}

func TestOnStreamEndRepeatWrapsToHead(t *testing.T) {
	store := newStreamTestStore(t)
	transport := newFakeTransport(12)
	ctrl := newTestController(store, transport)
	reactor := NewReactor(store, ctrl, &fakePresenter{})
	ctx := context.Background()

	k1, _ := queueTrack(t, store, "room1", "1", nil)
	k2, _ := queueTrack(t, store, "room1", "2", nil)
	store.Play(ctx, "room1", k2)
	store.SetRule(ctx, "room1", model.RuleRepeat)

	if err := reactor.OnStreamEnd(ctx, "room1"); err != nil {
		t.Fatalf("OnStreamEnd: %v", err)
	}
	if now, _ := store.Now(ctx, "room1"); now != k1 {
		t.Errorf("repeat 队尾应回绕到队首: now=%q want %q", now, k1)
	}
}

func TestOnStreamEndRepeatOneRejoins(t *testing.T) {
	store := newStreamTestStore(t)
	transport := newFakeTransport(12)
	ctrl := newTestController(store, transport)
	reactor := NewReactor(store, ctrl, &fakePresenter{})
	ctx := context.Background()

	k1, _ := queueTrack(t, store, "room1", "1", nil)
	store.Play(ctx, "room1", k1)
	store.SetRule(ctx, "room1", model.RuleRepeatOne)

	if err := reactor.OnStreamEnd(ctx, "room1"); err != nil {
		t.Fatalf("OnStreamEnd: %v", err)
	}
	// 回到同一曲目时走干净的重新入会
	if transport.joins != 1 || transport.changes != 0 {
		t.Errorf("单曲循环应重新入会: joins=%d changes=%d", transport.joins, transport.changes)
	}
	if now, _ := store.Now(ctx, "room1"); now != k1 {
		t.Errorf("Now = %q, want %q", now, k1)
	}
}

func TestOnStreamEndQueueExhausted(t *testing.T) {
	store := newStreamTestStore(t)
	transport := newFakeTransport(12)
	ctrl := newTestController(store, transport)
	presenter := &fakePresenter{}
	reactor := NewReactor(store, ctrl, presenter)
	ctx := context.Background()

	k1, _ := queueTrack(t, store, "room1", "1", nil)
	store.Play(ctx, "room1", k1)
	store.SetRule(ctx, "room1", model.RuleQueue)
	store.SetPlayerMessage(ctx, "room1", "msg-1")

	if err := reactor.OnStreamEnd(ctx, "room1"); err != nil {
		t.Fatalf("OnStreamEnd: %v", err)
	}

	if entries, _ := store.Entries(ctx, "room1"); len(entries) != 0 {
		t.Errorf("队列应被清空, got %v", entries)
	}
	if now, _ := store.Now(ctx, "room1"); now != "" {
		t.Errorf("NowPlaying 应被清除, got %q", now)
	}
	if transport.leaves != 1 {
		t.Errorf("应退出通话: leaves=%d", transport.leaves)
	}
	if len(presenter.deleted) != 1 || presenter.deleted[0] != "msg-1" {
		t.Errorf("应删除播放器消息: deleted=%v", presenter.deleted)
	}
	if ref, _ := store.PlayerMessage(ctx, "room1"); ref != "" {
		t.Errorf("播放器引用应被清除, got %q", ref)
	}
}

func TestOnKickedClearsState(t *testing.T) {
	store := newStreamTestStore(t)
	reactor := NewReactor(store, newTestController(store, newFakeTransport(12)), &fakePresenter{})
	ctx := context.Background()

	k1, _ := queueTrack(t, store, "room1", "1", nil)
	store.Play(ctx, "room1", k1)

	if err := reactor.OnKicked(ctx, "room1"); err != nil {
		t.Fatalf("OnKicked: %v", err)
	}
	if entries, _ := store.Entries(ctx, "room1"); len(entries) != 0 {
		t.Errorf("队列应被清空, got %v", entries)
	}

	// 重复触发是安全空操作
	if err := reactor.OnKicked(ctx, "room1"); err != nil {
		t.Errorf("重复 OnKicked: %v", err)
	}
}

func TestOnCallClosedDeletesPlayer(t *testing.T) {
	store := newStreamTestStore(t)
	presenter := &fakePresenter{}
	reactor := NewReactor(store, newTestController(store, newFakeTransport(12)), presenter)
	ctx := context.Background()

	k1, _ := queueTrack(t, store, "room1", "1", nil)
	store.Play(ctx, "room1", k1)
	store.SetPlayerMessage(ctx, "room1", "msg-9")

	if err := reactor.OnCallClosed(ctx, "room1"); err != nil {
		t.Fatalf("OnCallClosed: %v", err)
	}
	if len(presenter.deleted) != 1 {
		t.Errorf("应删除播放器消息: %v", presenter.deleted)
	}
	if entries, _ := store.Entries(ctx, "room1"); len(entries) != 0 {
		t.Errorf("队列应被清空, got %v", entries)
	}
}

func TestReactorRunDispatch(t *testing.T) {
	store := newStreamTestStore(t)
	transport := newFakeTransport(12)
	reactor := NewReactor(store, newTestController(store, transport), &fakePresenter{})
	ctx, cancel := context.WithCancel(context.Background())

	k1, _ := queueTrack(t, store, "room1", "1", nil)
	store.Play(ctx, "room1", k1)

	events := make(chan Event, 1)
	done := make(chan struct{})
	go func() {
		reactor.Run(ctx, events)
		close(done)
	}()

	events <- Event{Kind: EventKicked, Room: "room1"}
	close(events)
	<-done
	cancel()

	if entries, _ := store.Entries(context.Background(), "room1"); len(entries) != 0 {
		t.Errorf("事件应被分发处理, 队列仍有 %v", entries)
	}
}
