package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"VcFM/core/access"
	"VcFM/core/media"
	"VcFM/core/playlist"
	"VcFM/core/provider"
	"VcFM/core/stream"
	"VcFM/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// fakeTransport 记录调用并维护活跃房间集合
type fakeTransport struct {
	mu      sync.Mutex
	active  map[string]bool
	joins   int
	changes int
	leaves  int
	pauses  int
	resumes int

	played   float64
	lastSpec stream.SourceSpec
	events   chan stream.Event
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		active: make(map[string]bool),
		played: 60,
		events: make(chan stream.Event, 16),
	}
}

func (t *fakeTransport) Join(ctx context.Context, room string, source stream.MediaSource) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.joins++
	t.active[room] = true
	t.lastSpec = source.(*stream.LocalSource).Spec
	return nil
}

func (t *fakeTransport) Leave(ctx context.Context, room string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaves++
	delete(t.active, room)
	return nil
}

func (t *fakeTransport) ChangeSource(ctx context.Context, room string, source stream.MediaSource) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active[room] {
		return stream.ErrNoActiveCall
	}
	t.changes++
	t.lastSpec = source.(*stream.LocalSource).Spec
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
	return t.played, nil
}

func (t *fakeTransport) ActiveRooms(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rooms := make([]string, 0, len(t.active))
	for room := range t.active {
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (t *fakeTransport) Events() <-chan stream.Event {
	return t.events
}

// fakeRoomRepo 只认一个注册房间，任何用户都是操作员
type fakeRoomRepo struct{ room string }

func (r *fakeRoomRepo) Register(ctx context.Context, room *model.RegisteredRoom) error { return nil }
func (r *fakeRoomRepo) GetByID(ctx context.Context, id string) (*model.RegisteredRoom, error) {
	if id != r.room {
		return nil, nil
	}
	return &model.RegisteredRoom{ID: id}, nil
}
func (r *fakeRoomRepo) Disable(ctx context.Context, id string) error { return nil }
func (r *fakeRoomRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	return id == r.room, nil
}
func (r *fakeRoomRepo) ListActive(ctx context.Context) ([]*model.RegisteredRoom, error) {
	return nil, nil
}
func (r *fakeRoomRepo) AddOperator(ctx context.Context, op *model.RoomOperator) error { return nil }
func (r *fakeRoomRepo) GetOperator(ctx context.Context, roomID string, userID int64) (*model.RoomOperator, error) {
	return &model.RoomOperator{RoomID: roomID, UserID: userID}, nil
}
func (r *fakeRoomRepo) RemoveOperator(ctx context.Context, roomID string, userID int64) error {
	return nil
}
func (r *fakeRoomRepo) ListOperators(ctx context.Context, roomID string) ([]*model.RoomOperator, error) {
	return nil, nil
}

type testEnv struct {
	engine    *Engine
	store     *playlist.Store
	transport *fakeTransport
}

func newTestEnv(t *testing.T, prov *provider.Client, mediaDir string) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := playlist.NewStore(client, "testfm")
	transport := newFakeTransport()
	ctrl := stream.NewController(store, transport, stream.LocalBuilder{}, 0, 0, 3)
	pipeline := access.NewPipeline(&fakeRoomRepo{room: "room1"}, transport)
	fetcher := media.NewFetcher(mediaDir)

	return &testEnv{
		engine:    NewEngine(store, ctrl, transport, prov, fetcher, pipeline),
		store:     store,
		transport: transport,
	}
}

// queueAndPlay 直接把曲目写进存储并置为播放中，绕过外部搜索服务
func (e *testEnv) queueAndPlay(t *testing.T, room string, ids []string, nowID string) map[string]string {
	t.Helper()
	ctx := context.Background()
	keys := make(map[string]string)

	for _, id := range ids {
		attrs := map[string]string{
			model.AttrNamespace: model.NamespaceProvider,
			model.AttrID:        id,
			model.AttrKind:      string(model.KindAudio),
			model.AttrTitle:     "Song" + id,
			model.AttrDuration:  "180",
		}
		_, key, err := e.store.Add(ctx, room, attrs)
		if err != nil {
			t.Fatal(err)
		}
		keys[id] = key
	}

	if nowID != "" {
		if err := e.store.Play(ctx, room, keys[nowID]); err != nil {
			t.Fatal(err)
		}
		e.transport.active[room] = true
	}
	return keys
}

func TestPlayNext(t *testing.T) {
	env := newTestEnv(t, nil, t.TempDir())
	ctx := context.Background()

	keys := env.queueAndPlay(t, "room1", []string{"1", "2"}, "1")
	env.store.SetRule(ctx, "room1", model.RuleQueue)

	if err := env.engine.PlayNext(ctx, "room1", 100); err != nil {
		t.Fatalf("PlayNext: %v", err)
	}
	if now, _ := env.store.Now(ctx, "room1"); now != keys["2"] {
		t.Errorf("Now = %q, want %q", now, keys["2"])
	}

	// 队尾顺序规则：强制切换也无处可去
	if err := env.engine.PlayNext(ctx, "room1", 100); !errors.Is(err, ErrNothingNext) {
		t.Errorf("队尾 PlayNext = %v, want ErrNothingNext", err)
	}
}

func TestPlayNextForcesThroughRepeatOne(t *testing.T) {
	env := newTestEnv(t, nil, t.TempDir())
	ctx := context.Background()

	keys := env.queueAndPlay(t, "room1", []string{"1", "2"}, "1")
	env.store.SetRule(ctx, "room1", model.RuleRepeatOne)

	if err := env.engine.PlayNext(ctx, "room1", 100); err != nil {
		t.Fatalf("PlayNext: %v", err)
	}
	if now, _ := env.store.Now(ctx, "room1"); now != keys["2"] {
		t.Errorf("单曲循环下强制切换应推进: now=%q want %q", now, keys["2"])
	}
}

func TestPlayPrevious(t *testing.T) {
	env := newTestEnv(t, nil, t.TempDir())
	ctx := context.Background()

	keys := env.queueAndPlay(t, "room1", []string{"1", "2"}, "2")
	env.store.SetRule(ctx, "room1", model.RuleQueue)

	if err := env.engine.PlayPrevious(ctx, "room1", 100); err != nil {
		t.Fatalf("PlayPrevious: %v", err)
	}
	if now, _ := env.store.Now(ctx, "room1"); now != keys["1"] {
		t.Errorf("Now = %q, want %q", now, keys["1"])
	}

	// 队首且非 repeat：不回绕
	if err := env.engine.PlayPrevious(ctx, "room1", 100); !errors.Is(err, ErrNothingPrevious) {
		t.Errorf("队首 PlayPrevious = %v, want ErrNothingPrevious", err)
	}
}

func TestPauseResume(t *testing.T) {
	env := newTestEnv(t, nil, t.TempDir())
	ctx := context.Background()

	env.queueAndPlay(t, "room1", []string{"1"}, "1")

	if err := env.engine.Pause(ctx, "room1", 100); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if env.transport.pauses != 1 {
		t.Errorf("传输层应被暂停: pauses=%d", env.transport.pauses)
	}
	if status, _ := env.store.Status(ctx, "room1"); status != model.StatusPause {
		t.Errorf("Status = %q, want pause", status)
	}

	if err := env.engine.Resume(ctx, "room1", 100); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if status, _ := env.store.Status(ctx, "room1"); status != model.StatusPlay {
		t.Errorf("Status = %q, want play", status)
	}
}

func TestStop(t *testing.T) {
	env := newTestEnv(t, nil, t.TempDir())
	ctx := context.Background()

	env.queueAndPlay(t, "room1", []string{"1", "2"}, "1")

	if err := env.engine.Stop(ctx, "room1", 100); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if entries, _ := env.store.Entries(ctx, "room1"); len(entries) != 0 {
		t.Errorf("队列应被清空, got %v", entries)
	}
	if env.transport.leaves != 1 {
		t.Errorf("应退出通话: leaves=%d", env.transport.leaves)
	}
}

func TestSeekBy(t *testing.T) {
	env := newTestEnv(t, nil, t.TempDir())
	ctx := context.Background()

	keys := env.queueAndPlay(t, "room1", []string{"1"}, "1")
	env.transport.played = 60

	target, err := env.engine.SeekBy(ctx, "room1", 100, 30)
	if err != nil {
		t.Fatalf("SeekBy: %v", err)
	}
	if target != 90 {
		t.Errorf("target = %d, want 90", target)
	}
	attrs, _ := env.store.Codec().Extract(ctx, keys["1"])
	if attrs[model.AttrSeek] != "+30" {
		t.Errorf("seek 表达式 = %q, want %q", attrs[model.AttrSeek], "+30")
	}
	if env.transport.lastSpec.SeekSeconds != 90 {
		t.Errorf("切流偏移 = %d, want 90", env.transport.lastSpec.SeekSeconds)
	}

	// 偏移表达式逐次追加并整体求和
	env.transport.played = 60
	target, err = env.engine.SeekBy(ctx, "room1", 100, -20)
	if err != nil {
		t.Fatalf("SeekBy second: %v", err)
	}
	if target != 70 {
		t.Errorf("target = %d, want 70 (60+30-20)", target)
	}
	attrs, _ = env.store.Codec().Extract(ctx, keys["1"])
	if attrs[model.AttrSeek] != "+30-20" {
		t.Errorf("seek 表达式 = %q, want %q", attrs[model.AttrSeek], "+30-20")
	}
}

func TestSeekByOutOfRange(t *testing.T) {
	env := newTestEnv(t, nil, t.TempDir())
	ctx := context.Background()

	env.queueAndPlay(t, "room1", []string{"1"}, "1")

	env.transport.played = 5
	if _, err := env.engine.SeekBy(ctx, "room1", 100, -2); !errors.Is(err, ErrSeekOutOfRange) {
		t.Errorf("距起点不足 10 秒应拒绝, got %v", err)
	}

	env.transport.played = 160
	if _, err := env.engine.SeekBy(ctx, "room1", 100, 15); !errors.Is(err, ErrSeekOutOfRange) {
		t.Errorf("距终点不足 10 秒应拒绝, got %v", err)
	}
}

func TestPlayForce(t *testing.T) {
	env := newTestEnv(t, nil, t.TempDir())
	ctx := context.Background()

	keys := env.queueAndPlay(t, "room1", []string{"1", "2", "3"}, "1")

	if err := env.engine.PlayForce(ctx, "room1", 100, keys["3"]); err != nil {
		t.Fatalf("PlayForce: %v", err)
	}
	if now, _ := env.store.Now(ctx, "room1"); now != keys["3"] {
		t.Errorf("Now = %q, want %q", now, keys["3"])
	}

	if err := env.engine.PlayForce(ctx, "room1", 100, "deadbeef"); !errors.Is(err, playlist.ErrNotQueued) {
		t.Errorf("不在队列的曲目应返回 ErrNotQueued, got %v", err)
	}
}

func TestDeleteEntry(t *testing.T) {
	env := newTestEnv(t, nil, t.TempDir())
	ctx := context.Background()

	keys := env.queueAndPlay(t, "room1", []string{"1", "2", "3"}, "1")

	// 删除非当前曲目：队列缩短，播放不受影响
	if err := env.engine.DeleteEntry(ctx, "room1", 100, keys["3"]); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if entries, _ := env.store.Entries(ctx, "room1"); len(entries) != 2 {
		t.Errorf("队列长度 = %d, want 2", len(entries))
	}
	if now, _ := env.store.Now(ctx, "room1"); now != keys["1"] {
		t.Errorf("当前曲目不应变化: %q", now)
	}

	// 删除当前曲目：先强制推进再删除
	env.store.SetRule(ctx, "room1", model.RuleQueue)
	if err := env.engine.DeleteEntry(ctx, "room1", 100, keys["1"]); err != nil {
		t.Fatalf("DeleteEntry current: %v", err)
	}
	if now, _ := env.store.Now(ctx, "room1"); now != keys["2"] {
		t.Errorf("Now = %q, want %q", now, keys["2"])
	}
}

func TestDeleteLastEntryTearsDown(t *testing.T) {
	env := newTestEnv(t, nil, t.TempDir())
	ctx := context.Background()

	keys := env.queueAndPlay(t, "room1", []string{"1"}, "1")
	env.store.SetRule(ctx, "room1", model.RuleQueue)

	if err := env.engine.DeleteEntry(ctx, "room1", 100, keys["1"]); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if now, _ := env.store.Now(ctx, "room1"); now != "" {
		t.Errorf("NowPlaying 应被清除, got %q", now)
	}
	if env.transport.leaves == 0 {
		t.Error("应退出通话")
	}
}

func TestCycleRule(t *testing.T) {
	env := newTestEnv(t, nil, t.TempDir())
	ctx := context.Background()

	rule, err := env.engine.CycleRule(ctx, "room1", 100)
	if err != nil {
		t.Fatalf("CycleRule: %v", err)
	}
	// 未设置规则视同 queue 的下一个
	if rule != model.RuleRepeat {
		t.Errorf("rule = %q, want repeat", rule)
	}
	if got, _ := env.store.Rule(ctx, "room1"); got != model.RuleRepeat {
		t.Errorf("存储中的规则 = %q, want repeat", got)
	}
}

func TestQueueSnapshot(t *testing.T) {
	env := newTestEnv(t, nil, t.TempDir())
	ctx := context.Background()

	keys := env.queueAndPlay(t, "room1", []string{"1", "2"}, "2")

	items, err := env.engine.QueueSnapshot(ctx, "room1")
	if err != nil {
		t.Fatalf("QueueSnapshot: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("快照长度 = %d, want 2", len(items))
	}
	if items[0].Position != 1 || items[0].Key != keys["1"] || items[0].Current {
		t.Errorf("items[0] 不符: %+v", items[0])
	}
	if !items[1].Current {
		t.Errorf("items[1] 应标记为当前曲目: %+v", items[1])
	}
	if items[0].Name != "🎵 Song1" {
		t.Errorf("items[0].Name = %q", items[0].Name)
	}
}

func TestCommandDeniedForUnregisteredRoom(t *testing.T) {
	env := newTestEnv(t, nil, t.TempDir())

	err := env.engine.PlayNext(context.Background(), "other-room", 100)
	var denial *access.Denial
	if !errors.As(err, &denial) {
		t.Fatalf("未注册房间应被拒绝, got %v", err)
	}
	if denial.Check != "room-registered" {
		t.Errorf("拒绝来自 %q", denial.Check)
	}
}

func TestPlayProviderStartsPlayback(t *testing.T) {
	downloads := 0
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			fmt.Fprintf(w, `{"mp3s":[{"id":42,"artist":"A","song":"S","link":"%s/media/42.mp3","photo":""}],"videos":[]}`, srv.URL)
		case "/mp3":
			fmt.Fprintf(w, `{"id":42,"artist":"A","song":"S","duration":180,"link":"%s/media/42.mp3","photo":""}`, srv.URL)
		case "/media/42.mp3":
			downloads++
			w.Write([]byte("mp3-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	env := newTestEnv(t, provider.NewClient(srv.URL), t.TempDir())
	ctx := context.Background()

	result, err := env.engine.PlayProvider(ctx, "room1", 100, "test song")
	if err != nil {
		t.Fatalf("PlayProvider: %v", err)
	}
	if !result.Started || result.AlreadyQueued {
		t.Errorf("空闲房间点播应立即起播: %+v", result)
	}
	if result.Key != playlist.TrackKey("provider/42") {
		t.Errorf("Key = %q", result.Key)
	}
	if env.transport.joins != 1 {
		t.Errorf("应重新入会: joins=%d", env.transport.joins)
	}
	if rule, _ := env.store.Rule(ctx, "room1"); rule != model.RuleQueue {
		t.Errorf("起播时未设置的规则应落为 queue, got %q", rule)
	}

	// 重复点播：报告已在队列及其位置，不重复下载媒体文件
	result, err = env.engine.PlayProvider(ctx, "room1", 100, "test song")
	if err != nil {
		t.Fatalf("PlayProvider second: %v", err)
	}
	if result.Started || !result.AlreadyQueued || result.Position != 1 {
		t.Errorf("重复点播同一曲目应报告已在队列: %+v", result)
	}
	if downloads != 1 {
		t.Errorf("重复点播不应重新下载: downloads=%d", downloads)
	}
}
