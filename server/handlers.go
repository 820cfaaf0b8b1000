package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"VcFM/core/access"
	"VcFM/core/archive"
	"VcFM/core/engine"
	"VcFM/core/playlist"
	"VcFM/core/stream"
	"VcFM/logger"
	"VcFM/model"

	"github.com/gorilla/mux"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("序列化响应失败", logger.ErrorField(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondCommandError 把引擎错误映射为 HTTP 状态码
func respondCommandError(w http.ResponseWriter, err error) {
	var denial *access.Denial
	switch {
	case errors.As(err, &denial):
		respondWithError(w, http.StatusForbidden, denial.Reason)
	case errors.Is(err, engine.ErrNoResults),
		errors.Is(err, engine.ErrNothingPlaying),
		errors.Is(err, playlist.ErrNotQueued),
		errors.Is(err, stream.ErrTrackGone):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrNothingNext),
		errors.Is(err, engine.ErrNothingPrevious),
		errors.Is(err, engine.ErrSeekOutOfRange),
		errors.Is(err, archive.ErrNoLocalFile):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, archive.ErrUploadInProgress):
		respondWithError(w, http.StatusAccepted, err.Error())
	case errors.Is(err, stream.ErrNoActiveCall):
		respondWithError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("处理请求失败", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

type commandRequest struct {
	UserID int64  `json:"userId"`
	Query  string `json:"query,omitempty"`
	Delta  int    `json:"delta,omitempty"`
	Key    string `json:"key,omitempty"`
}

func decodeCommand(r *http.Request) (*commandRequest, error) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// HealthHandler 健康检查
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// ========== 房间注册 ==========

// ListRoomsHandler 列出激活状态的房间
func (s *Server) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.repo.ListActive(r.Context())
	if err != nil {
		respondCommandError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rooms)
}

// RegisterRoomHandler 注册房间
func (s *Server) RegisterRoomHandler(w http.ResponseWriter, r *http.Request) {
	var room model.RegisteredRoom
	if err := json.NewDecoder(r.Body).Decode(&room); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if room.ID == "" {
		respondWithError(w, http.StatusBadRequest, "room id required")
		return
	}

	if err := s.repo.Register(r.Context(), &room); err != nil {
		respondCommandError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, room)
}

// DisableRoomHandler 停用房间
func (s *Server) DisableRoomHandler(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["id"]
	if err := s.repo.Disable(r.Context(), room); err != nil {
		respondCommandError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"id": room, "status": model.RoomStatusDisabled})
}

// AddOperatorHandler 添加房间操作员
func (s *Server) AddOperatorHandler(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["id"]

	var op model.RoomOperator
	if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	op.RoomID = room
	if op.UserID == 0 {
		respondWithError(w, http.StatusBadRequest, "user id required")
		return
	}
	if op.Role == "" {
		op.Role = model.OperatorRoleAdmin
	}

	if err := s.repo.AddOperator(r.Context(), &op); err != nil {
		respondCommandError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, op)
}

// RemoveOperatorHandler 移除房间操作员
func (s *Server) RemoveOperatorHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseInt(vars["userId"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := s.repo.RemoveOperator(r.Context(), vars["id"], userID); err != nil {
		respondCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ========== 队列与播放 ==========

// QueueHandler 返回房间队列快照
func (s *Server) QueueHandler(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["id"]
	items, err := s.engine.QueueSnapshot(r.Context(), room)
	if err != nil {
		respondCommandError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, items)
}

// NowHandler 返回当前曲目的展示文案与播放状态
func (s *Server) NowHandler(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["id"]
	ctx := r.Context()

	display, err := s.engine.CurrentDisplay(ctx, room)
	if err != nil {
		respondCommandError(w, err)
		return
	}
	status, err := s.store.Status(ctx, room)
	if err != nil {
		respondCommandError(w, err)
		return
	}
	rule, err := s.store.Rule(ctx, room)
	if err != nil {
		respondCommandError(w, err)
		return
	}

	subscribers, err := s.hub.SubscriberCount(ctx, room)
	if err != nil {
		logger.Debug("读取订阅端数量失败（忽略）", logger.String("room", room), logger.ErrorField(err))
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"display":     display,
		"status":      string(status),
		"rule":        string(rule),
		"subscribers": subscribers,
	})
}

// PlayHandler 按关键词点播
func (s *Server) PlayHandler(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["id"]
	req, err := decodeCommand(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		respondWithError(w, http.StatusBadRequest, "query required")
		return
	}

	result, err := s.engine.PlayProvider(r.Context(), room, req.UserID, req.Query)
	if err != nil {
		respondCommandError(w, err)
		return
	}

	s.broadcastQueue(r.Context(), room)
	respondWithJSON(w, http.StatusOK, result)
}

// SearchHandler 搜索曲目（不入队）
func (s *Server) SearchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		respondWithError(w, http.StatusBadRequest, "query required")
		return
	}

	results, err := s.provider.Search(r.Context(), query)
	if err != nil {
		respondCommandError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, results)
}

// NextHandler 强制切到下一首
func (s *Server) NextHandler(w http.ResponseWriter, r *http.Request) {
	s.simpleCommand(w, r, s.engine.PlayNext)
}

// PreviousHandler 回到上一首
func (s *Server) PreviousHandler(w http.ResponseWriter, r *http.Request) {
	s.simpleCommand(w, r, s.engine.PlayPrevious)
}

// PauseHandler 暂停播放
func (s *Server) PauseHandler(w http.ResponseWriter, r *http.Request) {
	s.simpleCommand(w, r, s.engine.Pause)
}

// ResumeHandler 恢复播放
func (s *Server) ResumeHandler(w http.ResponseWriter, r *http.Request) {
	s.simpleCommand(w, r, s.engine.Resume)
}

// StopHandler 停止播放并拆除房间
func (s *Server) StopHandler(w http.ResponseWriter, r *http.Request) {
	s.simpleCommand(w, r, s.engine.Stop)
}

// simpleCommand 处理只携带 userId 的播放控制命令，成功后刷新订阅端展示
func (s *Server) simpleCommand(w http.ResponseWriter, r *http.Request,
	cmd func(ctx context.Context, room string, userID int64) error) {
	room := mux.Vars(r)["id"]
	req, err := decodeCommand(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := cmd(r.Context(), room, req.UserID); err != nil {
		respondCommandError(w, err)
		return
	}

	s.refreshPlayer(r.Context(), room)
	respondWithJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

// refreshPlayer 尽力推送最新播放器文案，失败只记日志
func (s *Server) refreshPlayer(ctx context.Context, room string) {
	if err := s.hub.RefreshPlayer(ctx, room); err != nil {
		logger.Debug("推送播放器文案失败（忽略）", logger.String("room", room), logger.ErrorField(err))
	}
}

// broadcastQueue 尽力推送最新队列快照，失败只记日志
func (s *Server) broadcastQueue(ctx context.Context, room string) {
	items, err := s.engine.QueueSnapshot(ctx, room)
	if err != nil {
		logger.Debug("读取队列快照失败（忽略）", logger.String("room", room), logger.ErrorField(err))
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	s.hub.BroadcastWSMessage(room, &WSMessage{Type: MsgTypeQueue, Data: data})
}

// SeekHandler 前后跳转
func (s *Server) SeekHandler(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["id"]
	req, err := decodeCommand(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target, err := s.engine.SeekBy(r.Context(), room, req.UserID, req.Delta)
	if err != nil {
		respondCommandError(w, err)
		return
	}

	s.refreshPlayer(r.Context(), room)
	respondWithJSON(w, http.StatusOK, map[string]int{"position": target})
}

// JumpHandler 跳到队列中的指定曲目
func (s *Server) JumpHandler(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["id"]
	req, err := decodeCommand(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Key == "" {
		respondWithError(w, http.StatusBadRequest, "key required")
		return
	}

	if err := s.engine.PlayForce(r.Context(), room, req.UserID, req.Key); err != nil {
		respondCommandError(w, err)
		return
	}

	s.refreshPlayer(r.Context(), room)
	respondWithJSON(w, http.StatusOK, map[string]string{"playing": req.Key})
}

// DeleteEntryHandler 从队列删除曲目
func (s *Server) DeleteEntryHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	room := vars["id"]
	key := vars["key"]

	userID, _ := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)

	if err := s.engine.DeleteEntry(r.Context(), room, userID, key); err != nil {
		respondCommandError(w, err)
		return
	}

	s.broadcastQueue(r.Context(), room)
	w.WriteHeader(http.StatusNoContent)
}

// CycleRuleHandler 轮换播放规则
func (s *Server) CycleRuleHandler(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["id"]
	req, err := decodeCommand(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule, err := s.engine.CycleRule(r.Context(), room, req.UserID)
	if err != nil {
		respondCommandError(w, err)
		return
	}

	data, _ := json.Marshal(map[string]string{"rule": string(rule)})
	s.hub.BroadcastWSMessage(room, &WSMessage{Type: MsgTypeRule, Data: data})
	respondWithJSON(w, http.StatusOK, map[string]string{"rule": string(rule)})
}

// ArchiveHandler 归档当前曲目并返回对象引用
func (s *Server) ArchiveHandler(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["id"]
	ctx := r.Context()

	now, err := s.store.Now(ctx, room)
	if err != nil {
		respondCommandError(w, err)
		return
	}
	if now == "" {
		respondCommandError(w, engine.ErrNothingPlaying)
		return
	}

	attrs, err := s.store.Codec().Extract(ctx, now)
	if err != nil {
		respondCommandError(w, err)
		return
	}
	if len(attrs) == 0 {
		respondCommandError(w, stream.ErrTrackGone)
		return
	}

	ref, err := s.archiver.ArchiveTrack(ctx, attrs)
	if err != nil {
		respondCommandError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"ref": ref})
}
