package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"VcFM/cache"
	"VcFM/core/engine"
	"VcFM/logger"

	"github.com/gorilla/websocket"
)

// MessageType 推送消息类型
type MessageType string

const (
	MsgTypePlayback  MessageType = "playback"  // 播放器文案刷新
	MsgTypeQueue     MessageType = "queue"     // 队列快照更新
	MsgTypeRule      MessageType = "rule"      // 规则变更
	MsgTypeTeardown  MessageType = "teardown"  // 房间播放已拆除
	MsgTypePing      MessageType = "ping"      // 心跳
	MsgTypePong      MessageType = "pong"      // 心跳响应
)

// WSMessage WebSocket 推送消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client 订阅某个房间播放状态的 WebSocket 连接
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	RoomID string
	ConnID string
}

// Hub 房间播放状态的推送中心。
// 连接按房间分组，播放状态变化时向整组广播；
// 同时充当流事件处理的展示协作方：刷新即推送、删除即广播拆除。
type Hub struct {
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	engine   *engine.Engine
	presence *cache.PresenceCache

	mu   sync.RWMutex
	done chan struct{}
}

type broadcastMessage struct {
	RoomID  string
	Message []byte
}

// NewHub 创建推送中心
func NewHub(eng *engine.Engine, presence *cache.PresenceCache) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
		engine:     eng,
		presence:   presence,
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastToRoom(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[client.RoomID] == nil {
		h.rooms[client.RoomID] = make(map[*Client]bool)
	}
	h.rooms[client.RoomID][client] = true

	if err := h.presence.AddSubscriber(context.Background(), client.RoomID, client.ConnID); err != nil {
		logger.Warn("记录订阅端上线失败",
			logger.ErrorField(err),
			logger.String("room", client.RoomID),
			logger.String("conn", client.ConnID))
	}

	logger.Info("推送客户端已接入", logger.String("room", client.RoomID))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeClient(client)
}

// removeClient 需要持有锁
func (h *Hub) removeClient(client *Client) {
	if clients, ok := h.rooms[client.RoomID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.Send)
			if len(clients) == 0 {
				delete(h.rooms, client.RoomID)
			}
		}
	}

	if err := h.presence.RemoveSubscriber(context.Background(), client.RoomID, client.ConnID); err != nil {
		logger.Warn("记录订阅端下线失败",
			logger.ErrorField(err),
			logger.String("room", client.RoomID),
			logger.String("conn", client.ConnID))
	}
}

func (h *Hub) broadcastToRoom(msg *broadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[msg.RoomID] {
		select {
		case client.Send <- msg.Message:
		default:
			// 发送缓冲满说明连接已死，交给注销流程清理
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room, clients := range h.rooms {
		for client := range clients {
			close(client.Send)
			client.Conn.Close()
		}
		delete(h.rooms, room)
	}
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastWSMessage 把消息序列化后广播到房间
func (h *Hub) BroadcastWSMessage(roomID string, msg *WSMessage) error {
	msg.RoomID = roomID
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.broadcast <- &broadcastMessage{RoomID: roomID, Message: data}
	return nil
}

// SubscriberCount 返回房间仍有心跳的订阅端数量
func (h *Hub) SubscriberCount(ctx context.Context, room string) (int, error) {
	return h.presence.CountSubscribers(ctx, room)
}

// ========== 展示协作方 ==========

// RefreshPlayer 重新渲染当前曲目文案并推送给房间订阅者
func (h *Hub) RefreshPlayer(ctx context.Context, room string) error {
	text, err := h.engine.CurrentDisplay(ctx, room)
	if err != nil {
		return err
	}

	data, err := json.Marshal(map[string]string{"display": text})
	if err != nil {
		return err
	}
	return h.BroadcastWSMessage(room, &WSMessage{Type: MsgTypePlayback, Data: data})
}

// DeletePlayer 广播房间播放已拆除，订阅端据此移除播放器界面
func (h *Hub) DeletePlayer(ctx context.Context, room string, ref string) error {
	data, err := json.Marshal(map[string]string{"ref": ref})
	if err != nil {
		return err
	}
	return h.BroadcastWSMessage(room, &WSMessage{Type: MsgTypeTeardown, Data: data})
}
