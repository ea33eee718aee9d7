package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub WebSocket连接管理中心
// 客户端按房间分组，房间内的状态变更通过 BroadcastToRoom 推送快照。
type Hub struct {
	// 客户端连接池
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 房间ID到客户端的映射
	roomClients map[string]map[string]*Client
	roomMu      sync.RWMutex

	// 消息广播通道
	broadcast chan *Message

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	// 业务消息处理器，由房间消息处理器实现
	messageHandler MessageHandler

	// 日志
	logger *zap.Logger
}

// Client WebSocket客户端
type Client struct {
	ID       string          // 客户端ID
	PlayerID string          // 玩家ID
	Name     string          // 玩家名
	Color    string          // 玩家颜色
	RoomID   string          // 当前订阅的房间ID，空表示未进入房间
	Hub      *Hub            // Hub引用
	Conn     *websocket.Conn // WebSocket连接
	Send     chan []byte     // 发送通道
}

// Message WebSocket消息
type Message struct {
	Type      string          `json:"type"`                // 消息类型
	RoomID    string          `json:"room_id,omitempty"`   // 房间ID
	PlayerID  string          `json:"player_id,omitempty"` // 玩家ID
	Data      json.RawMessage `json:"data,omitempty"`      // 消息数据
	Timestamp int64           `json:"timestamp"`           // 时间戳
}

// MessageHandler 业务消息处理器
type MessageHandler interface {
	// HandleClientMessage 处理客户端发来的消息
	HandleClientMessage(client *Client, data []byte)
	// HandleClientDisconnect 客户端断开时回调，roomID 为断开前所在的房间
	HandleClientDisconnect(client *Client, roomID string)
}

// MessageType 消息类型
const (
	// 系统消息
	MessageTypeConnected    = "connected"
	MessageTypeDisconnected = "disconnected"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"

	// 房间消息
	MessageTypeJoinRoom     = "join_room"
	MessageTypeLeaveRoom    = "leave_room"
	MessageTypeStartGame    = "start_game"
	MessageTypeFinishGame   = "finish_game"
	MessageTypeUpdatePlayer = "update_player"
	MessageTypeRoomState    = "room_state"
)

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		roomClients: make(map[string]map[string]*Client),
		broadcast:   make(chan *Message, 256),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		logger:      logger,
	}
}

// SetMessageHandler 设置业务消息处理器
func (h *Hub) SetMessageHandler(handler MessageHandler) {
	h.messageHandler = handler
}

// Run 运行Hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID),
		zap.String("player_id", client.PlayerID))

	// 发送连接成功消息
	msg := &Message{
		Type:      MessageTypeConnected,
		PlayerID:  client.PlayerID,
		Timestamp: time.Now().Unix(),
		Data:      json.RawMessage(`{"message":"连接成功"}`),
	}
	h.SendToClient(client.ID, msg)
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	_, registered := h.clients[client.ID]
	if registered {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	if !registered {
		return
	}

	// 先退出房间索引再通知业务层，
	// 离线广播不会再发给本客户端（发送通道已关闭）。
	roomID := client.RoomID
	h.leaveRoomIndex(client)

	if h.messageHandler != nil && roomID != "" {
		h.messageHandler.HandleClientDisconnect(client, roomID)
	}

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID),
		zap.String("player_id", client.PlayerID))
}

// JoinRoomIndex 把客户端加入房间索引，此后该客户端接收房间广播
func (h *Hub) JoinRoomIndex(client *Client, roomID string) {
	// 先从旧房间退出
	h.leaveRoomIndex(client)

	h.roomMu.Lock()
	if h.roomClients[roomID] == nil {
		h.roomClients[roomID] = make(map[string]*Client)
	}
	h.roomClients[roomID][client.ID] = client
	h.roomMu.Unlock()

	client.RoomID = roomID
}

// leaveRoomIndex 把客户端从房间索引中移除
func (h *Hub) leaveRoomIndex(client *Client) {
	if client.RoomID == "" {
		return
	}

	h.roomMu.Lock()
	if clients, ok := h.roomClients[client.RoomID]; ok {
		delete(clients, client.ID)
		if len(clients) == 0 {
			delete(h.roomClients, client.RoomID)
		}
	}
	h.roomMu.Unlock()

	client.RoomID = ""
}

// broadcastMessage 广播消息给所有客户端
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			// 发送缓冲区满，丢弃本条
			h.logger.Warn("客户端发送缓冲区满",
				zap.String("client_id", client.ID))
		}
	}
	h.clientsMu.RUnlock()
}

// SendToClient 发送消息给指定客户端
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	client, ok := h.clients[clientID]
	h.clientsMu.RUnlock()

	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// BroadcastToRoom 发送消息给房间内的所有客户端
func (h *Hub) BroadcastToRoom(roomID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.roomMu.RLock()
	clients := make([]*Client, 0, len(h.roomClients[roomID]))
	for _, client := range h.roomClients[roomID] {
		clients = append(clients, client)
	}
	h.roomMu.RUnlock()

	if len(clients) == 0 {
		return ErrRoomNotSubscribed
	}

	for _, client := range clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("房间客户端发送缓冲区满",
				zap.String("client_id", client.ID),
				zap.String("room_id", roomID))
		}
	}

	return nil
}

// GetRoomOnlineCount 获取房间在线连接数
func (h *Hub) GetRoomOnlineCount(roomID string) int {
	h.roomMu.RLock()
	defer h.roomMu.RUnlock()
	return len(h.roomClients[roomID])
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Broadcast 广播消息（公开方法）
func (h *Hub) Broadcast(message *Message) {
	h.broadcast <- message
}

// Register 注册客户端（公开方法）
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端（公开方法）
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}
