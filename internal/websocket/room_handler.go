package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wfunc/room-server/internal/errors"
	"github.com/wfunc/room-server/internal/room"
	"github.com/wfunc/room-server/internal/service"
	"go.uber.org/zap"
)

// RoomMessageHandler 房间业务消息处理器
// 把WebSocket消息翻译成房间服务调用，每次状态变更后
// 向房间内的所有客户端广播最新的房间快照。
type RoomMessageHandler struct {
	roomService service.RoomService
	hub         *Hub
	logger      *zap.Logger
}

// NewRoomMessageHandler 创建房间消息处理器
func NewRoomMessageHandler(roomService service.RoomService, hub *Hub, logger *zap.Logger) *RoomMessageHandler {
	handler := &RoomMessageHandler{
		roomService: roomService,
		hub:         hub,
		logger:      logger,
	}
	hub.SetMessageHandler(handler)
	return handler
}

// HandleClientMessage 处理客户端消息
func (h *RoomMessageHandler) HandleClientMessage(client *Client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn("解析消息失败",
			zap.String("client_id", client.ID),
			zap.Error(err))
		client.SendError("消息格式错误")
		return
	}

	ctx := context.Background()

	switch msg.Type {
	case MessageTypePing:
		client.SendMessage(MessageTypePong, nil)

	case MessageTypePong:
		// 心跳响应，无需处理

	case MessageTypeJoinRoom:
		h.handleJoinRoom(ctx, client, msg.Data)

	case MessageTypeLeaveRoom:
		h.handleLeaveRoom(ctx, client)

	case MessageTypeStartGame:
		h.handleStartGame(ctx, client)

	case MessageTypeFinishGame:
		h.handleFinishGame(ctx, client)

	case MessageTypeUpdatePlayer:
		h.handleUpdatePlayer(ctx, client, msg.Data)

	case MessageTypeRoomState:
		h.handleRoomState(ctx, client)

	default:
		h.logger.Warn("收到不支持的消息类型",
			zap.String("client_id", client.ID),
			zap.String("type", msg.Type))
		client.SendError("不支持的消息类型: " + msg.Type)
	}
}

// HandleClientDisconnect 客户端断开时把玩家标记为离线
// 槽位保留，同一玩家ID重连后恢复状态。
func (h *RoomMessageHandler) HandleClientDisconnect(client *Client, roomID string) {
	if roomID == "" {
		return
	}

	ctx := context.Background()
	r, err := h.roomService.LeaveRoom(ctx, roomID, client.PlayerID)
	if err != nil {
		h.logger.Warn("断线离线标记失败",
			zap.String("room_id", roomID),
			zap.String("player_id", client.PlayerID),
			zap.Error(err))
		return
	}

	h.broadcastRoomState(r)
}

// handleJoinRoom 加入房间
// 玩家已在房间中时按重连处理：恢复在线标记而不是报错。
func (h *RoomMessageHandler) handleJoinRoom(ctx context.Context, client *Client, data json.RawMessage) {
	var payload JoinRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		client.SendError("无效的加入房间请求")
		return
	}

	player := room.PlayerProfile{
		ID:    client.PlayerID,
		Name:  client.Name,
		Color: client.Color,
	}

	r, err := h.roomService.JoinRoom(ctx, payload.RoomID, player)
	if errors.Is(err, errors.ErrDuplicatePlayer) {
		// 重连：恢复在线标记
		connected := true
		r, err = h.roomService.UpdatePlayer(ctx, payload.RoomID, client.PlayerID,
			&service.PlayerPatch{Connected: &connected})
	}
	if err != nil {
		h.sendAppError(client, err)
		return
	}

	h.hub.JoinRoomIndex(client, payload.RoomID)
	h.broadcastRoomState(r)
}

// handleLeaveRoom 主动离开房间
func (h *RoomMessageHandler) handleLeaveRoom(ctx context.Context, client *Client) {
	if client.RoomID == "" {
		client.SendError("尚未加入房间")
		return
	}
	roomID := client.RoomID

	r, err := h.roomService.LeaveRoom(ctx, roomID, client.PlayerID)
	if err != nil {
		h.sendAppError(client, err)
		return
	}

	h.hub.leaveRoomIndex(client)
	h.broadcastRoomState(r)
	client.SendMessage(MessageTypeLeaveRoom, RoomStatePayload{Room: r})
}

// handleStartGame 开始游戏
func (h *RoomMessageHandler) handleStartGame(ctx context.Context, client *Client) {
	if client.RoomID == "" {
		client.SendError("尚未加入房间")
		return
	}

	r, err := h.roomService.StartGame(ctx, client.RoomID, client.PlayerID)
	if err != nil {
		h.sendAppError(client, err)
		return
	}

	h.broadcastRoomState(r)
}

// handleFinishGame 结束游戏
func (h *RoomMessageHandler) handleFinishGame(ctx context.Context, client *Client) {
	if client.RoomID == "" {
		client.SendError("尚未加入房间")
		return
	}

	r, err := h.roomService.FinishGame(ctx, client.RoomID, client.PlayerID)
	if err != nil {
		h.sendAppError(client, err)
		return
	}

	h.broadcastRoomState(r)
}

// handleUpdatePlayer 更新玩家状态
func (h *RoomMessageHandler) handleUpdatePlayer(ctx context.Context, client *Client, data json.RawMessage) {
	if client.RoomID == "" {
		client.SendError("尚未加入房间")
		return
	}

	var payload UpdatePlayerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		client.SendError("无效的状态更新请求")
		return
	}

	r, err := h.roomService.UpdatePlayer(ctx, client.RoomID, client.PlayerID, &service.PlayerPatch{
		Position:  payload.Position,
		Rotation:  payload.Rotation,
		Animation: payload.Animation,
		Status:    payload.Status,
		Ready:     payload.Ready,
	})
	if err != nil {
		h.sendAppError(client, err)
		return
	}

	h.broadcastRoomState(r)
}

// handleRoomState 按需返回当前房间快照
func (h *RoomMessageHandler) handleRoomState(ctx context.Context, client *Client) {
	if client.RoomID == "" {
		client.SendError("尚未加入房间")
		return
	}

	r, err := h.roomService.GetRoom(ctx, client.RoomID)
	if err != nil {
		h.sendAppError(client, err)
		return
	}

	client.SendMessage(MessageTypeRoomState, RoomStatePayload{Room: r})
}

// broadcastRoomState 向房间广播状态快照
func (h *RoomMessageHandler) broadcastRoomState(r *room.Room) {
	data, err := json.Marshal(RoomStatePayload{Room: r})
	if err != nil {
		h.logger.Error("序列化房间快照失败",
			zap.String("room_id", r.RoomID),
			zap.Error(err))
		return
	}

	msg := &Message{
		Type:      MessageTypeRoomState,
		RoomID:    r.RoomID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := h.hub.BroadcastToRoom(r.RoomID, msg); err != nil {
		h.logger.Debug("房间广播跳过",
			zap.String("room_id", r.RoomID),
			zap.Error(err))
	}
}

// sendAppError 把业务错误发回客户端，携带错误码
func (h *RoomMessageHandler) sendAppError(client *Client, err error) {
	payload := ErrorPayload{Error: err.Error()}
	if appErr, ok := err.(*errors.AppError); ok {
		payload.Error = appErr.Message
		payload.Code = int(appErr.Code)
	}

	data, _ := json.Marshal(payload)
	h.hub.SendToClient(client.ID, &Message{
		Type:      MessageTypeError,
		Timestamp: time.Now().Unix(),
		Data:      data,
	})
}
