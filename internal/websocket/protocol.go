package websocket

import (
	"github.com/wfunc/room-server/internal/room"
)

// 客户端到服务端的消息载荷

// JoinRoomPayload 加入房间请求
type JoinRoomPayload struct {
	RoomID string `json:"room_id"`
}

// UpdatePlayerPayload 玩家状态稀疏更新请求
// 指针字段为 nil 表示不更新该字段。
type UpdatePlayerPayload struct {
	Position  *room.Position     `json:"position,omitempty"`
	Rotation  *room.Rotation     `json:"rotation,omitempty"`
	Animation *room.Animation    `json:"animation,omitempty"`
	Status    *room.PlayerStatus `json:"status,omitempty"`
	Ready     *bool              `json:"ready,omitempty"`
}

// 服务端到客户端的消息载荷

// RoomStatePayload 房间状态快照，每次状态变更后广播给房间内所有客户端
type RoomStatePayload struct {
	Room *room.Room `json:"room"`
}

// ErrorPayload 错误消息
type ErrorPayload struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}
