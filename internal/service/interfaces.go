package service

import (
	"context"

	"github.com/wfunc/room-server/internal/room"
)

// RoomService 房间服务接口
// 每个写操作都是 加载 -> 状态机计算 -> 按版本号提交 的循环，
// 版本冲突时重新加载重试，重试次数耗尽返回 ErrStoreBusy。
type RoomService interface {
	// 房间生命周期
	CreateRoom(ctx context.Context, host room.PlayerProfile, req *CreateRoomRequest) (*room.Room, error)
	JoinRoom(ctx context.Context, roomID string, player room.PlayerProfile) (*room.Room, error)
	StartGame(ctx context.Context, roomID, actingPlayerID string) (*room.Room, error)
	FinishGame(ctx context.Context, roomID, actingPlayerID string) (*room.Room, error)

	// 玩家状态
	UpdatePlayer(ctx context.Context, roomID, actingPlayerID string, patch *PlayerPatch) (*room.Room, error)
	LeaveRoom(ctx context.Context, roomID, actingPlayerID string) (*room.Room, error)

	// 查询
	GetRoom(ctx context.Context, roomID string) (*room.Room, error)
	ListRooms(ctx context.Context, status *room.Status, page, pageSize int) ([]*room.Room, int64, error)
}

// AuthService 认证服务接口
// 玩家身份是匿名访客：服务端签发玩家ID和令牌，不存储账号。
type AuthService interface {
	GuestLogin(ctx context.Context, req *GuestLoginRequest) (*AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error)
	ValidateToken(ctx context.Context, token string) (*TokenClaims, error)
}

// CreateRoomRequest 创建房间请求
type CreateRoomRequest struct {
	RoomID     string `json:"room_id"`     // 为空时服务端生成
	GameID     string `json:"game_id" binding:"required"`
	MaxPlayers int    `json:"max_players"` // 为0时使用配置默认值
}

// PlayerPatch 玩家状态稀疏更新
// 指针字段为 nil 表示不更新该字段。
type PlayerPatch struct {
	Position  *room.Position     `json:"position,omitempty"`
	Rotation  *room.Rotation     `json:"rotation,omitempty"`
	Animation *room.Animation    `json:"animation,omitempty"`
	Status    *room.PlayerStatus `json:"status,omitempty"`
	Ready     *bool              `json:"ready,omitempty"`
	Connected *bool              `json:"connected,omitempty"`
}

// GuestLoginRequest 访客登录请求
type GuestLoginRequest struct {
	Name  string `json:"name" binding:"required,max=16"`
	Color string `json:"color"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	PlayerID     string `json:"player_id"`
	Name         string `json:"name"`
	Color        string `json:"color"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// TokenClaims JWT Claims
type TokenClaims struct {
	PlayerID  string `json:"player_id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}
