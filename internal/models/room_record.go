package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wfunc/room-server/internal/room"
)

// PlayerSlots 玩家槽位列表，序列化为JSON存储
// nil 元素表示空槽位，长度始终等于房间的最大玩家数。
type PlayerSlots []*room.Player

// Value 实现driver.Valuer接口
func (s PlayerSlots) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan 实现sql.Scanner接口
func (s *PlayerSlots) Scan(value interface{}) error {
	if value == nil {
		*s = PlayerSlots{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("无法将 %T 扫描为 PlayerSlots", value)
	}

	return json.Unmarshal(data, s)
}

// RoomRecord 房间持久化记录
// version 列用于乐观并发控制：每次提交递增，
// 提交时携带期望版本号，不匹配则拒绝。
type RoomRecord struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	RoomID        string      `gorm:"uniqueIndex;size:64;not null" json:"room_id"`
	GameID        string      `gorm:"index;size:64" json:"game_id"`
	Status        uint8       `gorm:"not null;default:0" json:"status"` // 0=lobby, 1=playing, 2=completed
	HostID        string      `gorm:"size:64;not null" json:"host_id"`
	MaxPlayers    int         `gorm:"not null" json:"max_players"`
	PlayerCount   int         `gorm:"not null" json:"player_count"`
	RoomCreatedAt int64       `gorm:"not null" json:"room_created_at"` // 房间创建时间戳（Unix秒）
	StartedAt     *int64      `json:"started_at,omitempty"`
	FinishedAt    *int64      `json:"finished_at,omitempty"`
	Players       PlayerSlots `gorm:"type:json" json:"players"`
	Version       uint64      `gorm:"not null;default:1" json:"version"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// TableName 指定表名
func (RoomRecord) TableName() string {
	return "rooms"
}

// NewRoomRecord 从房间状态构建持久化记录
func NewRoomRecord(r *room.Room) *RoomRecord {
	return &RoomRecord{
		RoomID:        r.RoomID,
		GameID:        r.GameID,
		Status:        uint8(r.Status),
		HostID:        r.HostID,
		MaxPlayers:    r.MaxPlayers,
		PlayerCount:   r.PlayerCount,
		RoomCreatedAt: r.CreatedAt,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
		Players:       PlayerSlots(r.Players),
	}
}

// ToRoom 还原为房间状态
func (rec *RoomRecord) ToRoom() *room.Room {
	return &room.Room{
		RoomID:      rec.RoomID,
		GameID:      rec.GameID,
		CreatedAt:   rec.RoomCreatedAt,
		StartedAt:   rec.StartedAt,
		FinishedAt:  rec.FinishedAt,
		Status:      room.Status(rec.Status),
		HostID:      rec.HostID,
		MaxPlayers:  rec.MaxPlayers,
		PlayerCount: rec.PlayerCount,
		Players:     []*room.Player(rec.Players),
	}
}
