package room

// 字段长度限制（持久化时按此截断，保持定长布局）
const (
	MaxNameLen  = 16 // 玩家名称最大字节数
	MaxColorLen = 8  // 颜色值最大字节数（如 #ffffff）

	// MaxCapacity 单个房间的容量上限
	MaxCapacity = 16

	// DefaultColor 默认玩家颜色
	DefaultColor = "#ffffff"
)

// Status 房间状态（单向流转：大厅 -> 游戏中 -> 已结束）
type Status uint8

const (
	StatusLobby     Status = 0 // 大厅等待中
	StatusPlaying   Status = 1 // 游戏进行中
	StatusCompleted Status = 2 // 游戏已结束
)

// String 返回状态名称
func (s Status) String() string {
	switch s {
	case StatusLobby:
		return "lobby"
	case StatusPlaying:
		return "playing"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Animation 玩家动画枚举
type Animation uint8

const (
	AnimationIdle    Animation = 0 // 待机
	AnimationWalking Animation = 1 // 行走
)

// PlayerStatus 玩家状态枚举
type PlayerStatus uint8

const (
	PlayerAvailable PlayerStatus = 0 // 空闲
	PlayerBusy      PlayerStatus = 1 // 忙碌
)

// Position 3D坐标
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Rotation 四元数旋转
type Rotation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityRotation 单位四元数（默认朝向）
func IdentityRotation() Rotation {
	return Rotation{X: 0, Y: 0, Z: 0, W: 1}
}

// Player 房间内的玩家状态
// 玩家不脱离房间单独存在，始终占据房间的一个槽位。
type Player struct {
	ID           string       `json:"id"`            // 玩家ID（由调用方提供，已通过认证）
	Name         string       `json:"name"`          // 显示名称
	Color        string       `json:"color"`         // 显示颜色
	Connected    bool         `json:"connected"`     // 是否在线
	Ready        bool         `json:"ready"`         // 是否准备就绪
	IsHost       bool         `json:"is_host"`       // 是否为房主
	Position     Position     `json:"position"`      // 最后上报的位置
	Rotation     Rotation     `json:"rotation"`      // 最后上报的旋转
	Animation    Animation    `json:"animation"`     // 当前动画
	Status       PlayerStatus `json:"status"`        // 玩家状态
	JoinedAt     int64        `json:"joined_at"`     // 加入时间戳（Unix秒）
	LastActivity int64        `json:"last_activity"` // 最后活动时间戳（Unix秒）
}

// Room 多人游戏房间
// Players 为固定长度的槽位列表（长度 = MaxPlayers），nil 表示空槽。
type Room struct {
	RoomID      string    `json:"room_id"`               // 房间唯一标识
	GameID      string    `json:"game_id"`               // 游戏/规则集标识
	CreatedAt   int64     `json:"created_at"`            // 创建时间戳（Unix秒）
	StartedAt   *int64    `json:"started_at,omitempty"`  // 开始时间戳
	FinishedAt  *int64    `json:"finished_at,omitempty"` // 结束时间戳
	Status      Status    `json:"status"`                // 房间状态
	HostID      string    `json:"host_id"`               // 房主玩家ID
	MaxPlayers  int       `json:"max_players"`           // 最大玩家数
	PlayerCount int       `json:"player_count"`          // 当前玩家数（缓存值）
	Players     []*Player `json:"players"`               // 玩家槽位列表
}

// PlayerProfile 创建/加入房间时由调用方提供的玩家信息
type PlayerProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Clone 深拷贝房间状态
func (r *Room) Clone() *Room {
	next := *r
	if r.StartedAt != nil {
		v := *r.StartedAt
		next.StartedAt = &v
	}
	if r.FinishedAt != nil {
		v := *r.FinishedAt
		next.FinishedAt = &v
	}
	next.Players = make([]*Player, len(r.Players))
	for i, p := range r.Players {
		if p != nil {
			cp := *p
			next.Players[i] = &cp
		}
	}
	return &next
}

// FindPlayer 查找房间内的玩家，返回玩家和槽位索引；未找到时返回 (nil, -1)
func (r *Room) FindPlayer(playerID string) (*Player, int) {
	for i, p := range r.Players {
		if p != nil && p.ID == playerID {
			return p, i
		}
	}
	return nil, -1
}

// firstEmptySlot 返回最小的空槽位索引；没有空槽时返回 -1
func (r *Room) firstEmptySlot() int {
	for i, p := range r.Players {
		if p == nil {
			return i
		}
	}
	return -1
}

// occupiedSlots 统计实际被占用的槽位数
func (r *Room) occupiedSlots() int {
	count := 0
	for _, p := range r.Players {
		if p != nil {
			count++
		}
	}
	return count
}

// truncate 按字节数截断字符串（定长字段布局）
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// newPlayer 构建一个带默认值的玩家
func newPlayer(profile PlayerProfile, isHost bool, timestamp int64) *Player {
	color := truncate(profile.Color, MaxColorLen)
	if color == "" {
		color = DefaultColor
	}
	return &Player{
		ID:           profile.ID,
		Name:         truncate(profile.Name, MaxNameLen),
		Color:        color,
		Connected:    true,
		Ready:        false,
		IsHost:       isHost,
		Position:     Position{},
		Rotation:     IdentityRotation(),
		Animation:    AnimationIdle,
		Status:       PlayerAvailable,
		JoinedAt:     timestamp,
		LastActivity: timestamp,
	}
}
