package room

import (
	"github.com/wfunc/room-server/internal/errors"
)

// 房间状态机：五个操作都是对房间值的纯函数，
// 输入房间不会被修改，成功时返回一份更新后的拷贝。
// 持久化与并发控制（版本号CAS提交）由调用方负责。

// CreateRoomArgs 创建房间参数
type CreateRoomArgs struct {
	RoomID     string        `json:"room_id"`
	GameID     string        `json:"game_id"`
	Host       PlayerProfile `json:"host"`
	MaxPlayers int           `json:"max_players"`
	Timestamp  int64         `json:"timestamp"`
}

// JoinRoomArgs 加入房间参数
type JoinRoomArgs struct {
	Player    PlayerProfile `json:"player"`
	Timestamp int64         `json:"timestamp"`
}

// StartGameArgs 开始游戏参数
type StartGameArgs struct {
	ActingPlayerID string `json:"acting_player_id"`
	Timestamp      int64  `json:"timestamp"`
}

// FinishGameArgs 结束游戏参数
type FinishGameArgs struct {
	ActingPlayerID string `json:"acting_player_id"`
	Timestamp      int64  `json:"timestamp"`
}

// UpdatePlayerArgs 更新玩家状态参数
// 指针字段为 nil 表示不更新该字段（稀疏更新，不是整体替换）。
type UpdatePlayerArgs struct {
	ActingPlayerID string        `json:"acting_player_id"`
	Timestamp      int64         `json:"timestamp"`
	Position       *Position     `json:"position,omitempty"`
	Rotation       *Rotation     `json:"rotation,omitempty"`
	Animation      *Animation    `json:"animation,omitempty"`
	Status         *PlayerStatus `json:"status,omitempty"`
	Ready          *bool         `json:"ready,omitempty"`
	Connected      *bool         `json:"connected,omitempty"`
}

// CreateRoom 创建房间，房主自动占据0号槽位
// RoomID 冲突由存储层在插入时检测并返回 ErrRoomExists。
func CreateRoom(args CreateRoomArgs) (*Room, error) {
	if args.RoomID == "" {
		return nil, errors.New(errors.ErrInvalidParam, "房间ID不能为空")
	}
	if args.Host.ID == "" {
		return nil, errors.New(errors.ErrInvalidParam, "房主ID不能为空")
	}
	if args.MaxPlayers < 1 {
		return nil, errors.Newf(errors.ErrInvalidParam, "无效的最大玩家数: %d", args.MaxPlayers)
	}
	if args.MaxPlayers > MaxCapacity {
		return nil, errors.Newf(errors.ErrInvalidParam, "最大玩家数 %d 超过容量上限 %d", args.MaxPlayers, MaxCapacity)
	}

	r := &Room{
		RoomID:      args.RoomID,
		GameID:      args.GameID,
		CreatedAt:   args.Timestamp,
		Status:      StatusLobby,
		HostID:      args.Host.ID,
		MaxPlayers:  args.MaxPlayers,
		PlayerCount: 1,
		Players:     make([]*Player, args.MaxPlayers),
	}
	r.Players[0] = newPlayer(args.Host, true, args.Timestamp)

	return r, nil
}

// JoinRoom 加入房间，占据最小的空槽位
func JoinRoom(r *Room, args JoinRoomArgs) (*Room, error) {
	if args.Player.ID == "" {
		return nil, errors.New(errors.ErrInvalidParam, "玩家ID不能为空")
	}
	if r.Status != StatusLobby {
		return nil, errors.Newf(errors.ErrNotInLobby, "房间当前状态: %s", r.Status)
	}
	if _, idx := r.FindPlayer(args.Player.ID); idx >= 0 {
		return nil, errors.Newf(errors.ErrDuplicatePlayer, "玩家 %s 已在房间中", args.Player.ID)
	}
	if r.PlayerCount >= r.MaxPlayers {
		return nil, errors.Newf(errors.ErrRoomFull, "房间容量 %d 已满", r.MaxPlayers)
	}

	next := r.Clone()
	slot := next.firstEmptySlot()
	if slot < 0 {
		// PlayerCount 与槽位不一致属于数据损坏，按满房处理
		return nil, errors.Newf(errors.ErrRoomFull, "房间容量 %d 已满", r.MaxPlayers)
	}
	next.Players[slot] = newPlayer(args.Player, false, args.Timestamp)
	next.PlayerCount++

	return next, nil
}

// StartGame 开始游戏，仅房主可操作
func StartGame(r *Room, args StartGameArgs) (*Room, error) {
	if args.ActingPlayerID != r.HostID {
		return nil, errors.Newf(errors.ErrNotHost, "玩家 %s 不是房主", args.ActingPlayerID)
	}
	if r.Status != StatusLobby {
		return nil, errors.Newf(errors.ErrInvalidState, "房间当前状态: %s", r.Status)
	}

	next := r.Clone()
	next.Status = StatusPlaying
	startedAt := args.Timestamp
	next.StartedAt = &startedAt

	return next, nil
}

// UpdatePlayer 稀疏更新玩家状态，总是刷新最后活动时间
// 不限制房间状态：观战者和赛后挂机的更新也被接受，
// 更严格的策略由调用层自行决定。
func UpdatePlayer(r *Room, args UpdatePlayerArgs) (*Room, error) {
	if _, idx := r.FindPlayer(args.ActingPlayerID); idx < 0 {
		return nil, errors.Newf(errors.ErrPlayerNotFound, "玩家 %s 不在房间中", args.ActingPlayerID)
	}

	next := r.Clone()
	p, _ := next.FindPlayer(args.ActingPlayerID)

	if args.Position != nil {
		p.Position = *args.Position
	}
	if args.Rotation != nil {
		p.Rotation = *args.Rotation
	}
	if args.Animation != nil {
		p.Animation = *args.Animation
	}
	if args.Status != nil {
		p.Status = *args.Status
	}
	if args.Ready != nil {
		p.Ready = *args.Ready
	}
	if args.Connected != nil {
		p.Connected = *args.Connected
	}
	p.LastActivity = args.Timestamp

	return next, nil
}

// FinishGame 结束游戏，仅房主可操作
func FinishGame(r *Room, args FinishGameArgs) (*Room, error) {
	if args.ActingPlayerID != r.HostID {
		return nil, errors.Newf(errors.ErrNotHost, "玩家 %s 不是房主", args.ActingPlayerID)
	}
	if r.Status != StatusPlaying {
		return nil, errors.Newf(errors.ErrInvalidState, "房间当前状态: %s", r.Status)
	}

	next := r.Clone()
	next.Status = StatusCompleted
	finishedAt := args.Timestamp
	next.FinishedAt = &finishedAt

	return next, nil
}

// Validate 校验房间不变量，用于测试和存储层的完整性检查
func (r *Room) Validate() error {
	if r.MaxPlayers < 1 || r.MaxPlayers > MaxCapacity {
		return errors.Newf(errors.ErrInvalidParam, "无效的最大玩家数: %d", r.MaxPlayers)
	}
	if len(r.Players) != r.MaxPlayers {
		return errors.Newf(errors.ErrInvalidParam, "槽位数 %d 与最大玩家数 %d 不一致", len(r.Players), r.MaxPlayers)
	}
	if occupied := r.occupiedSlots(); occupied != r.PlayerCount {
		return errors.Newf(errors.ErrInvalidParam, "玩家计数 %d 与实际占用槽位 %d 不一致", r.PlayerCount, occupied)
	}
	if r.PlayerCount < 1 {
		return errors.New(errors.ErrInvalidParam, "房间不能没有玩家")
	}

	// 房主唯一且与host_id一致；玩家ID不重复
	hosts := 0
	seen := make(map[string]bool, r.PlayerCount)
	for _, p := range r.Players {
		if p == nil {
			continue
		}
		if seen[p.ID] {
			return errors.Newf(errors.ErrInvalidParam, "玩家 %s 占用了多个槽位", p.ID)
		}
		seen[p.ID] = true
		if p.IsHost {
			hosts++
			if p.ID != r.HostID {
				return errors.Newf(errors.ErrInvalidParam, "房主标记玩家 %s 与host_id %s 不一致", p.ID, r.HostID)
			}
		}
	}
	if hosts != 1 {
		return errors.Newf(errors.ErrInvalidParam, "房主数量应为1，实际为 %d", hosts)
	}

	// 时间戳与状态的对应关系
	switch r.Status {
	case StatusLobby:
		if r.StartedAt != nil || r.FinishedAt != nil {
			return errors.New(errors.ErrInvalidParam, "大厅状态不应有开始/结束时间")
		}
	case StatusPlaying:
		if r.StartedAt == nil || r.FinishedAt != nil {
			return errors.New(errors.ErrInvalidParam, "游戏中状态应有开始时间且无结束时间")
		}
	case StatusCompleted:
		if r.StartedAt == nil || r.FinishedAt == nil {
			return errors.New(errors.ErrInvalidParam, "已结束状态应有开始和结束时间")
		}
	default:
		return errors.Newf(errors.ErrInvalidParam, "未知的房间状态: %d", r.Status)
	}

	return nil
}
