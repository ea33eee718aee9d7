package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/room-server/internal/errors"
	"github.com/wfunc/room-server/internal/repository"
	"github.com/wfunc/room-server/internal/room"
	"go.uber.org/zap"
)

// roomService 房间服务实现
type roomService struct {
	repo              repository.RoomRepository
	log               *zap.Logger
	commitRetries     int
	defaultMaxPlayers int
	now               func() int64 // 可注入的时钟，测试用
}

// NewRoomService 创建房间服务
func NewRoomService(repo repository.RoomRepository, config *Config, log *zap.Logger) RoomService {
	return &roomService{
		repo:              repo,
		log:               log,
		commitRetries:     config.CommitRetries,
		defaultMaxPlayers: config.DefaultMaxPlayers,
		now:               func() int64 { return time.Now().Unix() },
	}
}

// CreateRoom 创建房间
func (s *roomService) CreateRoom(ctx context.Context, host room.PlayerProfile, req *CreateRoomRequest) (*room.Room, error) {
	roomID := req.RoomID
	if roomID == "" {
		roomID = uuid.New().String()
	}
	maxPlayers := req.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = s.defaultMaxPlayers
	}

	r, err := room.CreateRoom(room.CreateRoomArgs{
		RoomID:     roomID,
		GameID:     req.GameID,
		Host:       host,
		MaxPlayers: maxPlayers,
		Timestamp:  s.now(),
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}

	s.log.Info("Room created",
		zap.String("roomID", r.RoomID),
		zap.String("gameID", r.GameID),
		zap.String("hostID", r.HostID),
		zap.Int("maxPlayers", r.MaxPlayers))

	return r, nil
}

// JoinRoom 加入房间
func (s *roomService) JoinRoom(ctx context.Context, roomID string, player room.PlayerProfile) (*room.Room, error) {
	next, err := s.mutate(ctx, roomID, func(r *room.Room) (*room.Room, error) {
		return room.JoinRoom(r, room.JoinRoomArgs{
			Player:    player,
			Timestamp: s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Player joined room",
		zap.String("roomID", roomID),
		zap.String("playerID", player.ID),
		zap.Int("playerCount", next.PlayerCount))

	return next, nil
}

// StartGame 开始游戏
func (s *roomService) StartGame(ctx context.Context, roomID, actingPlayerID string) (*room.Room, error) {
	next, err := s.mutate(ctx, roomID, func(r *room.Room) (*room.Room, error) {
		return room.StartGame(r, room.StartGameArgs{
			ActingPlayerID: actingPlayerID,
			Timestamp:      s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Game started",
		zap.String("roomID", roomID),
		zap.String("hostID", actingPlayerID),
		zap.Int("playerCount", next.PlayerCount))

	return next, nil
}

// FinishGame 结束游戏
func (s *roomService) FinishGame(ctx context.Context, roomID, actingPlayerID string) (*room.Room, error) {
	next, err := s.mutate(ctx, roomID, func(r *room.Room) (*room.Room, error) {
		return room.FinishGame(r, room.FinishGameArgs{
			ActingPlayerID: actingPlayerID,
			Timestamp:      s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Game finished",
		zap.String("roomID", roomID),
		zap.String("hostID", actingPlayerID))

	return next, nil
}

// UpdatePlayer 更新玩家状态
// 位置同步是高频调用，成功路径不打日志。
func (s *roomService) UpdatePlayer(ctx context.Context, roomID, actingPlayerID string, patch *PlayerPatch) (*room.Room, error) {
	return s.mutate(ctx, roomID, func(r *room.Room) (*room.Room, error) {
		return room.UpdatePlayer(r, room.UpdatePlayerArgs{
			ActingPlayerID: actingPlayerID,
			Timestamp:      s.now(),
			Position:       patch.Position,
			Rotation:       patch.Rotation,
			Animation:      patch.Animation,
			Status:         patch.Status,
			Ready:          patch.Ready,
			Connected:      patch.Connected,
		})
	})
}

// LeaveRoom 玩家离开，槽位保留但标记为离线
// 断线重连后同一玩家ID可以恢复原槽位状态。
func (s *roomService) LeaveRoom(ctx context.Context, roomID, actingPlayerID string) (*room.Room, error) {
	connected := false
	next, err := s.UpdatePlayer(ctx, roomID, actingPlayerID, &PlayerPatch{Connected: &connected})
	if err != nil {
		return nil, err
	}

	s.log.Info("Player left room",
		zap.String("roomID", roomID),
		zap.String("playerID", actingPlayerID))

	return next, nil
}

// GetRoom 查询单个房间
func (s *roomService) GetRoom(ctx context.Context, roomID string) (*room.Room, error) {
	r, _, err := s.repo.Get(ctx, roomID)
	return r, err
}

// ListRooms 分页查询房间列表
func (s *roomService) ListRooms(ctx context.Context, status *room.Status, page, pageSize int) ([]*room.Room, int64, error) {
	p := repository.NewPagination(page, pageSize)
	rooms, err := s.repo.List(ctx, status, p)
	if err != nil {
		return nil, 0, err
	}
	return rooms, p.Total, nil
}

// mutate 加载 -> 状态机计算 -> 提交 的重试循环
// 只有版本冲突会触发重试；状态机拒绝（满房、非房主等）直接返回。
func (s *roomService) mutate(ctx context.Context, roomID string, op func(*room.Room) (*room.Room, error)) (*room.Room, error) {
	for attempt := 0; attempt <= s.commitRetries; attempt++ {
		current, version, err := s.repo.Get(ctx, roomID)
		if err != nil {
			return nil, err
		}

		next, err := op(current)
		if err != nil {
			return nil, err
		}

		if _, err := s.repo.Commit(ctx, roomID, version, next); err != nil {
			if errors.Is(err, errors.ErrVersionConflict) {
				s.log.Debug("Commit version conflict, retrying",
					zap.String("roomID", roomID),
					zap.Uint64("version", version),
					zap.Int("attempt", attempt))
				continue
			}
			return nil, err
		}
		return next, nil
	}

	s.log.Warn("Room commit retries exhausted",
		zap.String("roomID", roomID),
		zap.Int("retries", s.commitRetries))
	return nil, errors.Newf(errors.ErrStoreBusy, "房间 %s 并发提交繁忙", roomID)
}
