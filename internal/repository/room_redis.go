package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/wfunc/room-server/internal/errors"
	"github.com/wfunc/room-server/internal/room"
)

const (
	// KeyRoom 房间键格式
	KeyRoom = "room:%s"
	// roomScanPattern 列表查询时的扫描模式
	roomScanPattern = "room:*"
)

// roomEnvelope Redis中存储的房间文档，版本号随文档一起存取
type roomEnvelope struct {
	Version uint64     `json:"version"`
	Room    *room.Room `json:"room"`
}

// roomRedisRepo 基于Redis的房间仓储实现
// 乐观并发通过 WATCH + 事务管道实现：提交期间键被其他
// 客户端修改时事务失败，映射为版本冲突。
type roomRedisRepo struct {
	rds *redis.Client
}

// NewRedisRoomRepository 创建Redis房间仓储
func NewRedisRoomRepository(client *redis.Client) RoomRepository {
	return &roomRedisRepo{rds: client}
}

// Get 按房间ID加载
func (r *roomRedisRepo) Get(ctx context.Context, roomID string) (*room.Room, uint64, error) {
	key := fmt.Sprintf(KeyRoom, roomID)
	data, err := r.rds.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, 0, errors.Newf(errors.ErrRoomNotFound, "房间 %s 不存在", roomID)
		}
		return nil, 0, errors.Wrap(err, errors.ErrDatabaseQuery)
	}

	var env roomEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrDatabaseQuery, "房间数据反序列化失败")
	}
	return env.Room, env.Version, nil
}

// Create 插入新房间，初始版本号为1
func (r *roomRedisRepo) Create(ctx context.Context, rm *room.Room) (uint64, error) {
	key := fmt.Sprintf(KeyRoom, rm.RoomID)
	data, err := json.Marshal(&roomEnvelope{Version: 1, Room: rm})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrDatabaseInsert, "房间数据序列化失败")
	}

	ok, err := r.rds.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrDatabaseInsert)
	}
	if !ok {
		return 0, errors.Newf(errors.ErrRoomExists, "房间 %s 已存在", rm.RoomID)
	}
	return 1, nil
}

// Commit 按期望版本号提交新状态
func (r *roomRedisRepo) Commit(ctx context.Context, roomID string, expectedVersion uint64, rm *room.Room) (uint64, error) {
	key := fmt.Sprintf(KeyRoom, roomID)
	newVersion := expectedVersion + 1

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return errors.Newf(errors.ErrRoomNotFound, "房间 %s 不存在", roomID)
			}
			return errors.Wrap(err, errors.ErrDatabaseQuery)
		}

		var current roomEnvelope
		if err := json.Unmarshal(data, &current); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseQuery, "房间数据反序列化失败")
		}
		if current.Version != expectedVersion {
			return errors.Newf(errors.ErrVersionConflict, "房间 %s 期望版本 %d 实际版本 %d",
				roomID, expectedVersion, current.Version)
		}

		next, err := json.Marshal(&roomEnvelope{Version: newVersion, Room: rm})
		if err != nil {
			return errors.Wrap(err, errors.ErrDatabaseUpdate, "房间数据序列化失败")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	if err := r.rds.Watch(ctx, txn, key); err != nil {
		// WATCH 期间键被修改，等同于版本冲突
		if err == redis.TxFailedErr {
			return 0, errors.Newf(errors.ErrVersionConflict, "房间 %s 提交期间被并发修改", roomID)
		}
		if appErr, ok := err.(*errors.AppError); ok {
			return 0, appErr
		}
		return 0, errors.Wrap(err, errors.ErrDatabaseUpdate)
	}

	return newVersion, nil
}

// Delete 删除房间
func (r *roomRedisRepo) Delete(ctx context.Context, roomID string) error {
	key := fmt.Sprintf(KeyRoom, roomID)
	count, err := r.rds.Del(ctx, key).Result()
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabaseUpdate)
	}
	if count == 0 {
		return errors.Newf(errors.ErrRoomNotFound, "房间 %s 不存在", roomID)
	}
	return nil
}

// List 扫描全部房间键后在内存中过滤、排序、分页
// 房间数量级为会话级别，SCAN 足够；更大规模应引入二级索引。
func (r *roomRedisRepo) List(ctx context.Context, status *room.Status, p *Pagination) ([]*room.Room, error) {
	var rooms []*room.Room

	iter := r.rds.Scan(ctx, 0, roomScanPattern, 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.rds.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue // 扫描与读取之间被删除
			}
			return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
		}

		var env roomEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue // 跳过损坏的条目
		}
		if status != nil && env.Room.Status != *status {
			continue
		}
		rooms = append(rooms, env.Room)
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt > rooms[j].CreatedAt
	})

	p.Total = int64(len(rooms))
	offset := p.Offset()
	if offset >= len(rooms) {
		return []*room.Room{}, nil
	}
	end := offset + p.PageSize
	if end > len(rooms) {
		end = len(rooms)
	}
	return rooms[offset:end], nil
}
