package repository

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/wfunc/room-server/internal/errors"
	"github.com/wfunc/room-server/internal/models"
	"github.com/wfunc/room-server/internal/room"
	"gorm.io/gorm"
)

// RoomRepository 房间存储接口
// 并发边界是单个房间：提交携带期望版本号，版本不匹配时返回
// ErrVersionConflict，由调用方重新加载后重试。
type RoomRepository interface {
	// Get 按房间ID加载，返回房间状态和当前版本号
	Get(ctx context.Context, roomID string) (*room.Room, uint64, error)
	// Create 插入新房间，房间ID冲突时返回 ErrRoomExists
	Create(ctx context.Context, r *room.Room) (uint64, error)
	// Commit 按期望版本号提交新状态，返回新版本号
	Commit(ctx context.Context, roomID string, expectedVersion uint64, r *room.Room) (uint64, error)
	// Delete 删除房间（归档策略由调用方决定）
	Delete(ctx context.Context, roomID string) error
	// List 按状态过滤分页查询
	List(ctx context.Context, status *room.Status, p *Pagination) ([]*room.Room, error)
}

// roomRepo 基于GORM的房间仓储实现
type roomRepo struct {
	*BaseRepo
}

// NewRoomRepository 创建房间仓储
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Get 按房间ID加载
func (r *roomRepo) Get(ctx context.Context, roomID string) (*room.Room, uint64, error) {
	var rec models.RoomRecord
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		First(&rec).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, errors.Newf(errors.ErrRoomNotFound, "房间 %s 不存在", roomID)
		}
		return nil, 0, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return rec.ToRoom(), rec.Version, nil
}

// Create 插入新房间，初始版本号为1
func (r *roomRepo) Create(ctx context.Context, rm *room.Room) (uint64, error) {
	rec := models.NewRoomRecord(rm)
	rec.Version = 1

	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isDuplicateKeyError(err) {
			return 0, errors.Newf(errors.ErrRoomExists, "房间 %s 已存在", rm.RoomID)
		}
		return 0, errors.Wrap(err, errors.ErrDatabaseInsert)
	}
	return rec.Version, nil
}

// Commit 条件更新：WHERE room_id = ? AND version = ?
// 没有命中任何行时区分两种失败：房间不存在或版本冲突。
func (r *roomRepo) Commit(ctx context.Context, roomID string, expectedVersion uint64, rm *room.Room) (uint64, error) {
	newVersion := expectedVersion + 1

	res := r.db.WithContext(ctx).
		Model(&models.RoomRecord{}).
		Where("room_id = ? AND version = ?", roomID, expectedVersion).
		Updates(map[string]interface{}{
			"status":       uint8(rm.Status),
			"player_count": rm.PlayerCount,
			"started_at":   rm.StartedAt,
			"finished_at":  rm.FinishedAt,
			"players":      models.PlayerSlots(rm.Players),
			"version":      newVersion,
		})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, errors.ErrDatabaseUpdate)
	}

	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&models.RoomRecord{}).
			Where("room_id = ?", roomID).
			Count(&count).Error; err != nil {
			return 0, errors.Wrap(err, errors.ErrDatabaseQuery)
		}
		if count == 0 {
			return 0, errors.Newf(errors.ErrRoomNotFound, "房间 %s 不存在", roomID)
		}
		return 0, errors.Newf(errors.ErrVersionConflict, "房间 %s 期望版本 %d", roomID, expectedVersion)
	}

	return newVersion, nil
}

// Delete 删除房间
func (r *roomRepo) Delete(ctx context.Context, roomID string) error {
	res := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Delete(&models.RoomRecord{})
	if res.Error != nil {
		return errors.Wrap(res.Error, errors.ErrDatabaseUpdate)
	}
	if res.RowsAffected == 0 {
		return errors.Newf(errors.ErrRoomNotFound, "房间 %s 不存在", roomID)
	}
	return nil
}

// List 按状态过滤分页查询
func (r *roomRepo) List(ctx context.Context, status *room.Status, p *Pagination) ([]*room.Room, error) {
	query := r.db.WithContext(ctx).Model(&models.RoomRecord{})
	if status != nil {
		query = query.Where("status = ?", uint8(*status))
	}

	// 查询总数
	if err := query.Count(&p.Total).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}

	// 查询数据
	var records []*models.RoomRecord
	err := query.
		Order("room_created_at desc").
		Scopes(Paginate(p)).
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}

	rooms := make([]*room.Room, 0, len(records))
	for _, rec := range records {
		rooms = append(rooms, rec.ToRoom())
	}
	return rooms, nil
}

// isDuplicateKeyError 判断是否为唯一键冲突
func isDuplicateKeyError(err error) bool {
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// sqlite/mysql/postgres 的唯一约束错误文本
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}
