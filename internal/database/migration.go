package database

import (
	"fmt"

	"github.com/wfunc/room-server/internal/logger"
	"github.com/wfunc/room-server/internal/models"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	migrationModels := []interface{}{
		&models.RoomRecord{},
	}

	if err := DB.AutoMigrate(migrationModels...); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}

	logger.Info("数据库迁移完成")
	return nil
}
