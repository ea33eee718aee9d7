package service

import (
	"time"

	"github.com/wfunc/room-server/internal/repository"
	"github.com/wfunc/room-server/internal/utils"
	"go.uber.org/zap"
)

// Config 服务配置
type Config struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	DefaultMaxPlayers  int
	CommitRetries      int
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		JWTSecret:          "your-secret-key-change-in-production",
		AccessTokenExpiry:  24 * time.Hour,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		DefaultMaxPlayers:  8,
		CommitRetries:      3,
	}
}

// Services 服务集合
type Services struct {
	Room RoomService
	Auth AuthService
}

// NewServices 创建服务集合
// 房间存储后端（GORM或Redis）由调用方构造后传入。
func NewServices(roomRepo repository.RoomRepository, config *Config, log *zap.Logger) *Services {
	jwtManager := utils.NewJWTManager(
		config.JWTSecret,
		config.AccessTokenExpiry,
		config.RefreshTokenExpiry,
	)

	return &Services{
		Room: NewRoomService(roomRepo, config, log),
		Auth: NewAuthService(jwtManager, log),
	}
}
